package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/registry_api/internal/models"
)

type memTerritory struct {
	barangays map[string]models.Barangay
	postal    map[string][]models.PostalCode
}

func (m *memTerritory) GetAllRegions(ctx context.Context) ([]models.Region, error) {
	return []models.Region{{Code: ncrRegion, Name: "National Capital Region"}}, nil
}

func (m *memTerritory) GetCitiesByRegionCode(ctx context.Context, regionCode string) ([]models.City, error) {
	return []models.City{{Code: commonwealthCity, RegionCode: regionCode, Name: "Quezon City"}}, nil
}

func (m *memTerritory) GetCityByCode(ctx context.Context, code string) (*models.City, error) {
	return &models.City{Code: code, RegionCode: ncrRegion, Name: "Quezon City"}, nil
}

func (m *memTerritory) GetBarangaysByCityCode(ctx context.Context, cityCode string) ([]models.Barangay, error) {
	var out []models.Barangay
	for _, b := range m.barangays {
		if b.CityCode == cityCode {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memTerritory) GetBarangayByCode(ctx context.Context, code string) (*models.Barangay, error) {
	b, ok := m.barangays[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &b, nil
}

func (m *memTerritory) GetServiceAreaBarangays(ctx context.Context, cityCode string) ([]models.Barangay, error) {
	var out []models.Barangay
	for _, b := range m.barangays {
		if b.CityCode == cityCode && b.ServiceArea {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memTerritory) GetPostalCodesByBarangay(ctx context.Context, barangayCode string) ([]models.PostalCode, error) {
	return m.postal[barangayCode], nil
}

func newGeoFixture() *GeographyService {
	repo := &memTerritory{
		barangays: map[string]models.Barangay{
			commonwealthBrgy: {Code: commonwealthBrgy, CityCode: commonwealthCity, Name: "Commonwealth", ServiceArea: true},
			"137404201":      {Code: "137404201", CityCode: commonwealthCity, Name: "Diliman"},
			"137404999":      {Code: "137404999", CityCode: commonwealthCity, Name: "Unmapped", ServiceArea: true},
		},
		postal: map[string][]models.PostalCode{
			commonwealthBrgy: {{BarangayCode: commonwealthBrgy, PostalCode: "1121"}},
			"137404201":      {{BarangayCode: "137404201", PostalCode: "1101"}},
		},
	}
	return NewGeographyService(repo, commonwealthCity, "0000")
}

func TestIsServiceArea(t *testing.T) {
	geo := newGeoFixture()
	ctx := context.Background()

	cases := []struct {
		barangay, city string
		want           bool
	}{
		{commonwealthBrgy, commonwealthCity, true},
		{"137404201", commonwealthCity, false},
		{commonwealthBrgy, "133900000", false},
		{"000000000", commonwealthCity, false},
	}
	for _, tc := range cases {
		ok, err := geo.IsServiceArea(ctx, tc.barangay, tc.city)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, "%s/%s", tc.barangay, tc.city)
	}
}

func TestResolveZip(t *testing.T) {
	geo := newGeoFixture()
	ctx := context.Background()

	zip, err := geo.ResolveZip(ctx, commonwealthBrgy, "9999")
	require.NoError(t, err)
	assert.Equal(t, "1121", zip)

	zip, err = geo.ResolveZip(ctx, "137404999", "1119")
	require.NoError(t, err)
	assert.Equal(t, "1119", zip)

	zip, err = geo.ResolveZip(ctx, "137404999", "")
	require.NoError(t, err)
	assert.Equal(t, "0000", zip)
}

func TestServiceArea(t *testing.T) {
	area, err := newGeoFixture().ServiceArea(context.Background())
	require.NoError(t, err)
	assert.Equal(t, commonwealthCity, area.City.Code)
	assert.Len(t, area.Barangays, 2)
}
