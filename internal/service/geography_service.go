package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/GTDGit/registry_api/internal/models"
)

// TerritoryStore is the geography lookup surface.
type TerritoryStore interface {
	GetAllRegions(ctx context.Context) ([]models.Region, error)
	GetCitiesByRegionCode(ctx context.Context, regionCode string) ([]models.City, error)
	GetCityByCode(ctx context.Context, code string) (*models.City, error)
	GetBarangaysByCityCode(ctx context.Context, cityCode string) ([]models.Barangay, error)
	GetBarangayByCode(ctx context.Context, code string) (*models.Barangay, error)
	GetServiceAreaBarangays(ctx context.Context, cityCode string) ([]models.Barangay, error)
	GetPostalCodesByBarangay(ctx context.Context, barangayCode string) ([]models.PostalCode, error)
}

// GeographyService answers service-area and zip code questions.
type GeographyService struct {
	repo            TerritoryStore
	serviceAreaCity string
	defaultZip      string
}

// NewGeographyService creates a new GeographyService.
func NewGeographyService(repo TerritoryStore, serviceAreaCity, defaultZip string) *GeographyService {
	return &GeographyService{repo: repo, serviceAreaCity: serviceAreaCity, defaultZip: defaultZip}
}

// IsServiceArea reports whether the barangay belongs to the configured city
// and is marked as accepting registrations.
func (s *GeographyService) IsServiceArea(ctx context.Context, barangayCode, cityCode string) (bool, error) {
	if cityCode != s.serviceAreaCity {
		return false, nil
	}
	b, err := s.repo.GetBarangayByCode(ctx, barangayCode)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get barangay: %w", err)
	}
	return b.CityCode == cityCode && b.ServiceArea, nil
}

// ResolveZip picks the zip code used in a Community ID: the barangay's postal
// code if one is on file, else the submitted zip, else the default.
func (s *GeographyService) ResolveZip(ctx context.Context, barangayCode, submitted string) (string, error) {
	codes, err := s.repo.GetPostalCodesByBarangay(ctx, barangayCode)
	if err != nil {
		return "", fmt.Errorf("get postal codes: %w", err)
	}
	if len(codes) > 0 {
		return codes[0].PostalCode, nil
	}
	if submitted != "" {
		return submitted, nil
	}
	return s.defaultZip, nil
}

func (s *GeographyService) Regions(ctx context.Context) ([]models.Region, error) {
	return s.repo.GetAllRegions(ctx)
}

func (s *GeographyService) Cities(ctx context.Context, regionCode string) ([]models.City, error) {
	return s.repo.GetCitiesByRegionCode(ctx, regionCode)
}

func (s *GeographyService) Barangays(ctx context.Context, cityCode string) ([]models.Barangay, error) {
	return s.repo.GetBarangaysByCityCode(ctx, cityCode)
}

func (s *GeographyService) PostalCodes(ctx context.Context, barangayCode string) ([]models.PostalCode, error) {
	return s.repo.GetPostalCodesByBarangay(ctx, barangayCode)
}

// ServiceArea returns the configured city with its participating barangays.
func (s *GeographyService) ServiceArea(ctx context.Context) (*models.ServiceArea, error) {
	city, err := s.repo.GetCityByCode(ctx, s.serviceAreaCity)
	if err != nil {
		return nil, fmt.Errorf("get service area city: %w", err)
	}
	barangays, err := s.repo.GetServiceAreaBarangays(ctx, s.serviceAreaCity)
	if err != nil {
		return nil, fmt.Errorf("get service area barangays: %w", err)
	}
	return &models.ServiceArea{City: *city, Barangays: barangays}, nil
}
