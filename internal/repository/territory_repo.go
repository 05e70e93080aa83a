package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/GTDGit/registry_api/internal/models"
)

// TerritoryRepository handles database operations for geography data
type TerritoryRepository struct {
	db *sqlx.DB
}

// NewTerritoryRepository creates a new TerritoryRepository
func NewTerritoryRepository(db *sqlx.DB) *TerritoryRepository {
	return &TerritoryRepository{db: db}
}

// GetAllRegions returns all regions
func (r *TerritoryRepository) GetAllRegions(ctx context.Context) ([]models.Region, error) {
	query := `SELECT code, name FROM regions ORDER BY code`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	regions := []models.Region{}
	for rows.Next() {
		var reg models.Region
		if err := rows.Scan(&reg.Code, &reg.Name); err != nil {
			return nil, err
		}
		regions = append(regions, reg)
	}
	return regions, rows.Err()
}

// GetCitiesByRegionCode returns all cities for a given region code
func (r *TerritoryRepository) GetCitiesByRegionCode(ctx context.Context, regionCode string) ([]models.City, error) {
	query := `SELECT code, region_code, name FROM cities WHERE region_code = $1 ORDER BY name`

	cities := []models.City{}
	if err := r.db.SelectContext(ctx, &cities, query, regionCode); err != nil {
		return nil, err
	}
	return cities, nil
}

// GetCityByCode returns a city by its code
func (r *TerritoryRepository) GetCityByCode(ctx context.Context, code string) (*models.City, error) {
	query := `SELECT code, region_code, name FROM cities WHERE code = $1`

	var c models.City
	if err := r.db.GetContext(ctx, &c, query, code); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetBarangaysByCityCode returns all barangays for a given city code
func (r *TerritoryRepository) GetBarangaysByCityCode(ctx context.Context, cityCode string) ([]models.Barangay, error) {
	query := `SELECT code, city_code, name, service_area FROM barangays WHERE city_code = $1 ORDER BY name`

	barangays := []models.Barangay{}
	if err := r.db.SelectContext(ctx, &barangays, query, cityCode); err != nil {
		return nil, err
	}
	return barangays, nil
}

// GetBarangayByCode returns a barangay by its code
func (r *TerritoryRepository) GetBarangayByCode(ctx context.Context, code string) (*models.Barangay, error) {
	query := `SELECT code, city_code, name, service_area FROM barangays WHERE code = $1`

	var b models.Barangay
	if err := r.db.GetContext(ctx, &b, query, code); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetServiceAreaBarangays returns the barangays of a city that accept registrations
func (r *TerritoryRepository) GetServiceAreaBarangays(ctx context.Context, cityCode string) ([]models.Barangay, error) {
	query := `SELECT code, city_code, name, service_area FROM barangays
	          WHERE city_code = $1 AND service_area ORDER BY name`

	barangays := []models.Barangay{}
	if err := r.db.SelectContext(ctx, &barangays, query, cityCode); err != nil {
		return nil, err
	}
	return barangays, nil
}

// GetPostalCodesByBarangay returns the postal codes of a barangay
func (r *TerritoryRepository) GetPostalCodesByBarangay(ctx context.Context, barangayCode string) ([]models.PostalCode, error) {
	query := `SELECT barangay_code, postal_code FROM postal_codes WHERE barangay_code = $1 ORDER BY postal_code`

	codes := []models.PostalCode{}
	if err := r.db.SelectContext(ctx, &codes, query, barangayCode); err != nil {
		return nil, err
	}
	return codes, nil
}
