package handler

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/registry_api/internal/service"
	"github.com/GTDGit/registry_api/internal/utils"
)

var psgcCode = regexp.MustCompile(`^\d{9}$`)

// TerritoryHandler serves the PSGC lookup tables used by the registration form.
type TerritoryHandler struct {
	geo *service.GeographyService
}

// NewTerritoryHandler creates a new TerritoryHandler
func NewTerritoryHandler(geo *service.GeographyService) *TerritoryHandler {
	return &TerritoryHandler{geo: geo}
}

// GetRegions returns all regions
// GET /v1/geo/regions
func (h *TerritoryHandler) GetRegions(c *gin.Context) {
	regions, err := h.geo.Regions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Successfully retrieved regions", regions)
}

// GetCities returns the cities of a region
// GET /v1/geo/regions/:code/cities
func (h *TerritoryHandler) GetCities(c *gin.Context) {
	code := c.Param("code")
	if !psgcCode.MatchString(code) {
		utils.ErrorWithField(c, http.StatusBadRequest, service.ErrCodeValidation, "code", "Region code must be 9 digits")
		return
	}
	cities, err := h.geo.Cities(c.Request.Context(), code)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Successfully retrieved cities", cities)
}

// GetBarangays returns the barangays of a city
// GET /v1/geo/cities/:code/barangays
func (h *TerritoryHandler) GetBarangays(c *gin.Context) {
	code := c.Param("code")
	if !psgcCode.MatchString(code) {
		utils.ErrorWithField(c, http.StatusBadRequest, service.ErrCodeValidation, "code", "City code must be 9 digits")
		return
	}
	barangays, err := h.geo.Barangays(c.Request.Context(), code)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Successfully retrieved barangays", barangays)
}

// GetPostalCodes returns the postal codes of a barangay
// GET /v1/geo/barangays/:code/postal-codes
func (h *TerritoryHandler) GetPostalCodes(c *gin.Context) {
	code := c.Param("code")
	if !psgcCode.MatchString(code) {
		utils.ErrorWithField(c, http.StatusBadRequest, service.ErrCodeValidation, "code", "Barangay code must be 9 digits")
		return
	}
	codes, err := h.geo.PostalCodes(c.Request.Context(), code)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(codes) == 0 {
		utils.Error(c, http.StatusNotFound, service.ErrCodeNotFound, "No postal code found for barangay code '"+code+"'")
		return
	}
	utils.Success(c, http.StatusOK, "Successfully retrieved postal codes", codes)
}

// GetServiceArea returns the city and barangays where registrations are accepted
// GET /v1/geo/service-area
func (h *TerritoryHandler) GetServiceArea(c *gin.Context) {
	area, err := h.geo.ServiceArea(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Successfully retrieved service area", area)
}

// CheckServiceArea reports whether an address can register
// GET /v1/geo/service-area/check?barangay=&city=
func (h *TerritoryHandler) CheckServiceArea(c *gin.Context) {
	barangay, city := c.Query("barangay"), c.Query("city")
	if barangay == "" || city == "" {
		utils.Error(c, http.StatusBadRequest, service.ErrCodeValidation, "barangay and city are required")
		return
	}
	ok, err := h.geo.IsServiceArea(c.Request.Context(), barangay, city)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Service area checked", gin.H{"eligible": ok})
}
