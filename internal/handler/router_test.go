package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/registry_api/internal/middleware"
	"github.com/GTDGit/registry_api/internal/models"
	"github.com/GTDGit/registry_api/internal/repository"
	"github.com/GTDGit/registry_api/internal/service"
	"github.com/GTDGit/registry_api/internal/utils"
)

const (
	testCity     = "137404000"
	testBarangay = "137404101"
	testRegion   = "130000000"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// servedArea accepts every barangay of testCity and assigns zip 1121.
type servedArea struct{}

func (servedArea) IsServiceArea(ctx context.Context, barangayCode, cityCode string) (bool, error) {
	return cityCode == testCity, nil
}

func (servedArea) ResolveZip(ctx context.Context, barangayCode, submitted string) (string, error) {
	return "1121", nil
}

type testAPI struct {
	router *gin.Engine
	jwt    *utils.JWTManager
	store  *repository.MemoryRegistrationStore
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := repository.NewMemoryRegistrationStore()
	jwtManager := utils.NewJWTManager("test-secret", "")

	registrations := service.NewRegistrationService(service.RegistrationServiceDeps{
		Store:        store,
		Detector:     service.NewDuplicateDetector(store, time.Second, nil),
		Allocator:    service.NewIdentityAllocator(service.HouseholdPolicyNew, nil),
		Area:         servedArea{},
		StoreTimeout: time.Second,
	})
	review := service.NewReviewService(store, nil, nil, nil, nil, time.Second)

	regHandler := NewRegistrationHandler(registrations)
	adminHandler := NewAdminRegistrationHandler(review)
	auth := middleware.NewJWTMiddleware(jwtManager)

	r := gin.New()
	v1 := r.Group("/v1", auth.Handle())
	v1.POST("/registrations", regHandler.Submit)
	v1.GET("/registrations/me", regHandler.Me)

	admin := v1.Group("/admin", auth.RequireAdmin())
	admin.GET("/registrations", adminHandler.List)
	admin.GET("/registrations/:id", adminHandler.Get)
	admin.PATCH("/registrations/:id", adminHandler.UpdateData)
	admin.PATCH("/registrations/:id/status", adminHandler.UpdateStatus)
	admin.DELETE("/registrations/:id", adminHandler.Delete)
	admin.GET("/registrations/:id/history", adminHandler.History)
	admin.GET("/duplicates", adminHandler.Flagged)
	admin.GET("/duplicates/stats", adminHandler.Stats)
	admin.POST("/duplicates/:id/resolve", adminHandler.Resolve)

	return &testAPI{router: r, jwt: jwtManager, store: store}
}

func (a *testAPI) token(t *testing.T, accountID, role string) string {
	t.Helper()
	tok, err := a.jwt.GenerateJWT(accountID, accountID+"@example.ph", role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, utils.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var resp utils.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

// decodeData re-decodes the envelope's data field into out.
func decodeData(t *testing.T, resp utils.Response, out any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func registrationBody(first, last, email, street string) *models.RegistrationInput {
	return &models.RegistrationInput{
		FirstName:       first,
		LastName:        last,
		BirthDate:       "1990-05-14",
		Email:           email,
		Phone:           "09171234567",
		PresentStreet:   street,
		PresentBarangay: testBarangay,
		PresentCity:     testCity,
		PresentRegion:   testRegion,
	}
}

func middlewareFor(jwtManager *utils.JWTManager) gin.HandlerFunc {
	return middleware.NewJWTMiddleware(jwtManager).Handle()
}
