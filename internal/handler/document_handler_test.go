package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/registry_api/internal/models"
	"github.com/GTDGit/registry_api/internal/service"
	"github.com/GTDGit/registry_api/internal/utils"
)

type docStore struct {
	mu   sync.Mutex
	docs map[string]*models.Document
}

func (s *docStore) Create(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	return nil
}

func (s *docStore) GetByID(ctx context.Context, id, accountID string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok || d.AccountID != accountID || d.DeletedAt != nil {
		return nil, sql.ErrNoRows
	}
	return d, nil
}

func (s *docStore) ListByAccount(ctx context.Context, accountID string) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Document
	for _, d := range s.docs {
		if d.AccountID == accountID && d.DeletedAt == nil {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *docStore) SoftDelete(ctx context.Context, id, accountID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok || d.AccountID != accountID || d.DeletedAt != nil {
		return sql.ErrNoRows
	}
	d.DeletedAt = &at
	return nil
}

type nopUploader struct{}

func (nopUploader) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return "https://docs.example.ph/" + key, nil
}

func newDocumentRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	jwtManager := utils.NewJWTManager("test-secret", "")
	docs := service.NewDocumentService(&docStore{docs: map[string]*models.Document{}}, nopUploader{}, nil, 1024)
	h := NewDocumentHandler(docs)

	r := gin.New()
	v1 := r.Group("/v1", middlewareFor(jwtManager))
	v1.POST("/documents", h.Upload)
	v1.GET("/documents", h.List)
	v1.DELETE("/documents/:id", h.Delete)

	tok, err := jwtManager.GenerateJWT("acct-a", "a@example.ph", utils.RoleResident, time.Hour)
	require.NoError(t, err)
	return r, tok
}

func multipartRequest(t *testing.T, token, field, name string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) utils.Response {
	t.Helper()
	var resp utils.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestDocumentUpload(t *testing.T) {
	r, tok := newDocumentRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, tok, "file", "proof.pdf", []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n")))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var doc models.Document
	decodeData(t, decodeResponse(t, w), &doc)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, "proof.pdf", doc.FileName)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/documents", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var docs []models.Document
	decodeData(t, decodeResponse(t, w), &docs)
	assert.Len(t, docs, 1)
}

func TestDocumentUpload_Rejections(t *testing.T) {
	r, tok := newDocumentRouter(t)

	cases := []struct {
		name   string
		field  string
		data   []byte
		status int
		code   string
	}{
		{"missing file field", "upload", []byte("%PDF-1.4\n"), http.StatusBadRequest, service.ErrCodeValidation},
		{"plain text", "file", []byte("hello there"), http.StatusUnsupportedMediaType, service.ErrCodeUnsupportedFile},
		{"too large", "file", append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("a"), 2048)...), http.StatusRequestEntityTooLarge, service.ErrCodeFileTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, multipartRequest(t, tok, tc.field, "doc.bin", tc.data))

			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decodeResponse(t, w).Error.Code)
		})
	}
}

func TestDocumentDelete_Unknown(t *testing.T) {
	r, tok := newDocumentRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/v1/documents/nope", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
