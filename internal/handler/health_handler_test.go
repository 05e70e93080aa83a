package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) PingContext(ctx context.Context) error { return p.err }
func (p pinger) Ping(ctx context.Context) error        { return p.err }

func TestGetHealth(t *testing.T) {
	down := errors.New("down")
	cases := []struct {
		name   string
		db     pinger
		cache  CachePinger
		status int
		want   string
		cached string
	}{
		{"all up", pinger{}, pinger{}, http.StatusOK, "healthy", "connected"},
		{"no cache configured", pinger{}, nil, http.StatusOK, "healthy", "disabled"},
		{"cache down", pinger{}, pinger{err: down}, http.StatusOK, "degraded", "disconnected"},
		{"database down", pinger{err: down}, pinger{}, http.StatusServiceUnavailable, "unhealthy", "connected"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", NewHealthHandler(tc.db, tc.cache).GetHealth)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, tc.status, w.Code)
			var data map[string]any
			decodeData(t, decodeResponse(t, w), &data)
			assert.Equal(t, tc.want, data["status"])
			assert.Equal(t, tc.cached, data["cache"])
		})
	}
}
