package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"auction-marketplace/pkg/logger"
)

func TestRequireUser(t *testing.T) {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]int64{"userId": UserID(c)})
	}, RequireUser())

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "42", http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"not a number", "bob", http.StatusUnauthorized},
		{"zero", "0", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(HeaderUserID, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			require.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				require.JSONEq(t, `{"userId":42}`, rec.Body.String())
			}
		})
	}
}

func TestCORS(t *testing.T) {
	reached := false
	h := CORS(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/ws/global", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.False(t, reached)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/global", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, reached)
}
