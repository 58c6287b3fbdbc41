package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestAPIKeyMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		key    string
		header string
		query  string
		want   int
	}{
		{"disabled", "", "", "", http.StatusOK},
		{"missing", "secret", "", "", http.StatusUnauthorized},
		{"wrong", "secret", "nope", "", http.StatusForbidden},
		{"header", "secret", "secret", "", http.StatusOK},
		{"query", "secret", "", "secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(APIKeyMiddleware(tt.key))
			r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

			url := "/x"
			if tt.query != "" {
				url += "?api_key=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
