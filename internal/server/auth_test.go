package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestAuthMiddleware covers the auth decision matrix: disabled auth, missing
// header, wrong token, valid token, scheme case-insensitivity, and non-Bearer
// schemes.
func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		apiKey     string
		header     string
		wantStatus int
	}{
		{
			name:       "auth disabled passes everything",
			apiKey:     "",
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing header rejected",
			apiKey:     "secret",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong token rejected",
			apiKey:     "secret",
			header:     "Bearer wrong-token",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "correct token accepted",
			apiKey:     "secret",
			header:     "Bearer secret",
			wantStatus: http.StatusOK,
		},
		{
			name:       "lowercase scheme accepted",
			apiKey:     "secret",
			header:     "bearer secret",
			wantStatus: http.StatusOK,
		},
		{
			name:       "basic auth rejected",
			apiKey:     "secret",
			header:     "Basic dXNlcjpwYXNz",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := authMiddleware(tc.apiKey, okHandler)
			req := httptest.NewRequest(http.MethodPost, "/api/answer", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Errorf("expected %d, got %d", tc.wantStatus, w.Code)
			}
			if tc.wantStatus == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate header on 401")
			}
		})
	}
}

// TestBearerToken exercises the header extraction helper directly.
func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header string
		want   string
	}{
		{"Bearer mytoken", "mytoken"},
		{"bearer mytoken", "mytoken"},
		{"BEARER mytoken", "mytoken"},
		{"Bearer  spaced ", "spaced"},
		{"Basic dXNlcjpwYXNz", ""},
		{"", ""},
		{"Bearer", ""},
		{"token only", ""},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if got := bearerToken(req); got != tc.want {
			t.Errorf("header=%q: expected %q, got %q", tc.header, tc.want, got)
		}
	}
}
