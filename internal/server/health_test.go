package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// stubPinger is a canned-result Pinger for probe tests.
type stubPinger struct {
	name string
	err  error
}

func (p *stubPinger) Name() string                 { return p.name }
func (p *stubPinger) Ping(_ context.Context) error { return p.err }

// TestHandleHealth verifies that liveness always reports ok with a JSON body,
// independent of dependency state.
func TestHandleHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.pingers = []Pinger{&stubPinger{name: "qdrant", err: errors.New("down")}}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status: expected %q, got %q", "ok", body["status"])
	}
}

// TestHandleReady covers the readiness matrix: no probes, all healthy, a
// partial failure, and a total outage.
func TestHandleReady(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pingers    []Pinger
		wantStatus int
		wantReady  bool
		wantFailed []string
	}{
		{
			name:       "no probes registered",
			wantStatus: http.StatusOK,
			wantReady:  true,
		},
		{
			name: "all dependencies healthy",
			pingers: []Pinger{
				&stubPinger{name: "ollama"},
				&stubPinger{name: "qdrant"},
			},
			wantStatus: http.StatusOK,
			wantReady:  true,
		},
		{
			name: "one dependency failing",
			pingers: []Pinger{
				&stubPinger{name: "ollama"},
				&stubPinger{name: "qdrant", err: errors.New("connection refused")},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantReady:  false,
			wantFailed: []string{"qdrant"},
		},
		{
			name: "every dependency failing",
			pingers: []Pinger{
				&stubPinger{name: "ollama", err: errors.New("timeout")},
				&stubPinger{name: "qdrant", err: errors.New("connection refused")},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantReady:  false,
			wantFailed: []string{"ollama", "qdrant"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newTestServer()
			s.pingers = tc.pingers

			req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
			w := httptest.NewRecorder()
			s.handleReady(w, req)

			if w.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d — body: %s", tc.wantStatus, w.Code, w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type: expected application/json, got %q", ct)
			}

			var resp readyResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Ready != tc.wantReady {
				t.Errorf("ready: expected %v, got %v", tc.wantReady, resp.Ready)
			}
			if len(resp.Checks) != len(tc.pingers) {
				t.Fatalf("expected %d checks, got %d", len(tc.pingers), len(resp.Checks))
			}

			failed := map[string]readyCheck{}
			for _, c := range resp.Checks {
				if !c.OK {
					failed[c.Name] = c
				}
			}
			if len(failed) != len(tc.wantFailed) {
				t.Fatalf("expected %d failing checks, got %d", len(tc.wantFailed), len(failed))
			}
			for _, name := range tc.wantFailed {
				c, ok := failed[name]
				if !ok {
					t.Errorf("check %q: expected ok:false", name)
					continue
				}
				if c.Error == "" {
					t.Errorf("check %q: expected non-empty error", name)
				}
			}
		})
	}
}

// TestMultiPinger verifies that the aggregate probe stops at the first
// failure and prefixes the error with the dependency name.
func TestMultiPinger(t *testing.T) {
	t.Parallel()

	healthy := NewMultiPinger(&stubPinger{name: "ollama"}, &stubPinger{name: "qdrant"})
	if err := healthy.Ping(context.Background()); err != nil {
		t.Errorf("expected nil error from healthy probes, got %v", err)
	}

	broken := NewMultiPinger(
		&stubPinger{name: "ollama"},
		&stubPinger{name: "qdrant", err: errors.New("unreachable")},
	)
	err := broken.Ping(context.Background())
	if err == nil {
		t.Fatal("expected error from failing probe")
	}
	if got := err.Error(); got != "qdrant: unreachable" {
		t.Errorf("expected error %q, got %q", "qdrant: unreachable", got)
	}
}
