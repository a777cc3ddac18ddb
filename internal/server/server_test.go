package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

type fakeSession struct {
	latest []byte
	ended  int
	resets int
	endErr error
	// persistErr is returned alongside the final record.
	persistErr error
}

func (f *fakeSession) Latest() ([]byte, bool) { return f.latest, f.latest != nil }

func (f *fakeSession) EndSession() ([]byte, error) {
	if f.endErr != nil {
		return nil, f.endErr
	}
	f.ended++
	f.latest = []byte(`{"session":{"status":"completed"}}`)
	return f.latest, f.persistErr
}

func (f *fakeSession) ResetHolds() ([]byte, error) {
	f.resets++
	f.latest = []byte(`{"session":{"status":"started"},"reset":true}`)
	return f.latest, nil
}

func (f *fakeSession) Stats() any { return map[string]int{"processed": 3} }

func TestServer_Health(t *testing.T) {
	s := New(Config{Session: &fakeSession{}, Hub: NewHub()})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}
		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
		pipeline, ok := response["pipeline"].(map[string]any)
		if !ok || pipeline["processed"] != float64(3) {
			t.Errorf("expected pipeline stats, got %v", response["pipeline"])
		}
		if response["viewers"] != float64(0) {
			t.Errorf("expected 0 viewers, got %v", response["viewers"])
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_Session(t *testing.T) {
	fs := &fakeSession{}
	s := New(Config{Session: fs})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("before any record: expected %d, got %d", http.StatusNotFound, rec.Code)
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/holds/reset", nil))
	if rec.Code != http.StatusOK || fs.resets != 1 {
		t.Fatalf("reset: status %d, resets %d", rec.Code, fs.resets)
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != string(fs.latest) {
		t.Errorf("latest: status %d body %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session/end", nil))
	if rec.Code != http.StatusOK || fs.ended != 1 {
		t.Fatalf("end: status %d, ended %d", rec.Code, fs.ended)
	}
	if rec.Body.String() != `{"session":{"status":"completed"}}` {
		t.Errorf("end body = %q", rec.Body.String())
	}

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/session"},
		{http.MethodGet, "/api/session/end"},
		{http.MethodGet, "/api/holds/reset"},
	} {
		rec = httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected %d, got %d", tc.method, tc.path, http.StatusMethodNotAllowed, rec.Code)
		}
	}
}

func TestServer_EndError(t *testing.T) {
	s := New(Config{Session: &fakeSession{endErr: errors.New("disk full")}})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session/end", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected %d, got %d", http.StatusInternalServerError, rec.Code)
	}
}

func TestServer_EndStoreError(t *testing.T) {
	fs := &fakeSession{persistErr: errors.New("persist session: disk full")}
	s := New(Config{Session: fs})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session/end", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected %d, got %d", http.StatusOK, rec.Code)
	}
	if rec.Body.String() != `{"session":{"status":"completed"}}` {
		t.Errorf("body = %s, want the final record", rec.Body.String())
	}
	if fs.ended != 1 {
		t.Errorf("ended = %d, want 1", fs.ended)
	}
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/api/nonexistent", "/api/session", "/api/walls", "/ws/session"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testContent := "<html><body>wall view</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir})

	t.Run("serves index.html at root path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if rec.Body.String() != testContent {
			t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
		}
	})

	t.Run("returns 404 for non-existent static files", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/nonexistent.html", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestNew(t *testing.T) {
	s := New(Config{StaticDir: "/some/path"})
	if s == nil {
		t.Fatal("expected non-nil server")
	}
	if s.config.StaticDir != "/some/path" {
		t.Errorf("expected StaticDir /some/path, got %s", s.config.StaticDir)
	}
	var _ http.Handler = s
}
