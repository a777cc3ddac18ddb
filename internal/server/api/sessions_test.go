package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/ayusman/cragtrack/internal/store"
)

func TestSessionsHandler(t *testing.T) {
	s := newTestStore(t)
	h := NewSessionsHandler(s)

	for _, id := range []string{"a", "b", "c"} {
		sess := &store.Session{
			ID:        id,
			Status:    "completed",
			StartTime: "2026-03-01T10:00:00.000Z",
			Record:    json.RawMessage(`{"session":{"status":"completed"}}`),
		}
		if err := s.Sessions().Save(sess); err != nil {
			t.Fatal(err)
		}
	}

	rec := do(t, h, http.MethodGet, "/api/sessions?limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var list listSessionsResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(list.Sessions))
	}
	if list.Sessions[0].Record != nil {
		t.Error("list should not include records")
	}

	rec = do(t, h, http.MethodGet, "/api/sessions/b", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var one sessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&one); err != nil {
		t.Fatal(err)
	}
	if one.ID != "b" || string(one.Record) != `{"session":{"status":"completed"}}` {
		t.Errorf("unexpected session: %+v", one)
	}

	if rec := do(t, h, http.MethodGet, "/api/sessions/zzz", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing: status %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/sessions?limit=x", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/sessions", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST: status %d", rec.Code)
	}
}
