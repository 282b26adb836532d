package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/livecue/db"
	"github.com/onnwee/livecue/testutil"
)

func TestStatusWithPostgresAudit(t *testing.T) {
	store, session := testutil.SetupTestStore(t)
	ctx := context.Background()
	if err := store.RecordCommand(ctx, db.CommandEvent{
		SessionID: session, Username: "mod", Message: "!refreshconfig",
		Kind: db.KindReload, Outcome: "unchanged", CreatedAt: time.Now().Add(24 * time.Hour),
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	rr := httptest.NewRecorder()
	newTestMux(fakeStream{open: true}, store).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status?limit=1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Recent []db.CommandEvent `json:"recent_commands"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Recent) != 1 || body.Recent[0].SessionID != session {
		t.Errorf("recent = %+v", body.Recent)
	}

	rr = httptest.NewRecorder()
	newTestMux(fakeStream{open: true}, store).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("readyz with live db = %d", rr.Code)
	}
}
