package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/onnwee/livecue/db"
)

// SetupTestDB opens TEST_PG_DSN with the audit schema applied, skipping the test when
// the variable is unset. The pool is closed on cleanup.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := db.Connect(dsn)
	if err != nil {
		t.Fatalf("open audit database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if err := db.Migrate(context.Background(), database); err != nil {
		t.Fatalf("migrate audit schema: %v", err)
	}
	return database
}

// SetupTestStore is SetupTestDB wrapped in a db.Store. It also returns a session id
// unique to the test; rows written under it are deleted on cleanup.
func SetupTestStore(t *testing.T) (*db.Store, string) {
	t.Helper()
	database := SetupTestDB(t)
	session := "test-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = database.ExecContext(context.Background(), `DELETE FROM command_events WHERE session_id = $1`, session)
	})
	return db.NewStore(database), session
}
