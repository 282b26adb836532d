package db

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping postgres test")
	}
	db, err := Connect(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM command_events WHERE session_id LIKE 'test-%'`); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	return db
}

func TestConnectRequiresDSN(t *testing.T) {
	if _, err := Connect(""); err == nil {
		t.Error("Connect(\"\") should fail")
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 2; i++ {
		if err := Migrate(context.Background(), db); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
	}
}

func TestStore_RecordAndRecent(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	base := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
	events := []CommandEvent{
		{SessionID: "test-s1", Username: "alice", Message: "!wave", Kind: KindTrigger, Expression: "wave", Outcome: "triggered", CreatedAt: base},
		{SessionID: "test-s1", Username: "bob", Message: "!wave", Kind: KindTrigger, Expression: "wave", Outcome: "cooldown", CreatedAt: base.Add(time.Second)},
		{SessionID: "test-s1", Username: "mod", Message: "!refreshconfig", Kind: KindReload, Outcome: "unchanged", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, ev := range events {
		if err := store.RecordCommand(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := store.RecentCommands(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("recent returned %d, want 2", len(got))
	}
	if got[0].Kind != KindReload || got[1].Outcome != "cooldown" {
		t.Errorf("recent order = %+v", got)
	}
	if !got[0].CreatedAt.Equal(base.Add(2 * time.Second)) {
		t.Errorf("created_at = %v, want %v", got[0].CreatedAt, base.Add(2*time.Second))
	}
}

func TestStore_RecordDefaultsTimestamp(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()
	if err := store.RecordCommand(ctx, CommandEvent{SessionID: "test-s2", Username: "mod", Message: "!enable wave", Kind: KindEnable, Expression: "wave", Outcome: "ok"}); err != nil {
		t.Fatalf("record: %v", err)
	}
}
