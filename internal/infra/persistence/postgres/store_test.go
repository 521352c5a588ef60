package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"cpgcore/internal/infra/persistence/postgres/testutil"
)

func openStub(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn
}

func TestNewStoreEnsuresTable(t *testing.T) {
	_, conn := openStub(t)
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS cpgcore_runs") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected runs table DDL, got %v", conn.Execs)
	}
}

func TestPutGetList(t *testing.T) {
	ctx := context.Background()
	store, conn := openStub(t)
	started := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := store.Put(ctx, "run-1", started, []byte(`{"id":"run-1"}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, "run-1", started, []byte(`{"id":"run-1","status":"succeeded"}`)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got := len(conn.Runs); got != 1 {
		t.Fatalf("expected upsert to keep one row, got %d", got)
	}
	payload, found, err := store.Get(ctx, "run-1")
	if err != nil || !found || !strings.Contains(string(payload), "succeeded") {
		t.Fatalf("get = %s found=%v err=%v", payload, found, err)
	}
	if _, found, err := store.Get(ctx, "run-2"); err != nil || found {
		t.Fatalf("unexpected run-2 found=%v err=%v", found, err)
	}
	all, err := store.List(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("list = %q err=%v", all, err)
	}
}

func TestPutFailures(t *testing.T) {
	ctx := context.Background()
	store, conn := openStub(t)
	conn.FailBegin = true
	if err := store.Put(ctx, "run", time.Now(), []byte("{}")); err == nil {
		t.Fatalf("expected begin failure")
	}
	conn.FailBegin = false
	conn.FailCommit = true
	if err := store.Put(ctx, "run", time.Now(), []byte("{}")); err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit failure, got %v", err)
	}
	conn.FailCommit = false
	conn.RowsErr = errors.New("boom")
	if _, err := store.List(ctx); err == nil {
		t.Fatalf("expected iteration failure")
	}
}

func TestNewStorePingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "postgres://example"); err == nil {
		t.Fatalf("expected ping failure")
	}
}
