package postgres

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"crmcore/pkg/domain"
)

// The snapshot layer only relies on standard database/sql behavior, so tests
// swap the pgx driver for an embedded sqlite database via OverrideSQLOpen.
func overrideWithSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pg.db")
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return sql.Open("sqlite", path)
	})
	t.Cleanup(restore)
	return path
}

func TestStoreSnapshotRoundTrip(t *testing.T) {
	overrideWithSQLite(t)
	ctx := context.Background()

	store, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	var user domain.User
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		user, txErr = tx.CreateUser(domain.User{Name: "Priya", Email: "priya@example.com", Role: domain.RoleAdmin})
		if txErr != nil {
			return txErr
		}
		return tx.SetCurrentUser(user.ID)
	}); err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, ok := reopened.GetUser(user.ID)
	if !ok || got.Email != "priya@example.com" {
		t.Fatalf("expected user to survive reopen, got %+v ok=%v", got, ok)
	}
	current, ok := reopened.CurrentUser()
	if !ok || current.ID != user.ID {
		t.Fatalf("expected current user to survive reopen")
	}
}

func TestStoreRejectsUnreachableDatabase(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		// A DSN pointing at a directory fails on ping.
		return sql.Open("sqlite", "file:/nonexistent-dir/nope.db?mode=ro")
	})
	t.Cleanup(restore)

	if _, err := NewStore("", nil); err == nil {
		t.Fatalf("expected unreachable database error")
	}
}
