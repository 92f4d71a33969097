package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"crmcore/pkg/domain"
)

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crm.db")
	ctx := context.Background()

	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	var lead domain.Lead
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		lead, txErr = tx.CreateLead(domain.Lead{Name: "Durable", Email: "d@example.com", Status: domain.StatusNew})
		if txErr != nil {
			return txErr
		}
		if err := tx.SetCurrentUser(0); err == nil {
			t.Fatalf("expected unknown current user to fail")
		}
		_, txErr = tx.AppendActivity(domain.ActivityEntry{Type: domain.ActivityLeadCreated, Description: "Lead 'Durable' created and assigned to A"})
		return txErr
	}); err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, ok := reopened.GetLead(lead.ID)
	if !ok {
		t.Fatalf("expected lead to survive reopen")
	}
	if got.Name != "Durable" {
		t.Fatalf("unexpected lead %+v", got)
	}
	log := reopened.ListActivity()
	if len(log) != 1 || log[0].Type != domain.ActivityLeadCreated {
		t.Fatalf("expected activity to survive reopen, got %+v", log)
	}

	// Sequences must continue, not restart.
	if _, err := reopened.RunInTransaction(ctx, func(tx domain.Transaction) error {
		created, txErr := tx.CreateLead(domain.Lead{Name: "Next"})
		if txErr != nil {
			return txErr
		}
		if created.ID != lead.ID+1 {
			t.Fatalf("expected id %d after reopen, got %d", lead.ID+1, created.ID)
		}
		return nil
	}); err != nil {
		t.Fatalf("transaction after reopen: %v", err)
	}
}

func TestStoreDefaultsPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "crm.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open store with nested path: %v", err)
	}
	defer func() { _ = store.Close() }()
	if store.Path() != path {
		t.Fatalf("expected path %s, got %s", path, store.Path())
	}
	if store.DB() == nil {
		t.Fatalf("expected exposed db handle")
	}
}
