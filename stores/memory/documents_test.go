package memory

import (
	"context"
	"encoding/json"
	"errors"
	"notebook-server/core"
	"sync"
	"testing"
	"time"
)

func TestNewDocumentStore(t *testing.T) {
	store := NewDocumentStore()
	if store == nil {
		t.Fatal("NewDocumentStore() returned nil")
	}
}

func TestSave_Create(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	nb := &core.Notebook{
		Title:   "Sales",
		Content: json.RawMessage(`{"cells":[]}`),
	}

	id, action, err := store.Save(ctx, nb, "demo")
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	// Verify the ID is a valid ULID format (26 characters)
	if len(id) != 26 {
		t.Errorf("Save() returned invalid ID length: got %d, want 26", len(id))
	}
	if action != core.AuditCreate {
		t.Errorf("Save() action mismatch: got %q, want %q", action, core.AuditCreate)
	}

	retrieved, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if string(retrieved.Content) != `{"cells":[]}` {
		t.Errorf("Get() content mismatch: got %s", retrieved.Content)
	}
	if retrieved.Owner != "demo" {
		t.Errorf("Get() owner mismatch: got %q, want %q", retrieved.Owner, "demo")
	}
}

func TestSave_Update(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	id, _, err := store.Save(ctx, &core.Notebook{Title: "v1", Content: json.RawMessage(`1`)}, "alice")
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	_, action, err := store.Save(ctx, &core.Notebook{ID: id, Title: "v2", Content: json.RawMessage(`2`)}, "bob")
	if err != nil {
		t.Fatalf("Save() update failed: %v", err)
	}
	if action != core.AuditUpdate {
		t.Errorf("Save() action mismatch: got %q, want %q", action, core.AuditUpdate)
	}

	retrieved, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if retrieved.Title != "v2" || string(retrieved.Content) != "2" {
		t.Errorf("Update not applied: got title %q content %s", retrieved.Title, retrieved.Content)
	}
	if retrieved.Owner != "alice" {
		t.Errorf("Update must keep the original owner: got %q", retrieved.Owner)
	}
}

func TestSave_UpdateUnknown(t *testing.T) {
	store := NewDocumentStore()

	_, _, err := store.Save(context.Background(), &core.Notebook{ID: "missing", Title: "x"}, "demo")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Save() on unknown id should return ErrNotFound, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	store := NewDocumentStore()

	_, err := store.Get(context.Background(), "nonexistent-id")
	if err == nil {
		t.Fatal("Get() should return error for nonexistent ID")
	}
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get() error should wrap ErrNotFound, got %v", err)
	}
}

func TestList_NewestFirstWithoutContent(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	base := time.Unix(1700000000, 0)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first, _, _ := store.Save(ctx, &core.Notebook{Title: "first", Content: json.RawMessage(`{}`)}, "demo")
	second, _, _ := store.Save(ctx, &core.Notebook{Title: "second", Content: json.RawMessage(`{}`)}, "demo")
	if _, _, err := store.Save(ctx, &core.Notebook{ID: first, Title: "first again"}, "demo"); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	notebooks, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(notebooks) != 2 {
		t.Fatalf("Expected 2 notebooks, got %d", len(notebooks))
	}
	if notebooks[0].ID != first || notebooks[1].ID != second {
		t.Errorf("List() order mismatch: got %s, %s", notebooks[0].ID, notebooks[1].ID)
	}
	for _, nb := range notebooks {
		if nb.Content != nil {
			t.Errorf("List() should not include content, got %s", nb.Content)
		}
	}
}

func TestAudit_RecordsEverySave(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	id, _, _ := store.Save(ctx, &core.Notebook{Title: "draft"}, "alice")
	store.Save(ctx, &core.Notebook{ID: id, Title: "final"}, "bob")
	store.Save(ctx, &core.Notebook{Title: "other"}, "carol")

	entries, err := store.Audit(ctx, id)
	if err != nil {
		t.Fatalf("Audit() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 audit entries, got %d", len(entries))
	}
	if entries[0].Action != core.AuditCreate || entries[0].Who != "alice" {
		t.Errorf("Unexpected first entry: %+v", entries[0])
	}
	if entries[1].Action != core.AuditUpdate || entries[1].Who != "bob" {
		t.Errorf("Unexpected second entry: %+v", entries[1])
	}
	if string(entries[1].Details) != `{"title":"final"}` {
		t.Errorf("Unexpected details: %s", entries[1].Details)
	}
}

func TestConcurrentSave(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	numGoroutines := 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	ids := make(map[string]bool)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, _, err := store.Save(ctx, &core.Notebook{Title: "concurrent"}, "demo")
			if err != nil {
				t.Errorf("Concurrent Save() failed: %v", err)
				return
			}
			mu.Lock()
			ids[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(ids) != numGoroutines {
		t.Errorf("Expected %d unique IDs, got %d", numGoroutines, len(ids))
	}
}

func TestUsers_CreateAndAuthenticate(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	if err := store.CreateUser(ctx, "demo", "demo"); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}

	ok, err := store.Authenticate(ctx, "demo", "demo")
	if err != nil || !ok {
		t.Errorf("Authenticate() with correct password: ok=%v err=%v", ok, err)
	}

	ok, err = store.Authenticate(ctx, "demo", "wrong")
	if err != nil || ok {
		t.Errorf("Authenticate() with wrong password: ok=%v err=%v", ok, err)
	}

	ok, err = store.Authenticate(ctx, "nobody", "demo")
	if err != nil || ok {
		t.Errorf("Authenticate() for unknown user: ok=%v err=%v", ok, err)
	}
}

func TestUsers_Duplicate(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	if err := store.CreateUser(ctx, "demo", "demo"); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	if err := store.CreateUser(ctx, "demo", "other"); !errors.Is(err, core.ErrUserExists) {
		t.Errorf("Duplicate CreateUser() should return ErrUserExists, got %v", err)
	}
}
