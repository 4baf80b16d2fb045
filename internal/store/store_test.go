package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_RunsMigrations(t *testing.T) {
	s := testStore(t)

	tables := []string{"sessions", "session_classes", "settings"}
	for _, table := range tables {
		var name string
		err := s.DB().QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`,
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q missing after migrations: %v", table, err)
		}
	}
}

func TestNew_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	first, err := New(path)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := first.Settings().Set("classes", "cat,dog"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	// Migrations must be safe to run again on an existing database.
	second, err := New(path)
	if err != nil {
		t.Fatalf("reopening store failed: %v", err)
	}
	defer second.Close()

	value, err := second.Settings().Get("classes")
	if err != nil {
		t.Fatalf("Get() after reopen failed: %v", err)
	}
	if value != "cat,dog" {
		t.Errorf("Get() = %q, want %q", value, "cat,dog")
	}
}

func TestSessionRepository_CreateAndFinish(t *testing.T) {
	s := testStore(t)
	repo := s.Sessions()

	sess := &Session{ID: "sess-1"}
	if err := repo.Create(sess); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if sess.StartedAt.IsZero() {
		t.Error("Create() should default StartedAt")
	}

	counts := map[string]int{"cat": 12, "dog": 7}
	if err := repo.Finish("sess-1", 300, counts); err != nil {
		t.Fatalf("Finish() failed: %v", err)
	}

	got, err := repo.GetByID("sess-1")
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if got.EndedAt == nil {
		t.Error("EndedAt should be set after Finish")
	}
	if got.Frames != 300 {
		t.Errorf("Frames = %d, want 300", got.Frames)
	}

	classCounts, err := repo.ClassCounts("sess-1")
	if err != nil {
		t.Fatalf("ClassCounts() failed: %v", err)
	}
	if len(classCounts) != 2 {
		t.Fatalf("ClassCounts() returned %d rows, want 2", len(classCounts))
	}
	// Ordered by class name.
	if classCounts[0].ClassName != "cat" || classCounts[0].Examples != 12 {
		t.Errorf("ClassCounts()[0] = %+v, want cat/12", classCounts[0])
	}
	if classCounts[1].ClassName != "dog" || classCounts[1].Examples != 7 {
		t.Errorf("ClassCounts()[1] = %+v, want dog/7", classCounts[1])
	}
}

func TestSessionRepository_FinishUnknownSession(t *testing.T) {
	s := testStore(t)

	err := s.Sessions().Finish("missing", 0, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Finish() error = %v, want ErrNotFound", err)
	}
}

func TestSessionRepository_GetByID_NotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.Sessions().GetByID("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestSessionRepository_List(t *testing.T) {
	s := testStore(t)
	repo := s.Sessions()

	for _, id := range []string{"a", "b", "c"} {
		if err := repo.Create(&Session{ID: id}); err != nil {
			t.Fatalf("Create(%q) failed: %v", id, err)
		}
	}

	sessions, err := repo.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(sessions) != 3 {
		t.Errorf("List() returned %d sessions, want 3", len(sessions))
	}
	for _, sess := range sessions {
		if sess.EndedAt != nil {
			t.Errorf("session %q should not have EndedAt yet", sess.ID)
		}
	}
}

func TestSettingsRepository(t *testing.T) {
	s := testStore(t)
	repo := s.Settings()

	if _, err := repo.Get("classes"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() on empty table error = %v, want ErrNotFound", err)
	}

	if err := repo.Set("classes", "one,two"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	value, err := repo.Get("classes")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if value != "one,two" {
		t.Errorf("Get() = %q, want %q", value, "one,two")
	}

	// Set replaces rather than duplicates.
	if err := repo.Set("classes", "cat,dog"); err != nil {
		t.Fatalf("second Set() failed: %v", err)
	}

	if err := repo.Set("dataset_root", "data"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	all, err := repo.All()
	if err != nil {
		t.Fatalf("All() failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("All() returned %d settings, want 2", len(all))
	}
	if all["classes"] != "cat,dog" {
		t.Errorf(`All()["classes"] = %q, want "cat,dog"`, all["classes"])
	}
}
