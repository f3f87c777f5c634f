package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Fatal("database file should not exist before creating store")
	}

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file should exist after creating store")
	}
}

func TestNewStore_RunsMigrations(t *testing.T) {
	s := testStore(t)

	tables := []string{"signs", "samples", "training_runs"}
	for _, table := range tables {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q should exist: %v", table, err)
		}
	}
}

func TestSignRepository_CreateAndGet(t *testing.T) {
	s := testStore(t)
	signs := s.Signs()

	sign := &Sign{Name: "hello"}
	if err := signs.Create(sign); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sign.ID == "" {
		t.Error("Create() should assign an ID")
	}

	got, err := signs.GetByName("hello")
	if err != nil {
		t.Fatalf("GetByName() error = %v", err)
	}
	if got.ID != sign.ID || got.Name != "hello" {
		t.Errorf("got %+v, want id %q name hello", got, sign.ID)
	}

	if _, err := signs.GetByName("absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByName(absent) error = %v, want ErrNotFound", err)
	}
}

func TestSignRepository_GetOrCreate(t *testing.T) {
	s := testStore(t)
	signs := s.Signs()

	first, err := signs.GetOrCreate("yes")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	second, err := signs.GetOrCreate("yes")
	if err != nil {
		t.Fatalf("GetOrCreate() second call error = %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("repeated GetOrCreate returned different IDs: %q vs %q", first.ID, second.ID)
	}
}

func TestSignRepository_ListSorted(t *testing.T) {
	s := testStore(t)
	signs := s.Signs()

	for _, name := range []string{"no", "hello", "yes"} {
		if err := signs.Create(&Sign{Name: name}); err != nil {
			t.Fatalf("Create(%q) error = %v", name, err)
		}
	}

	list, err := signs.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"hello", "no", "yes"}
	if len(list) != len(want) {
		t.Fatalf("got %d signs, want %d", len(list), len(want))
	}
	for i, name := range want {
		if list[i].Name != name {
			t.Errorf("sign %d = %q, want %q", i, list[i].Name, name)
		}
	}
}

func TestSignRepository_DeleteCascades(t *testing.T) {
	s := testStore(t)

	sign, err := s.Signs().GetOrCreate("hello")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if err := s.Samples().Create(&Sample{
		SignID: sign.ID, Index: 0, Path: "hello/0.npy", Frames: 30, Features: 159,
	}); err != nil {
		t.Fatalf("Create sample error = %v", err)
	}

	if err := s.Signs().Delete(sign.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	samples, err := s.Samples().ListBySign(sign.ID)
	if err != nil {
		t.Fatalf("ListBySign() error = %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("samples should cascade on sign delete, got %d", len(samples))
	}

	if err := s.Signs().Delete(sign.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestSampleRepository_ListAndCount(t *testing.T) {
	s := testStore(t)

	hello, err := s.Signs().GetOrCreate("hello")
	if err != nil {
		t.Fatal(err)
	}
	yes, err := s.Signs().GetOrCreate("yes")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := s.Samples().Create(&Sample{
			SignID: hello.ID, Index: i, Path: "hello", Frames: 30, Features: 159,
		}); err != nil {
			t.Fatalf("Create sample %d error = %v", i, err)
		}
	}
	if err := s.Samples().Create(&Sample{
		SignID: yes.ID, Index: 0, Path: "yes", Frames: 30, Features: 159,
	}); err != nil {
		t.Fatal(err)
	}

	list, err := s.Samples().ListBySign(hello.ID)
	if err != nil {
		t.Fatalf("ListBySign() error = %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d samples, want 3", len(list))
	}
	for i, sample := range list {
		if sample.Index != i {
			t.Errorf("sample %d has index %d", i, sample.Index)
		}
	}

	counts, err := s.Samples().CountBySign()
	if err != nil {
		t.Fatalf("CountBySign() error = %v", err)
	}
	if counts["hello"] != 3 || counts["yes"] != 1 {
		t.Errorf("counts = %v, want hello:3 yes:1", counts)
	}
}

func TestSampleRepository_DuplicateIndexRejected(t *testing.T) {
	s := testStore(t)

	sign, err := s.Signs().GetOrCreate("hello")
	if err != nil {
		t.Fatal(err)
	}

	sample := &Sample{SignID: sign.ID, Index: 0, Path: "hello/0.npy", Frames: 30, Features: 159}
	if err := s.Samples().Create(sample); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	dup := &Sample{SignID: sign.ID, Index: 0, Path: "hello/0.npy", Frames: 30, Features: 159}
	if err := s.Samples().Create(dup); err == nil {
		t.Error("expected error for duplicate sample index")
	}
}

func TestRunRepository_CreateAndList(t *testing.T) {
	s := testStore(t)
	runs := s.Runs()

	run := &TrainingRun{
		Samples:     60,
		Classes:     3,
		Epochs:      42,
		ValAccuracy: 0.917,
		ModelDir:    "models/v1",
	}
	if err := runs.Create(run); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if run.ID == "" {
		t.Error("Create() should assign an ID")
	}

	got, err := runs.GetByID(run.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Epochs != 42 || got.ValAccuracy != 0.917 || got.ModelDir != "models/v1" {
		t.Errorf("got %+v", got)
	}

	if _, err := runs.GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrNotFound", err)
	}

	list, err := runs.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("got %d runs, want 1", len(list))
	}
}
