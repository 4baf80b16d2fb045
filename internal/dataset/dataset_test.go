package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

func testFrame(t *testing.T) *gocv.Mat {
	t.Helper()

	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 128, 255, 0), 32, 32, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return &m
}

func TestNew_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data")

	store, err := New(root)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if store.Root() != root {
		t.Errorf("Root() = %q, want %q", store.Root(), root)
	}

	info, err := os.Stat(root)
	if err != nil {
		t.Fatalf("root was not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("root is not a directory")
	}
}

func TestEnsureClass(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := store.EnsureClass("cat"); err != nil {
		t.Fatalf("EnsureClass() failed: %v", err)
	}

	if got := store.Count("cat"); got != 0 {
		t.Errorf("Count() after EnsureClass = %d, want 0", got)
	}

	// Idempotent: a second call must not disturb existing examples.
	if _, err := store.AddExample("cat", testFrame(t)); err != nil {
		t.Fatalf("AddExample() failed: %v", err)
	}
	if err := store.EnsureClass("cat"); err != nil {
		t.Fatalf("second EnsureClass() failed: %v", err)
	}
	if got := store.Count("cat"); got != 1 {
		t.Errorf("Count() after re-ensure = %d, want 1", got)
	}
}

func TestEnsureClass_InvalidNames(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	tests := []struct {
		name  string
		class string
	}{
		{name: "empty", class: ""},
		{name: "hidden", class: ".cat"},
		{name: "path separator", class: "cat/dog"},
		{name: "backslash", class: `cat\dog`},
		{name: "parent escape", class: "../escape"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.EnsureClass(tt.class); !errors.Is(err, ErrInvalidClass) {
				t.Errorf("EnsureClass(%q) error = %v, want ErrInvalidClass", tt.class, err)
			}
			if _, err := store.AddExample(tt.class, testFrame(t)); !errors.Is(err, ErrInvalidClass) {
				t.Errorf("AddExample(%q) error = %v, want ErrInvalidClass", tt.class, err)
			}
		})
	}
}

func TestAddExample_SequentialIndices(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	frame := testFrame(t)
	for want := 0; want < 10; want++ {
		index, err := store.AddExample("cat", frame)
		if err != nil {
			t.Fatalf("AddExample() #%d failed: %v", want, err)
		}
		if index != want {
			t.Errorf("AddExample() index = %d, want %d", index, want)
		}
	}

	if got := store.Count("cat"); got != 10 {
		t.Errorf("Count() = %d, want 10", got)
	}

	for i := 0; i < 10; i++ {
		path := filepath.Join(store.Root(), "cat", fmt.Sprintf("%d.jpg", i))
		if _, err := os.Stat(path); err != nil {
			t.Errorf("example %d.jpg missing: %v", i, err)
		}
	}
}

func TestAddExample_IndependentClassCounters(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	frame := testFrame(t)
	for i := 0; i < 3; i++ {
		if _, err := store.AddExample("cat", frame); err != nil {
			t.Fatalf("AddExample(cat) failed: %v", err)
		}
	}

	index, err := store.AddExample("dog", frame)
	if err != nil {
		t.Fatalf("AddExample(dog) failed: %v", err)
	}
	if index != 0 {
		t.Errorf("first dog index = %d, want 0", index)
	}
}

func TestScan_ResumesNumbering(t *testing.T) {
	root := t.TempDir()

	first, err := New(root)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	frame := testFrame(t)
	for i := 0; i < 5; i++ {
		if _, err := first.AddExample("cat", frame); err != nil {
			t.Fatalf("AddExample() failed: %v", err)
		}
	}

	// A fresh store over the same root picks up where the last one stopped.
	second, err := New(root)
	if err != nil {
		t.Fatalf("reopening store failed: %v", err)
	}

	if got := second.Count("cat"); got != 5 {
		t.Errorf("Count() after reopen = %d, want 5", got)
	}

	index, err := second.AddExample("cat", frame)
	if err != nil {
		t.Fatalf("AddExample() after reopen failed: %v", err)
	}
	if index != 5 {
		t.Errorf("index after reopen = %d, want 5", index)
	}
}

func TestScan_OrdersByIndexNotName(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	// 11 examples puts 10.jpg into play, which sorts before 2.jpg
	// lexicographically but must come after it here.
	frame := testFrame(t)
	for i := 0; i < 11; i++ {
		if _, err := store.AddExample("cat", frame); err != nil {
			t.Fatalf("AddExample() failed: %v", err)
		}
	}

	classes, err := store.Scan()
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}

	paths := classes["cat"]
	if len(paths) != 11 {
		t.Fatalf("Scan() found %d examples, want 11", len(paths))
	}
	for i, path := range paths {
		want := fmt.Sprintf("%d.jpg", i)
		if filepath.Base(path) != want {
			t.Errorf("paths[%d] = %s, want %s", i, filepath.Base(path), want)
		}
	}
}

func TestScan_SkipsStrayFiles(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := store.AddExample("cat", testFrame(t)); err != nil {
		t.Fatalf("AddExample() failed: %v", err)
	}

	dir := filepath.Join(store.Root(), "cat")
	strays := []string{"notes.txt", "photo.jpg.bak", ".DS_Store", "abc.jpg", "-1.jpg"}
	for _, name := range strays {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("stray"), 0644); err != nil {
			t.Fatalf("writing stray %s: %v", name, err)
		}
	}

	classes, err := store.Scan()
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}

	if got := len(classes["cat"]); got != 1 {
		t.Errorf("Scan() found %d examples, want 1 (strays must be skipped)", got)
	}
	if got := store.Count("cat"); got != 1 {
		t.Errorf("Count() after scan = %d, want 1", got)
	}
}

func TestScan_GapsInNumbering(t *testing.T) {
	root := t.TempDir()

	store, err := New(root)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	frame := testFrame(t)
	for i := 0; i < 4; i++ {
		if _, err := store.AddExample("cat", frame); err != nil {
			t.Fatalf("AddExample() failed: %v", err)
		}
	}

	// Someone deleted an example by hand.
	if err := os.Remove(filepath.Join(root, "cat", "1.jpg")); err != nil {
		t.Fatalf("removing example: %v", err)
	}

	classes, err := store.Scan()
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}
	if got := len(classes["cat"]); got != 3 {
		t.Errorf("Scan() found %d examples, want 3", got)
	}

	// Numbering continues from the highest survivor, never reusing 3.
	index, err := store.AddExample("cat", frame)
	if err != nil {
		t.Fatalf("AddExample() failed: %v", err)
	}
	if index != 4 {
		t.Errorf("index after gap = %d, want 4", index)
	}
}

func TestClasses_Sorted(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	for _, class := range []string{"zebra", "ant", "moth"} {
		if err := store.EnsureClass(class); err != nil {
			t.Fatalf("EnsureClass(%q) failed: %v", class, err)
		}
	}

	got := store.Classes()
	want := []string{"ant", "moth", "zebra"}
	if len(got) != len(want) {
		t.Fatalf("Classes() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Classes()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReset(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	frame := testFrame(t)
	for _, class := range []string{"cat", "dog"} {
		for i := 0; i < 3; i++ {
			if _, err := store.AddExample(class, frame); err != nil {
				t.Fatalf("AddExample(%q) failed: %v", class, err)
			}
		}
	}

	if err := store.Reset(); err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}

	if got := len(store.Classes()); got != 0 {
		t.Errorf("Classes() after reset has %d entries, want 0", got)
	}

	entries, err := os.ReadDir(store.Root())
	if err != nil {
		t.Fatalf("reading root after reset: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("root has %d entries after reset, want 0", len(entries))
	}

	// Numbering restarts from zero.
	index, err := store.AddExample("cat", frame)
	if err != nil {
		t.Fatalf("AddExample() after reset failed: %v", err)
	}
	if index != 0 {
		t.Errorf("index after reset = %d, want 0", index)
	}
}

func TestAddExample_ReadableByDecoder(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := store.AddExample("cat", testFrame(t)); err != nil {
		t.Fatalf("AddExample() failed: %v", err)
	}

	img := gocv.IMRead(filepath.Join(store.Root(), "cat", "0.jpg"), gocv.IMReadColor)
	defer img.Close()

	if img.Empty() {
		t.Error("stored example could not be decoded")
	}
	if img.Rows() != 32 || img.Cols() != 32 {
		t.Errorf("decoded example is %dx%d, want 32x32", img.Cols(), img.Rows())
	}
}
