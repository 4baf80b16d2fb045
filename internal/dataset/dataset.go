// Package dataset implements the on-disk label store: one directory per
// class under a common root, holding sequentially numbered JPEG examples.
// The directory tree is the only persisted state; reload rebuilds the
// classifier from it.
package dataset

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// ErrInvalidClass is returned for class names that cannot map to a directory.
var ErrInvalidClass = errors.New("invalid class name")

// Store maps classes to ordered sequences of example images on disk.
// It keeps per-class counters so example indices stay contiguous even
// when AddExample is called dozens of times per second.
type Store struct {
	root string

	mu sync.Mutex
	// next example index per class; always max existing index + 1
	next map[string]int
}

// New creates a Store rooted at the given directory, creating it if needed,
// and seeds the per-class counters from whatever already exists on disk.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create dataset root: %w", err)
	}

	s := &Store{
		root: root,
		next: make(map[string]int),
	}

	if _, err := s.Scan(); err != nil {
		return nil, err
	}

	return s, nil
}

// Root returns the dataset root directory.
func (s *Store) Root() string {
	return s.root
}

// EnsureClass creates the directory for a class if it does not exist.
// Idempotent: an existing class directory is never touched.
func (s *Store) EnsureClass(name string) error {
	if !validClassName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidClass, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ensureClassLocked(name)
}

func (s *Store) ensureClassLocked(name string) error {
	if err := os.MkdirAll(filepath.Join(s.root, name), 0755); err != nil {
		return fmt.Errorf("create class directory %q: %w", name, err)
	}

	if _, ok := s.next[name]; !ok {
		s.next[name] = 0
	}

	return nil
}

// AddExample encodes the frame as JPEG and writes it as the next numbered
// example for the class, returning the assigned index. The file is written
// to a temporary name and renamed into place so a crash mid-write never
// leaves a half-written example behind for Scan to trip over.
func (s *Store) AddExample(class string, frame *gocv.Mat) (int, error) {
	if !validClassName(class) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClass, class)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureClassLocked(class); err != nil {
		return 0, err
	}

	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return 0, fmt.Errorf("encode example for %q: %w", class, err)
	}
	defer buf.Close()

	index := s.next[class]
	dir := filepath.Join(s.root, class)

	tmp, err := os.CreateTemp(dir, ".example-*")
	if err != nil {
		return 0, fmt.Errorf("write example %d for %q: %w", index, class, err)
	}

	if _, err := tmp.Write(buf.GetBytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("write example %d for %q: %w", index, class, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("write example %d for %q: %w", index, class, err)
	}

	final := filepath.Join(dir, fmt.Sprintf("%d.jpg", index))
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("store example %d for %q: %w", index, class, err)
	}

	s.next[class] = index + 1
	return index, nil
}

// Scan walks the dataset tree and returns the class -> ordered example
// paths mapping. Files that are not numbered JPEGs are skipped with a log
// line rather than aborting the scan. Scan also rebuilds the in-memory
// counters, so the next assigned index is always highest existing + 1.
func (s *Store) Scan() (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("scan dataset root: %w", err)
	}

	result := make(map[string][]string)
	next := make(map[string]int)

	for _, entry := range entries {
		if !entry.IsDir() || !validClassName(entry.Name()) {
			continue
		}

		class := entry.Name()
		paths, highest := s.scanClass(class)

		result[class] = paths
		next[class] = highest + 1
	}

	s.next = next
	return result, nil
}

// scanClass collects the numbered examples of one class, ordered by index.
// Returns the ordered paths and the highest index seen (-1 if none).
func (s *Store) scanClass(class string) ([]string, int) {
	dir := filepath.Join(s.root, class)

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("dataset: skipping class %q: %v", class, err)
		return nil, -1
	}

	type example struct {
		index int
		path  string
	}

	var examples []example
	highest := -1

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		index, ok := parseExampleName(entry.Name())
		if !ok {
			// Temp files and strays are expected; only mention real oddities.
			if !strings.HasPrefix(entry.Name(), ".") {
				log.Printf("dataset: skipping %s/%s: not a numbered example", class, entry.Name())
			}
			continue
		}

		examples = append(examples, example{index: index, path: filepath.Join(dir, entry.Name())})
		if index > highest {
			highest = index
		}
	}

	sort.Slice(examples, func(i, j int) bool {
		return examples[i].index < examples[j].index
	})

	paths := make([]string, len(examples))
	for i, ex := range examples {
		paths[i] = ex.path
	}

	return paths, highest
}

// Count returns the next example index for a class, which equals the
// example count as long as indices are contiguous.
func (s *Store) Count(class string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next[class]
}

// Counts returns a copy of the per-class counters.
func (s *Store) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int, len(s.next))
	for class, n := range s.next {
		counts[class] = n
	}
	return counts
}

// Classes returns the known class names in sorted order.
func (s *Store) Classes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	classes := make([]string, 0, len(s.next))
	for class := range s.next {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes
}

// Reset deletes every class directory and zeroes the counters.
// The dataset root itself is preserved.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("reset dataset: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, entry.Name())); err != nil {
			return fmt.Errorf("reset class %q: %w", entry.Name(), err)
		}
	}

	s.next = make(map[string]int)
	return nil
}

// parseExampleName extracts the index from names like "42.jpg".
func parseExampleName(name string) (int, bool) {
	base, ok := strings.CutSuffix(name, ".jpg")
	if !ok {
		return 0, false
	}

	index, err := strconv.Atoi(base)
	if err != nil || index < 0 {
		return 0, false
	}

	return index, true
}

// validClassName rejects names that would escape the dataset root or
// collide with hidden files.
func validClassName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
