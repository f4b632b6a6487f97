package storage_test

import (
	"context"
	"errors"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"testing"
	"time"

	"sxvrs/internal/services"
	"sxvrs/internal/storage"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func writeSized(t *testing.T, path string, size int, mtime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestReapDeletesOldestBeyondCeiling(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.mp4")
	b := filepath.Join(root, "b.mp4")
	c := filepath.Join(root, "c.mp4")
	writeSized(t, a, 40, baseTime.Add(1*time.Second))
	writeSized(t, b, 40, baseTime.Add(2*time.Second))
	writeSized(t, c, 40, baseTime.Add(3*time.Second))

	var notified []string
	result, err := storage.Reap(context.Background(), root, 100, storage.Options{
		OnDelete: func(path string) { notified = append(notified, path) },
	})
	if err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if !slices.Equal(result.Deleted, []string{a}) {
		t.Fatalf("deleted = %v, want [%s]", result.Deleted, a)
	}
	if !slices.Equal(notified, result.Deleted) {
		t.Fatalf("OnDelete saw %v, want %v", notified, result.Deleted)
	}
	if result.RemainingBytes != 80 || result.Kept != 2 || result.DeletedBytes != 40 {
		t.Fatalf("unexpected totals: %+v", result)
	}
	if exists(a) || !exists(b) || !exists(c) {
		t.Fatal("expected only a.mp4 to be removed")
	}
}

func TestReapIsIdempotent(t *testing.T) {
	root := t.TempDir()
	for i := range 6 {
		writeSized(t, filepath.Join(root, "day", string(rune('a'+i))+".mp4"), 30, baseTime.Add(time.Duration(i)*time.Minute))
	}

	first, err := storage.Reap(context.Background(), root, 100, storage.Options{})
	if err != nil {
		t.Fatalf("first Reap: %v", err)
	}
	if len(first.Deleted) != 3 {
		t.Fatalf("first pass deleted %d files, want 3", len(first.Deleted))
	}

	second, err := storage.Reap(context.Background(), root, 100, storage.Options{})
	if err != nil {
		t.Fatalf("second Reap: %v", err)
	}
	if len(second.Deleted) != 0 || len(second.RemovedDirs) != 0 {
		t.Fatalf("second pass should be a no-op, got %+v", second)
	}
	if second.RemainingBytes != first.RemainingBytes {
		t.Fatalf("remaining bytes changed: %d -> %d", first.RemainingBytes, second.RemainingBytes)
	}
}

func TestReapPrunesEmptyDirectoriesDeepestFirst(t *testing.T) {
	root := t.TempDir()
	oldDay := filepath.Join(root, "2024-04-01")
	newDay := filepath.Join(root, "2024-05-01")
	active := filepath.Join(root, "2024-05-02")
	writeSized(t, filepath.Join(oldDay, "hour", "old.mp4"), 80, baseTime)
	writeSized(t, filepath.Join(newDay, "new.mp4"), 80, baseTime.Add(time.Hour))
	if err := os.MkdirAll(filepath.Join(root, "empty", "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.MkdirAll(active, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	result, err := storage.Reap(context.Background(), root, 100, storage.Options{Keep: []string{active}})
	if err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if len(result.Deleted) != 1 {
		t.Fatalf("deleted = %v", result.Deleted)
	}
	if exists(oldDay) || exists(filepath.Join(root, "empty")) {
		t.Fatal("expected emptied directories to be removed")
	}
	if !exists(root) || !exists(newDay) || !exists(active) {
		t.Fatal("root, populated, and kept directories must remain")
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == root || path == active {
			return err
		}
		entries, readErr := os.ReadDir(path)
		if readErr != nil {
			return readErr
		}
		if len(entries) == 0 {
			t.Errorf("empty directory left behind: %s", path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
}

func TestReapEvictionIsMonotonicByAge(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		root := t.TempDir()
		rng := rand.New(rand.NewPCG(seed, seed*7))
		mtimes := map[string]time.Time{}
		var total int64
		for i := range 40 {
			dir := filepath.Join(root, "d"+string(rune('0'+rng.IntN(4))), "s"+string(rune('0'+rng.IntN(3))))
			path := filepath.Join(dir, "f"+strconv.Itoa(i)+".bin")
			size := 1 + rng.IntN(200)
			mtime := baseTime.Add(time.Duration(rng.IntN(100000)) * time.Second)
			writeSized(t, path, size, mtime)
			mtimes[path] = mtime
			total += int64(size)
		}
		ceiling := total / 3

		result, err := storage.Reap(context.Background(), root, ceiling, storage.Options{})
		if err != nil {
			t.Fatalf("seed %d: Reap: %v", seed, err)
		}
		remaining, err := storage.DirSize(context.Background(), root)
		if err != nil {
			t.Fatalf("seed %d: DirSize: %v", seed, err)
		}
		if remaining > ceiling {
			t.Fatalf("seed %d: remaining %d exceeds ceiling %d", seed, remaining, ceiling)
		}
		if remaining != result.RemainingBytes {
			t.Fatalf("seed %d: result reports %d remaining, disk has %d", seed, result.RemainingBytes, remaining)
		}

		var newestDeleted time.Time
		for _, path := range result.Deleted {
			if mtimes[path].After(newestDeleted) {
				newestDeleted = mtimes[path]
			}
		}
		for path, mtime := range mtimes {
			if !exists(path) {
				continue
			}
			if mtime.Before(newestDeleted) {
				t.Fatalf("seed %d: kept %s (%s) is older than a deleted file (%s)", seed, path, mtime, newestDeleted)
			}
		}
	}
}

func TestReapBreaksTimestampTiesByPath(t *testing.T) {
	root := t.TempDir()
	first := filepath.Join(root, "a.mp4")
	second := filepath.Join(root, "b.mp4")
	writeSized(t, first, 60, baseTime)
	writeSized(t, second, 60, baseTime)

	result, err := storage.Reap(context.Background(), root, 100, storage.Options{})
	if err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if !slices.Equal(result.Deleted, []string{second}) {
		t.Fatalf("deleted = %v, want [%s]", result.Deleted, second)
	}
}

func TestReapZeroCeilingOnlyPrunes(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "keep", "x.mp4")
	writeSized(t, file, 500, baseTime)
	if err := os.MkdirAll(filepath.Join(root, "stale"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	result, err := storage.Reap(context.Background(), root, 0, storage.Options{})
	if err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if len(result.Deleted) != 0 || !exists(file) {
		t.Fatal("zero ceiling must not evict files")
	}
	if len(result.RemovedDirs) != 1 {
		t.Fatalf("expected the stale directory to be pruned, got %v", result.RemovedDirs)
	}
}

func TestReapMissingRootIsTransient(t *testing.T) {
	_, err := storage.Reap(context.Background(), filepath.Join(t.TempDir(), "missing"), 10, storage.Options{})
	if err == nil {
		t.Fatal("expected scan error")
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}
