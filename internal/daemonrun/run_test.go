package daemonrun

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestEnsureCurrentLogPointer(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "sxvrs-1.log")
	second := filepath.Join(dir, "sxvrs-2.log")
	for _, p := range []string{first, second} {
		if err := os.WriteFile(p, []byte(filepath.Base(p)), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}

	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("pointer to first: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("pointer to second: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "sxvrs.log"))
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if string(got) != "sxvrs-2.log" {
		t.Fatalf("pointer resolves to %q", got)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sxvrs.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid: %v", err)
	}
	if string(got) != strconv.Itoa(os.Getpid())+"\n" {
		t.Fatalf("unexpected pid file content %q", got)
	}
	if err := writePIDFile(""); err != nil {
		t.Fatalf("empty path should be a no-op: %v", err)
	}
}
