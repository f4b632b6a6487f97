package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileEntry describes one regular file found by Scan.
type FileEntry struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Tree is the result of scanning a directory: every regular file and every
// directory below the root (the root itself is not listed).
type Tree struct {
	Root  string
	Files []FileEntry
	Dirs  []string
}

// TotalBytes sums the sizes of all scanned files.
func (t Tree) TotalBytes() int64 {
	var total int64
	for _, f := range t.Files {
		total += f.Size
	}
	return total
}

// Scan walks root without following symlinks. Entries that disappear while
// the walk is in progress are skipped; any other error aborts the scan.
func Scan(ctx context.Context, root string) (Tree, error) {
	tree := Tree{Root: root}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) && path != root {
				return nil
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}
		switch {
		case d.IsDir():
			tree.Dirs = append(tree.Dirs, path)
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			tree.Files = append(tree.Files, FileEntry{Path: path, Size: info.Size(), ModTime: info.ModTime()})
		}
		return nil
	})
	if err != nil {
		return Tree{}, fmt.Errorf("scan %s: %w", root, err)
	}
	return tree, nil
}

// DirSize returns the total size of regular files under path. A missing path
// has size zero.
func DirSize(ctx context.Context, path string) (int64, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	tree, err := Scan(ctx, path)
	if err != nil {
		return 0, err
	}
	return tree.TotalBytes(), nil
}
