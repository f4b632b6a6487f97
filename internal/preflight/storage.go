package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/disk"

	"sxvrs/internal/config"
)

// CheckStorage reports free space on the filesystem behind each camera's
// storage path. Cameras that share a root are reported together.
func CheckStorage(cameras []config.Camera) []Result {
	var (
		order []string
		names = map[string][]string{}
		quota = map[string]int64{}
	)
	for _, cam := range cameras {
		root := StaticRoot(cam.StoragePath)
		if _, ok := names[root]; !ok {
			order = append(order, root)
		}
		names[root] = append(names[root], cam.Name)
		quota[root] += max(cam.StorageMaxSize, 0)
	}

	results := make([]Result, 0, len(order))
	for _, root := range order {
		name := "Storage " + strings.Join(names[root], ", ")
		results = append(results, checkFreeSpace(name, root, quota[root]))
	}
	return results
}

func checkFreeSpace(name, root string, quota int64) Result {
	probe := existingAncestor(root)
	stat, err := disk.Usage(probe)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", root, err)}
	}
	detail := fmt.Sprintf("%s (%s free of %s", root, humanize.IBytes(stat.Free), humanize.IBytes(stat.Total))
	if quota > 0 {
		detail += ", quota " + humanize.IBytes(uint64(quota))
	}
	detail += ")"
	if stat.Free == 0 {
		return Result{Name: name, Detail: detail}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// StaticRoot returns the longest directory prefix of a storage path template
// that contains no placeholders.
func StaticRoot(template string) string {
	template = strings.TrimSpace(template)
	if i := strings.IndexByte(template, '{'); i >= 0 {
		template = template[:i]
		if !strings.HasSuffix(template, string(filepath.Separator)) {
			template = filepath.Dir(template)
		}
	}
	if template == "" {
		return "."
	}
	return filepath.Clean(template)
}

func existingAncestor(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}
