package preflight

import (
	"context"
	"fmt"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"sxvrs/internal/config"
	"sxvrs/internal/deps"
)

const brokerDialTimeout = 3 * time.Second

// CheckBroker verifies that the MQTT broker accepts TCP connections.
func CheckBroker(ctx context.Context, host string, port int) Result {
	const name = "MQTT broker"

	host = strings.TrimSpace(host)
	if host == "" {
		return Result{Name: name, Detail: "missing host"}
	}
	if port <= 0 {
		return Result{Name: name, Detail: fmt.Sprintf("invalid port %d", port)}
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	checkCtx, cancel := context.WithTimeout(ctx, brokerDialTimeout)
	defer cancel()
	var dialer net.Dialer
	conn, err := dialer.DialContext(checkCtx, "tcp", addr)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (unreachable: %v)", addr, err)}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: addr + " (reachable)"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external programs the daemon runs. Both the
// daemon status and the CLI use this list. Programs named by camera commands
// are reported as optional since a missing one only disables that camera.
func CheckSystemDeps(_ context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "sh",
			Command:     "sh",
			Description: "Runs camera command templates",
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required for snapshots and the built-in pipeline",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "Probes stream frame size when not configured",
			Optional:    true,
		},
	}
	seen := []string{"sh", cfg.FFmpegBinary(), cfg.FFprobeBinary()}

	cameras, err := cfg.ResolveCameras()
	if err != nil {
		return deps.CheckBinaries(requirements)
	}
	for _, cam := range cameras {
		for _, cmd := range []string{cam.CmdBefore, cam.Cmd, cam.CmdAfter, cam.CmdFFmpegRead, cam.CmdFFmpegWrite} {
			bin := deps.CommandBinary(cmd)
			if bin == "" || slices.Contains(seen, bin) {
				continue
			}
			seen = append(seen, bin)
			requirements = append(requirements, deps.Requirement{
				Name:        bin,
				Command:     bin,
				Description: "Used by camera " + cam.Name,
				Optional:    true,
			})
		}
	}
	return deps.CheckBinaries(requirements)
}
