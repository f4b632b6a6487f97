package pipeline

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ShellPath is the interpreter used for command templates.
const ShellPath = "/bin/sh"

// Process is a shell command running in its own process group, so signals
// reach every child the shell spawns.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
	once sync.Once
}

// processIO wires a process to files or writers. Stdin and Stdout are files
// so the caller owns the pipe ends independently of Wait.
type processIO struct {
	Stdin  *os.File
	Stdout *os.File
	Output io.Writer
}

func startShell(command string, pio processIO, waitDelay time.Duration) (*Process, error) {
	cmd := exec.Command(ShellPath, "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if pio.Stdin != nil {
		cmd.Stdin = pio.Stdin
	}
	output := pio.Output
	if output == nil {
		output = io.Discard
	}
	if pio.Stdout != nil {
		cmd.Stdout = pio.Stdout
	} else {
		cmd.Stdout = output
	}
	cmd.Stderr = output
	cmd.WaitDelay = waitDelay
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &Process{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Pid returns the process (and process group) id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err returns the wait error after Done is closed.
func (p *Process) Err() error {
	<-p.done
	return p.err
}

// Exited reports whether the process has already been reaped.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the exit status, -1 when killed by a signal or still running.
func (p *Process) ExitCode() int {
	if !p.Exited() || p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// Terminate sends SIGTERM to the process group, waits up to grace, then
// sends SIGKILL and waits for the process to be reaped. It is safe to call
// more than once and after the process exited on its own.
func (p *Process) Terminate(grace time.Duration) {
	p.once.Do(func() {
		if p.Exited() {
			// The leader is gone but children may still hold the group.
			_ = signalGroup(p.Pid(), unix.SIGKILL)
			return
		}
		_ = signalGroup(p.Pid(), unix.SIGTERM)
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-p.done:
			_ = signalGroup(p.Pid(), unix.SIGKILL)
			return
		case <-timer.C:
		}
		_ = signalGroup(p.Pid(), unix.SIGKILL)
		<-p.done
	})
}

// WaitTimeout waits up to d for the process to exit. It reports whether the
// process exited within the window.
func (p *Process) WaitTimeout(d time.Duration) bool {
	if d <= 0 {
		return p.Exited()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}

func signalGroup(pid int, sig unix.Signal) error {
	if pid <= 0 {
		return nil
	}
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}
