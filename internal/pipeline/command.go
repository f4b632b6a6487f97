package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"sxvrs/internal/services"
)

// CommandResult describes how a shell command ended.
type CommandResult struct {
	Reason   Reason
	ExitCode int
	Duration time.Duration
}

// RunCommand runs command through the shell with output sent to log. A
// positive limit bounds the run: reaching it terminates the process group
// and yields ReasonTimeout, which is not an error. Cancelling ctx terminates
// the command and yields ReasonCanceled. A non-zero exit is returned as an
// ErrExternalTool error alongside the result.
func RunCommand(ctx context.Context, command string, limit, grace time.Duration, log io.Writer) (CommandResult, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return CommandResult{Reason: ReasonExited}, nil
	}
	started := time.Now()
	proc, err := startShell(command, processIO{Output: log}, grace)
	if err != nil {
		return CommandResult{}, services.Wrap(services.ErrExternalTool, "command", "start", "Failed to start shell", err)
	}

	var timeout <-chan time.Time
	if limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		timeout = timer.C
	}

	result := CommandResult{}
	select {
	case <-proc.Done():
		result.Reason = ReasonExited
	case <-timeout:
		result.Reason = ReasonTimeout
		proc.Terminate(grace)
	case <-ctx.Done():
		result.Reason = ReasonCanceled
		proc.Terminate(grace)
	}
	proc.Terminate(grace)
	result.Duration = time.Since(started)
	result.ExitCode = proc.ExitCode()

	if result.Reason == ReasonExited && result.ExitCode != 0 {
		return result, services.Wrap(services.ErrExternalTool, "command", "exit",
			fmt.Sprintf("Command exited with status %d", result.ExitCode), proc.Err())
	}
	return result, nil
}
