package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"dualmind/internal/domain"
	"dualmind/internal/logging"
	"dualmind/internal/pipeline"
)

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// CommandError is a failed external command with its captured output.
type CommandError struct {
	Message    string
	CommandLog CommandLog
	Err        error
}

// Error formats command failures for logs and UI.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s (cmd=%s exit=%d)", e.Message, e.CommandLog.Command, e.CommandLog.ExitCode)
	if tail := lastLine(e.CommandLog.Stderr); tail != "" {
		msg += ": " + logging.Truncate(tail, 300)
	}
	return msg
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// run executes one command, logs it and wraps failures as internal stage errors.
func (t *Transcriber) run(ctx context.Context, message, name string, args ...string) (commandResult, error) {
	result, err := t.runner.Run(ctx, name, args...)
	log := CommandLog{
		Command:  name,
		Args:     args,
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		t.logger.WarnContext(ctx, "command failed",
			"command", name,
			"exit_code", result.ExitCode,
			"stderr", logging.Truncate(result.Stderr, 500),
		)
		return result, pipeline.Fail(domain.ErrorKindInternal, "", &CommandError{Message: message, CommandLog: log, Err: err})
	}
	t.logger.DebugContext(ctx, "command finished", "command", name, "args", strings.Join(args, " "))
	return result, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
