package launcher

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/urfave/cli/v2"

	"dualmind/internal/domain"
)

// testApp returns the command tree with exit handling disabled.
func testApp() (*cli.App, *bytes.Buffer) {
	var out bytes.Buffer
	app := NewApp(nil)
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app, &out
}

// TestJobCommandsRequireOneArgument checks usage errors before any work starts.
func TestJobCommandsRequireOneArgument(t *testing.T) {
	tests := [][]string{
		{"dualmind", "--env-file", "missing.env", "transcribe"},
		{"dualmind", "--env-file", "missing.env", "analyze", "a.pdf", "b.pdf"},
		{"dualmind", "--env-file", "missing.env", "models", "download"},
	}
	for _, args := range tests {
		app, _ := testApp()
		err := app.Run(args)
		var exit cli.ExitCoder
		if !errors.As(err, &exit) || exit.ExitCode() != 2 {
			t.Fatalf("%v: error = %v, want exit code 2", args[3:], err)
		}
	}
}

// TestExitCode maps job failures to process status codes.
func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: context.Canceled, want: 130},
		{err: domain.NewError(domain.ErrorKindUnsupported, "bad url"), want: 2},
		{err: domain.NewError(domain.ErrorKindNotFound, "gone"), want: 1},
		{err: errors.New("boom"), want: 1},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Fatalf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
