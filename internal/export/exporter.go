package export

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"dualmind/internal/domain"
)

// ErrInvalidState is returned when exporting a job that has not succeeded.
var ErrInvalidState = domain.NewError(domain.ErrorKindInvalidState, "only a succeeded job can be exported")

// ErrEmptyPath is returned when no destination was chosen.
var ErrEmptyPath = domain.NewError(domain.ErrorKindIO, "destination path is required")

// WriteError is a failed export write.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("export to %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// ErrorKind classifies all write failures as I/O errors.
func (e *WriteError) ErrorKind() domain.ErrorKind {
	return domain.ErrorKindIO
}

// Exporter writes job results to plain UTF-8 text files.
type Exporter struct {
	logger *slog.Logger
}

// NewExporter creates an exporter.
func NewExporter(logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{logger: logger}
}

// Export writes the result text of job to dest byte for byte, replacing any
// existing file. The destination only appears once the write is complete.
func (e *Exporter) Export(job domain.Job, dest string) error {
	if job.Status != domain.JobStatusSucceeded {
		return ErrInvalidState
	}
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return ErrEmptyPath
	}
	if !utf8.ValidString(job.Result) {
		return &WriteError{Path: dest, Err: errors.New("result is not valid UTF-8")}
	}

	if err := writeAtomic(dest, []byte(job.Result)); err != nil {
		e.logger.Warn("export failed", "job_id", job.ID, "path", dest, "error", err)
		return &WriteError{Path: dest, Err: err}
	}
	e.logger.Info("result exported", "job_id", job.ID, "path", dest, "bytes", len(job.Result))
	return nil
}

func writeAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// DefaultFileName suggests a file name for the save dialog.
func DefaultFileName(job domain.Job) string {
	base := strings.TrimSpace(job.Title)
	if base == "" && job.Kind == domain.JobKindPDF {
		base = strings.TrimSuffix(filepath.Base(job.Input), filepath.Ext(job.Input))
	}
	base = sanitize(base)
	if base == "" {
		base = "dualmind"
	}

	suffix := "-transcript.txt"
	if job.Kind == domain.JobKindPDF {
		suffix = "-analysis.txt"
	}
	return base + suffix
}

// sanitize keeps letters, digits, dash and underscore, turning runs of
// anything else into a single dash.
func sanitize(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if utf8.RuneCountInString(out) > 80 {
		out = strings.TrimRight(string([]rune(out)[:80]), "-")
	}
	return out
}
