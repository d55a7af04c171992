package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"dualmind/internal/domain"
	"dualmind/internal/pipeline"
)

// TestRunHeadlessWritesResult checks the result text and progress lines.
func TestRunHeadlessWritesResult(t *testing.T) {
	app, _ := newTestApp(t, testSettings(t), echoPipelines(nil))

	var out, progress bytes.Buffer
	job, err := app.RunHeadless(context.Background(), domain.JobKindPDF, "/tmp/report.pdf", &out, &progress)
	if err != nil {
		t.Fatalf("RunHeadless() error = %v", err)
	}
	if job.Status != domain.JobStatusSucceeded {
		t.Fatalf("status = %s", job.Status)
	}
	if out.String() != "result for /tmp/report.pdf\n" {
		t.Fatalf("out = %q", out.String())
	}
}

// TestRunHeadlessReturnsKindedFailure checks failures keep their kind.
func TestRunHeadlessReturnsKindedFailure(t *testing.T) {
	app, _ := newTestApp(t, testSettings(t), func(domain.JobKind) (*pipeline.Pipeline, error) {
		return pipeline.New(pipeline.Typed("ExtractText", 1, func(context.Context, string, pipeline.Sink) (domain.Outcome, error) {
			return domain.Outcome{}, pipeline.Fail(domain.ErrorKindUnreadable, "password protected", nil)
		})), nil
	})

	var out bytes.Buffer
	job, err := app.RunHeadless(context.Background(), domain.JobKindPDF, "/tmp/locked.pdf", &out, nil)
	if domain.KindOf(err) != domain.ErrorKindUnreadable {
		t.Fatalf("kind = %s (%v)", domain.KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "password protected") {
		t.Fatalf("error = %q", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
	if out.Len() != 0 {
		t.Fatalf("unexpected output %q", out.String())
	}
}

// TestRunHeadlessCancelsOnContext checks ctx cancellation stops the job.
func TestRunHeadlessCancelsOnContext(t *testing.T) {
	gate := make(chan struct{})
	app, _ := newTestApp(t, testSettings(t), echoPipelines(gate))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	job, err := app.RunHeadless(ctx, domain.JobKindYouTube, "https://youtu.be/dQw4w9WgXcQ", nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
	if job.Status != domain.JobStatusCancelled {
		t.Fatalf("status = %s", job.Status)
	}
	if app.Runner.IsRunning() {
		t.Fatal("runner still busy")
	}
}

// TestProgressPrinterSkipsDuplicates checks one line per visible change.
func TestProgressPrinterSkipsDuplicates(t *testing.T) {
	var buf bytes.Buffer
	p := &progressPrinter{w: &buf, last: -1}
	p.print(domain.ProgressEvent{Stage: "FetchAudio", Overall: 0.101})
	p.print(domain.ProgressEvent{Stage: "FetchAudio", Overall: 0.104})
	p.print(domain.ProgressEvent{Stage: "Transcribe", Overall: 0.104, Message: "chunk 1/3"})

	want := "[ 10%] FetchAudio\n[ 10%] Transcribe: chunk 1/3\n"
	if buf.String() != want {
		t.Fatalf("output = %q, want %q", buf.String(), want)
	}
}
