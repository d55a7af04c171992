package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"dualmind/internal/domain"
	"dualmind/internal/jobs"
)

// RunHeadless runs one job to completion without the desktop shell. Progress
// lines go to progress and the finished text to out. Cancelling ctx cancels
// the job and waits for its cleanup.
func (a *App) RunHeadless(ctx context.Context, kind domain.JobKind, input string, out, progress io.Writer) (domain.Job, error) {
	job, err := a.Runner.Start(jobs.Spec{Kind: kind, Input: input})
	if err != nil {
		return domain.Job{}, err
	}

	if progress != nil {
		printer := &progressPrinter{w: progress, last: -1}
		if err := a.Runner.OnProgress(job.ID, printer.print); err != nil {
			return domain.Job{}, err
		}
	}

	finished, err := a.Runner.Wait(ctx, job.ID)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return domain.Job{}, err
		}
		_ = a.Runner.Cancel(job.ID)
		<-a.Runner.Idle()
		return a.Runner.Current(), err
	}
	<-a.Runner.Idle()

	switch finished.Status {
	case domain.JobStatusSucceeded:
	case domain.JobStatusCancelled:
		return finished, context.Canceled
	default:
		return finished, jobFailure(finished)
	}

	if out != nil {
		text := finished.Result
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		if _, err := io.WriteString(out, text); err != nil {
			return finished, fmt.Errorf("write result: %w", err)
		}
	}
	return finished, nil
}

// jobFailure turns a failed job's recorded error back into an error value.
func jobFailure(job domain.Job) error {
	if job.Error == nil {
		return domain.NewError(domain.ErrorKindInternal, "job failed")
	}
	msg := domain.UserMessage(job.Error.Kind)
	if job.Error.Detail != "" {
		msg += " (" + job.Error.Detail + ")"
	}
	return domain.NewError(job.Error.Kind, msg)
}

// progressPrinter writes one line per stage change or whole percent.
type progressPrinter struct {
	mu    sync.Mutex
	w     io.Writer
	stage string
	last  int
}

func (p *progressPrinter) print(event domain.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pct := int(event.Overall * 100)
	if event.Stage == p.stage && pct == p.last {
		return
	}
	p.stage = event.Stage
	p.last = pct
	fmt.Fprintf(p.w, "[%3d%%] %s", pct, event.Stage)
	if event.Message != "" {
		fmt.Fprintf(p.w, ": %s", event.Message)
	}
	fmt.Fprintln(p.w)
}
