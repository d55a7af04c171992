package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dualmind/internal/cleanup"
	"dualmind/internal/domain"
	"dualmind/internal/logging"
	"dualmind/internal/pipeline"
)

// Spec describes a job to start.
type Spec struct {
	Kind  domain.JobKind
	Input string
}

// PipelineFactory returns the stage pipeline for a job kind.
// It is called once per job so settings changes apply to the next run.
type PipelineFactory func(kind domain.JobKind) (*pipeline.Pipeline, error)

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithEventBus shares an existing event bus.
func WithEventBus(bus *EventBus) Option {
	return func(r *Runner) { r.events = bus }
}

// WithWorkRoot sets the parent directory of per-job scratch dirs.
func WithWorkRoot(root string) Option {
	return func(r *Runner) { r.workRoot = root }
}

// WithKeepWorkDir decides per job whether scratch files survive the job.
func WithKeepWorkDir(keep func() bool) Option {
	return func(r *Runner) { r.keepWorkDir = keep }
}

// WithIDGenerator replaces UUIDv7 job ids.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(r *Runner) { r.newID = newID }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// Runner executes one job at a time on a dedicated goroutine.
type Runner struct {
	pipelines PipelineFactory
	manager   *Manager
	events    *EventBus
	logger    *slog.Logger

	workRoot    string
	keepWorkDir func() bool
	newID       func() (string, error)
	now         func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	last   *domain.Job
	done   chan struct{}
}

// NewRunner creates a runner backed by pipelines.
func NewRunner(pipelines PipelineFactory, opts ...Option) *Runner {
	r := &Runner{
		pipelines:   pipelines,
		manager:     NewManager(),
		logger:      slog.Default(),
		keepWorkDir: func() bool { return false },
		newID:       newJobID,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.events == nil {
		r.events = NewEventBus(500)
	}
	return r
}

func newJobID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	return id.String(), nil
}

// Start creates a job and runs its pipeline in the background.
func (r *Runner) Start(spec Spec) (domain.Job, error) {
	input := strings.TrimSpace(spec.Input)
	if !spec.Kind.Valid() {
		return domain.Job{}, domain.NewError(domain.ErrorKindUnsupported, fmt.Sprintf("unknown job kind %q", spec.Kind))
	}
	if input == "" {
		return domain.Job{}, domain.NewError(domain.ErrorKindUnsupported, "input is required")
	}
	if r.manager.IsRunning() {
		return domain.Job{}, ErrJobAlreadyRunning
	}

	p, err := r.pipelines(spec.Kind)
	if err != nil {
		return domain.Job{}, fmt.Errorf("build %s pipeline: %w", spec.Kind, err)
	}
	id, err := r.newID()
	if err != nil {
		return domain.Job{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	job := domain.Job{
		ID:        id,
		Kind:      spec.Kind,
		Input:     input,
		CreatedAt: now,
	}
	if err := r.manager.Start(job); err != nil {
		return domain.Job{}, err
	}
	r.manager.Update(id, func(j *domain.Job) { j.StartedAt = now })
	if err := r.manager.Transition(domain.JobStatusRunning); err != nil {
		return domain.Job{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	ctx = logging.WithJobFields(ctx, id, string(spec.Kind))
	r.cancel = cancel
	r.done = make(chan struct{})

	r.events.Publish(Event{
		JobID:   id,
		Kind:    spec.Kind,
		Type:    EventTypeStatus,
		Status:  domain.JobStatusRunning,
		Message: "job started",
	})
	r.logger.InfoContext(ctx, "job started", "input", input, "stages", strings.Join(p.StageNames(), ","))

	go r.execute(ctx, cancel, r.done, r.manager.Current(), p)
	return r.manager.Current(), nil
}

func (r *Runner) execute(ctx context.Context, cancel context.CancelFunc, done chan struct{}, job domain.Job, p *pipeline.Pipeline) {
	defer close(done)
	defer cancel()

	workDir, err := cleanup.NewWorkDir(r.workRoot, string(job.Kind))
	if err != nil {
		r.finish(ctx, job, nil, &pipeline.StageError{Kind: domain.ErrorKindIO, Message: "prepare work dir", Err: err})
		return
	}
	defer func() {
		if r.keepWorkDir() {
			r.logger.InfoContext(ctx, "keeping work dir", "dir", workDir)
			return
		}
		if err := cleanup.Remove(workDir); err != nil {
			r.logger.WarnContext(ctx, "work dir cleanup failed", "dir", workDir, "error", err)
		}
	}()

	out, err := p.Run(pipeline.WithWorkDir(ctx, workDir), job.Input, func(u pipeline.Update) {
		r.publishUpdate(ctx, job, u)
	})
	r.finish(ctx, job, out, err)
}

func (r *Runner) publishUpdate(ctx context.Context, job domain.Job, u pipeline.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()

	applied := r.manager.Update(job.ID, func(j *domain.Job) {
		j.Stage = u.Stage
		j.Progress = u.Overall
	})
	if !applied {
		return
	}

	eventType := EventTypeProgress
	if u.Boundary {
		eventType = EventTypeStage
		r.logger.InfoContext(logging.WithStage(ctx, u.Stage), "stage started", "index", u.StageIndex)
	}
	r.events.Publish(Event{
		JobID:      job.ID,
		Kind:       job.Kind,
		Type:       eventType,
		Status:     domain.JobStatusRunning,
		Stage:      u.Stage,
		StageIndex: u.StageIndex,
		Fraction:   u.Fraction,
		Overall:    u.Overall,
		Message:    u.Message,
	})
}

func (r *Runner) finish(ctx context.Context, job domain.Job, out any, runErr error) {
	status := domain.JobStatusSucceeded
	var outcome domain.Outcome
	var jobErr *domain.JobError

	switch {
	case runErr != nil && (errors.Is(runErr, context.Canceled) || domain.KindOf(runErr) == domain.ErrorKindCancelled):
		status = domain.JobStatusCancelled
	case runErr != nil:
		status = domain.JobStatusFailed
		jobErr = toJobError(runErr)
	default:
		var ok bool
		outcome, ok = out.(domain.Outcome)
		if !ok {
			status = domain.JobStatusFailed
			jobErr = &domain.JobError{Kind: domain.ErrorKindInternal, Detail: fmt.Sprintf("pipeline produced %T", out)}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	finishedAt := r.now()
	r.manager.Update(job.ID, func(j *domain.Job) {
		j.FinishedAt = finishedAt
		j.Error = jobErr
		if status == domain.JobStatusSucceeded {
			j.Progress = 1
			j.Result = outcome.Text
			j.Analysis = outcome.Analysis
			j.Title = outcome.Title
			j.Language = outcome.Language
		}
	})
	if err := r.manager.Transition(status); err != nil {
		r.logger.ErrorContext(ctx, "job transition failed", "error", err)
	}
	r.cancel = nil

	final := r.manager.Current()
	if status == domain.JobStatusSucceeded {
		snapshot := final
		r.last = &snapshot
	}

	event := Event{
		JobID:   job.ID,
		Kind:    job.Kind,
		Type:    EventTypeStatus,
		Status:  status,
		Stage:   final.Stage,
		Overall: final.Progress,
		Error:   jobErr,
		Job:     &final,
	}
	switch status {
	case domain.JobStatusSucceeded:
		event.Message = "job succeeded"
		r.logger.InfoContext(ctx, "job succeeded", "duration", finishedAt.Sub(final.StartedAt).String())
	case domain.JobStatusCancelled:
		event.Message = domain.UserMessage(domain.ErrorKindCancelled)
		r.logger.InfoContext(ctx, "job cancelled")
	default:
		event.Message = domain.UserMessage(jobErr.Kind)
		r.logger.ErrorContext(ctx, "job failed",
			"kind", jobErr.Kind,
			"failed_stage", jobErr.Stage,
			"error", logging.Truncate(jobErr.Detail, 500),
		)
	}
	r.events.Publish(event)
}

func toJobError(err error) *domain.JobError {
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		return stageErr.JobError()
	}
	return &domain.JobError{Kind: domain.KindOf(err), Detail: err.Error()}
}

// Cancel requests cancellation of the active job id. An empty id targets
// whichever job is active.
func (r *Runner) Cancel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.manager.RequestCancel(id); err != nil {
		return err
	}
	current := r.manager.Current()
	if r.cancel != nil {
		r.cancel()
	}
	r.events.Publish(Event{
		JobID:   current.ID,
		Kind:    current.Kind,
		Type:    EventTypeLog,
		Status:  current.Status,
		Stage:   current.Stage,
		Overall: current.Progress,
		Message: "cancellation requested",
	})
	return nil
}

// OnProgress registers fn for progress of job id. Delivery happens on a
// dedicated goroutine in publication order and ends with the job.
func (r *Runner) OnProgress(id string, fn func(domain.ProgressEvent)) error {
	if err := r.checkKnown(id); err != nil {
		return err
	}
	r.events.FollowAsync(context.Background(), id, func(e Event) bool {
		if e.Type == EventTypeStage || e.Type == EventTypeProgress {
			fn(e.Progress())
		}
		return true
	})
	return nil
}

// OnComplete registers fn for the terminal state of job id.
func (r *Runner) OnComplete(id string, fn func(domain.Job)) error {
	if err := r.checkKnown(id); err != nil {
		return err
	}
	r.events.FollowAsync(context.Background(), id, func(e Event) bool {
		if e.Terminal() && e.Job != nil {
			fn(*e.Job)
		}
		return true
	})
	return nil
}

func (r *Runner) checkKnown(id string) error {
	if id == "" || r.manager.Current().ID != id {
		return ErrUnknownJob
	}
	return nil
}

// Wait blocks until job id reaches a terminal state or ctx ends.
func (r *Runner) Wait(ctx context.Context, id string) (domain.Job, error) {
	result := make(chan domain.Job, 1)
	if err := r.OnComplete(id, func(job domain.Job) { result <- job }); err != nil {
		return domain.Job{}, err
	}
	select {
	case job := <-result:
		return job, nil
	case <-ctx.Done():
		return domain.Job{}, ctx.Err()
	}
}

// Idle returns a channel closed once the active job goroutine has exited,
// including scratch cleanup.
func (r *Runner) Idle() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return r.done
}

// Current returns a snapshot of the newest job.
func (r *Runner) Current() domain.Job {
	return r.manager.Current()
}

// Last returns the most recent succeeded job.
func (r *Runner) Last() (domain.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.last == nil {
		return domain.Job{}, false
	}
	return *r.last, true
}

// Clear discards the finished current job. The last succeeded result is kept.
func (r *Runner) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manager.Reset()
}

// IsRunning reports whether a job holds the slot.
func (r *Runner) IsRunning() bool {
	return r.manager.IsRunning()
}

// Events returns buffered events newer than seq.
func (r *Runner) Events(since int64) []Event {
	return r.events.Since(since)
}

// Bus exposes the runner's event bus for push subscribers.
func (r *Runner) Bus() *EventBus {
	return r.events
}
