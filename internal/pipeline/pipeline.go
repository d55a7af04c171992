package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"dualmind/internal/domain"
)

// Update is one progress notification emitted while a pipeline runs.
type Update struct {
	Stage      string
	StageIndex int
	Fraction   float64
	Overall    float64
	Message    string
	// Boundary marks the start of a stage. Boundaries are never coalesced.
	Boundary bool
}

// Pipeline runs an ordered list of stages, feeding each output to the next.
type Pipeline struct {
	stages  []Stage
	weights []float64
	total   float64
}

// New builds a pipeline. Non-positive weights count as 1.
func New(stages ...Stage) *Pipeline {
	p := &Pipeline{stages: stages, weights: make([]float64, len(stages))}
	for i, stage := range stages {
		w := stage.Weight()
		if w <= 0 {
			w = 1
		}
		p.weights[i] = w
		p.total += w
	}
	return p
}

// StageNames lists the stage names in execution order.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, stage := range p.stages {
		names[i] = stage.Name()
	}
	return names
}

// Run executes every stage in order. The context is checked before and
// after each stage; a cancelled context yields a cancelled StageError.
func (p *Pipeline) Run(ctx context.Context, input any, onUpdate func(Update)) (any, error) {
	if onUpdate == nil {
		onUpdate = func(Update) {}
	}
	if len(p.stages) == 0 {
		return nil, &StageError{Kind: domain.ErrorKindInternal, Message: "pipeline has no stages"}
	}

	tracker := &progressTracker{pipeline: p, emit: onUpdate}
	current := input
	for i, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(stage.Name(), err)
		}

		tracker.begin(i, stage.Name())
		out, err := p.runStage(ctx, stage, current, tracker.sink())
		tracker.end()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, cancelled(stage.Name(), ctxErr)
			}
			return nil, wrapStageError(stage.Name(), err)
		}
		current = out
	}

	if err := ctx.Err(); err != nil {
		return nil, cancelled(p.stages[len(p.stages)-1].Name(), err)
	}
	return current, nil
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage, input any, sink Sink) (out any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			out = nil
			err = &StageError{
				Stage:   stage.Name(),
				Kind:    domain.ErrorKindInternal,
				Message: "stage panicked",
				Err:     &PanicError{Value: recovered},
			}
		}
	}()
	return stage.Run(ctx, input, sink)
}

func cancelled(stage string, err error) *StageError {
	if !errors.Is(err, context.Canceled) {
		err = fmt.Errorf("%w: %v", context.Canceled, err)
	}
	return &StageError{Stage: stage, Kind: domain.ErrorKindCancelled, Message: "cancelled", Err: err}
}

// progressTracker turns per-stage fractions into monotonic overall progress.
// Reports after a stage has returned are dropped.
type progressTracker struct {
	pipeline *Pipeline
	emit     func(Update)

	mu       sync.Mutex
	index    int
	name     string
	done     float64
	fraction float64
	overall  float64
	open     bool
}

func (t *progressTracker) begin(index int, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.index = index
	t.name = name
	t.fraction = 0
	t.open = true
	t.emit(Update{
		Stage:      name,
		StageIndex: index,
		Overall:    t.overall,
		Boundary:   true,
	})
}

func (t *progressTracker) end() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.open = false
	t.done += t.pipeline.weights[t.index]
}

func (t *progressTracker) sink() Sink {
	return func(fraction float64, message string) {
		t.mu.Lock()
		defer t.mu.Unlock()

		if !t.open {
			return
		}
		fraction = clamp(fraction)
		if fraction < t.fraction {
			fraction = t.fraction
		}
		t.fraction = fraction

		overall := clamp((t.done + t.pipeline.weights[t.index]*fraction) / t.pipeline.total)
		if overall < t.overall {
			overall = t.overall
		}
		t.overall = overall

		t.emit(Update{
			Stage:      t.name,
			StageIndex: t.index,
			Fraction:   fraction,
			Overall:    overall,
			Message:    message,
		})
	}
}

func clamp(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
