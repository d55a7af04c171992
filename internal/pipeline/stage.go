package pipeline

import (
	"context"
	"fmt"
)

// Sink receives the fraction of the current stage completed so far.
// Values are clamped to [0,1] and never move backwards.
type Sink func(fraction float64, message string)

// Stage is one named, weighted unit of work in a pipeline.
type Stage interface {
	Name() string
	Weight() float64
	Run(ctx context.Context, input any, report Sink) (any, error)
}

type typedStage[In, Out any] struct {
	name   string
	weight float64
	run    func(ctx context.Context, in In, report Sink) (Out, error)
}

// Typed wraps a strongly typed function as a Stage.
// A wrong input type is a wiring bug and panics.
func Typed[In, Out any](name string, weight float64, run func(ctx context.Context, in In, report Sink) (Out, error)) Stage {
	return &typedStage[In, Out]{name: name, weight: weight, run: run}
}

func (s *typedStage[In, Out]) Name() string { return s.name }

func (s *typedStage[In, Out]) Weight() float64 { return s.weight }

func (s *typedStage[In, Out]) Run(ctx context.Context, input any, report Sink) (any, error) {
	in, ok := input.(In)
	if !ok {
		var want In
		panic(fmt.Sprintf("stage %s: input is %T, want %T", s.name, input, want))
	}
	out, err := s.run(ctx, in, report)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type workDirKey struct{}

// WithWorkDir attaches the per-job scratch directory to ctx.
func WithWorkDir(ctx context.Context, dir string) context.Context {
	return context.WithValue(ctx, workDirKey{}, dir)
}

// WorkDir returns the scratch directory attached by WithWorkDir.
func WorkDir(ctx context.Context) string {
	dir, _ := ctx.Value(workDirKey{}).(string)
	return dir
}
