package logging

import (
	"context"
	"unicode/utf8"
)

type contextKey string

const fieldsKey contextKey = "log_fields"

// Fields are attached to every log record emitted with the carrying context.
type Fields struct {
	JobID     string
	JobKind   string
	Stage     string
	Component string
}

// WithFields merges fields into ctx. Non-empty values win.
func WithFields(ctx context.Context, fields Fields) context.Context {
	merged := FieldsFrom(ctx)
	if fields.JobID != "" {
		merged.JobID = fields.JobID
	}
	if fields.JobKind != "" {
		merged.JobKind = fields.JobKind
	}
	if fields.Stage != "" {
		merged.Stage = fields.Stage
	}
	if fields.Component != "" {
		merged.Component = fields.Component
	}
	return context.WithValue(ctx, fieldsKey, merged)
}

// WithJobFields is shorthand for tagging a job context.
func WithJobFields(ctx context.Context, jobID, kind string) context.Context {
	return WithFields(ctx, Fields{JobID: jobID, JobKind: kind})
}

// WithStage tags ctx with the running stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return WithFields(ctx, Fields{Stage: stage})
}

// FieldsFrom returns the fields stored in ctx, or zero fields.
func FieldsFrom(ctx context.Context) Fields {
	if ctx == nil {
		return Fields{}
	}
	if fields, ok := ctx.Value(fieldsKey).(Fields); ok {
		return fields
	}
	return Fields{}
}

// Truncate shortens s to at most maxLen bytes, appending "..." when cut.
// The cut never splits a multi-byte character.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
