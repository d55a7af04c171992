package bootstrap

import (
	"fmt"
	"log/slog"
	"time"

	"dualmind/internal/domain"
	"dualmind/internal/pdftext"
	"dualmind/internal/pipeline"
	"dualmind/internal/speech"
	"dualmind/internal/summarize"
	"dualmind/internal/transcribe"
	"dualmind/internal/youtube"
)

// Stage weights. Transcription dominates a YouTube job.
const (
	weightFetch      = 3
	weightTranscribe = 6
	weightFormat     = 1
	weightExtract    = 2
	weightSummarize  = 1
)

// Workflows builds the fixed stage pipeline for each job kind from the
// settings in effect when the job starts.
type Workflows struct {
	settings   func() domain.Settings
	model      *speech.Model
	downloader youtube.Downloader
	logger     *slog.Logger
	now        func() time.Time
}

// NewWorkflows creates the pipeline factory used by the job runner.
func NewWorkflows(settings func() domain.Settings, model *speech.Model, downloader youtube.Downloader, logger *slog.Logger) *Workflows {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflows{
		settings:   settings,
		model:      model,
		downloader: downloader,
		logger:     logger,
		now:        time.Now,
	}
}

// Pipeline returns the stage sequence for kind.
func (w *Workflows) Pipeline(kind domain.JobKind) (*pipeline.Pipeline, error) {
	s := w.settings()
	switch kind {
	case domain.JobKindYouTube:
		w.model.Configure(speech.ConfigFrom(s))
		return pipeline.New(
			youtube.NewFetcher(w.downloader, w.logger).Stage(weightFetch),
			transcribe.NewTranscriber(transcribe.OptionsFrom(s), w.model, w.logger).Stage(weightTranscribe),
			transcribe.NewFormatter(transcribe.FormatOptions{
				Pause: time.Duration(s.ParagraphPauseMs) * time.Millisecond,
				Now:   w.now,
			}).Stage(weightFormat),
		), nil
	case domain.JobKindPDF:
		return pipeline.New(
			pdftext.NewExtractor(w.logger).Stage(weightExtract),
			summarize.NewSummarizer(summarize.Options{Targets: s.Summary, Now: w.now}, w.logger).Stage(weightSummarize),
		), nil
	default:
		return nil, fmt.Errorf("no pipeline for job kind %q", kind)
	}
}
