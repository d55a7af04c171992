package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"dualmind/internal/domain"
	"dualmind/internal/pipeline"
)

// StageName is the pipeline name of the download stage.
const StageName = "FetchAudio"

// DownloadResult describes the audio file produced by a Downloader.
type DownloadResult struct {
	Path     string
	Title    string
	Duration time.Duration
}

// DownloadError carries downloader stderr for classification.
type DownloadError struct {
	Stderr string
	Err    error
}

func (e *DownloadError) Error() string {
	if line := lastErrorLine(e.Stderr); line != "" {
		return line
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "download failed"
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Downloader fetches the best audio stream of one video into dir.
type Downloader interface {
	Download(ctx context.Context, videoURL, dir string, progress func(fraction float64)) (DownloadResult, error)
}

// Fetcher is the FetchAudio stage.
type Fetcher struct {
	downloader Downloader
	logger     *slog.Logger
}

// NewFetcher wraps a downloader as a pipeline stage.
func NewFetcher(downloader Downloader, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{downloader: downloader, logger: logger}
}

// Stage returns the typed pipeline stage: URL string to domain.Audio.
func (f *Fetcher) Stage(weight float64) pipeline.Stage {
	return pipeline.Typed(StageName, weight, f.Fetch)
}

// Fetch validates the URL and downloads its audio into the job work dir.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, report pipeline.Sink) (domain.Audio, error) {
	videoURL, ok := ValidateURL(rawURL)
	if !ok {
		return domain.Audio{}, pipeline.Fail(domain.ErrorKindUnsupported, "not a single YouTube video link", nil)
	}

	dir := pipeline.WorkDir(ctx)
	if dir == "" {
		var err error
		if dir, err = os.MkdirTemp("", "dualmind-audio-"); err != nil {
			return domain.Audio{}, pipeline.Fail(domain.ErrorKindIO, "create download dir", err)
		}
	}

	report(0, "starting download")
	started := time.Now()
	result, err := f.downloader.Download(ctx, videoURL, dir, func(fraction float64) {
		report(fraction, "downloading audio")
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Audio{}, ctxErr
		}
		var dlErr *DownloadError
		stderr := ""
		if errors.As(err, &dlErr) {
			stderr = dlErr.Stderr
		}
		kind := Classify(stderr, err)
		f.logger.WarnContext(ctx, "audio download failed", "kind", kind, "error", err)
		return domain.Audio{}, pipeline.Fail(kind, "download audio", err)
	}

	if info, statErr := os.Stat(result.Path); statErr != nil || info.Size() == 0 {
		return domain.Audio{}, pipeline.Fail(domain.ErrorKindNetworkFailure, "downloaded audio is missing or empty", statErr)
	}

	title := strings.TrimSpace(result.Title)
	if title == "" {
		title = "YouTube Video"
	}
	f.logger.InfoContext(ctx, "audio downloaded", "title", title, "path", result.Path, "elapsed", time.Since(started).Round(time.Millisecond).String())
	report(1, fmt.Sprintf("downloaded %q", title))

	return domain.Audio{
		Path:      result.Path,
		Title:     title,
		SourceURL: videoURL,
		Duration:  result.Duration,
	}, nil
}
