package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dualmind/internal/domain"
	"dualmind/internal/pipeline"
	"dualmind/internal/speech"
)

// StageName is the pipeline name of the speech-to-text stage.
const StageName = "Transcribe"

const (
	sampleRate     = 16000
	bytesPerSecond = sampleRate * 2
	wavHeaderBytes = 44

	modelShare   = 0.05
	convertShare = 0.05
)

// ModelProvider grants exclusive use of a loaded speech model.
type ModelProvider interface {
	Acquire(ctx context.Context, progress func(fraction float64)) (speech.Recognizer, func(), error)
}

// Options configures chunked transcription.
type Options struct {
	FFmpegPath  string
	FFprobePath string
	Language    string
	Chunk       time.Duration
	Overlap     time.Duration
}

// OptionsFrom builds options from settings with default tool names.
func OptionsFrom(settings domain.Settings) Options {
	return Options{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		Language:    settings.Language,
		Chunk:       time.Duration(settings.ChunkSeconds) * time.Second,
		Overlap:     time.Duration(settings.ChunkOverlapSeconds) * time.Second,
	}
}

// Transcriber converts downloaded audio to timed text with a whisper model.
type Transcriber struct {
	opts   Options
	model  ModelProvider
	runner commandRunner
	logger *slog.Logger
	stat   func(name string) (os.FileInfo, error)
}

// NewTranscriber constructs the production transcriber with OS dependencies.
func NewTranscriber(opts Options, model ModelProvider, logger *slog.Logger) *Transcriber {
	return newTranscriber(opts, model, &execRunner{}, logger)
}

func newTranscriber(opts Options, model ModelProvider, runner commandRunner, logger *slog.Logger) *Transcriber {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Chunk <= 0 {
		opts.Chunk = 30 * time.Second
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.Chunk {
		opts.Overlap = 0
	}
	return &Transcriber{
		opts:   opts,
		model:  model,
		runner: runner,
		logger: logger,
		stat:   os.Stat,
	}
}

// Stage returns the typed pipeline stage: domain.Audio to domain.Transcript.
func (t *Transcriber) Stage(weight float64) pipeline.Stage {
	return pipeline.Typed(StageName, weight, t.Transcribe)
}

// Transcribe runs the model over the audio in overlapping chunks and
// returns segments with absolute timing.
func (t *Transcriber) Transcribe(ctx context.Context, audio domain.Audio, report pipeline.Sink) (domain.Transcript, error) {
	if _, err := t.stat(audio.Path); err != nil {
		return domain.Transcript{}, pipeline.Fail(domain.ErrorKindIO, "cannot access downloaded audio", err)
	}

	rec, release, err := t.model.Acquire(ctx, func(fraction float64) {
		report(fraction*modelShare, "loading speech model")
	})
	if err != nil {
		return domain.Transcript{}, err
	}
	defer release()
	report(modelShare, "speech model ready")

	workDir := pipeline.WorkDir(ctx)
	if workDir == "" {
		workDir = filepath.Dir(audio.Path)
	}

	wavPath := filepath.Join(workDir, "speech-16k-mono.wav")
	if _, err := t.run(ctx, "ffmpeg audio conversion failed", t.opts.FFmpegPath, buildFFmpegArgs(audio.Path, wavPath)...); err != nil {
		return domain.Transcript{}, err
	}
	report(modelShare+convertShare, "audio converted")

	duration := t.mediaDuration(ctx, wavPath)
	if duration <= 0 {
		return domain.Transcript{}, pipeline.Fail(domain.ErrorKindInternal, "converted audio is empty", nil)
	}

	windows := planChunks(duration, t.opts.Chunk, t.opts.Overlap)
	t.logger.InfoContext(ctx, "transcribing audio", "duration", duration.String(), "chunks", len(windows))

	var merged []domain.Segment
	covered := time.Duration(-1)
	detected := ""
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			return domain.Transcript{}, err
		}

		segments, lang, err := t.transcribeChunk(ctx, rec, wavPath, workDir, i, w)
		if err != nil {
			return domain.Transcript{}, err
		}
		if detected == "" {
			detected = lang
		}
		merged, covered = mergeChunk(merged, covered, w, segments)

		fraction := modelShare + convertShare + (1-modelShare-convertShare)*float64(i+1)/float64(len(windows))
		report(fraction, fmt.Sprintf("transcribed chunk %d of %d", i+1, len(windows)))
	}

	language := normalizeLanguage(t.opts.Language)
	if language == "" {
		language = detected
	}
	return domain.Transcript{
		Title:     audio.Title,
		SourceURL: audio.SourceURL,
		Language:  language,
		Segments:  merged,
	}, nil
}

// transcribeChunk cuts one window out of the wav and recognises it. The
// returned segments carry absolute timing.
func (t *Transcriber) transcribeChunk(ctx context.Context, rec speech.Recognizer, wavPath, workDir string, index int, w window) ([]domain.Segment, string, error) {
	chunkPath := filepath.Join(workDir, fmt.Sprintf("chunk-%03d.wav", index))
	if _, err := t.run(ctx, "ffmpeg chunk extraction failed", t.opts.FFmpegPath, buildChunkArgs(wavPath, chunkPath, w)...); err != nil {
		return nil, "", err
	}

	result, err := rec.Recognize(ctx, chunkPath, normalizeLanguage(t.opts.Language))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		t.logger.WarnContext(ctx, "chunk recognition failed", "chunk", index, "error", err)
		return nil, "", pipeline.Fail(domain.ErrorKindInternal, fmt.Sprintf("speech recognition failed on chunk %d", index+1), err)
	}

	out := make([]domain.Segment, 0, len(result.Segments))
	for _, seg := range result.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" || isNonSpeech(text) {
			continue
		}
		out = append(out, domain.Segment{Start: w.Start + seg.Start, End: w.Start + seg.End, Text: text})
	}
	return out, result.Language, nil
}

// mergeChunk appends the segments of one chunk that are not already
// transcribed. Segments ending at or before covered were heard by the
// previous chunk. Segments starting at or after w.DeferFrom are left to the
// next chunk, which hears them from their beginning. It returns the new end
// of covered audio.
func mergeChunk(merged []domain.Segment, covered time.Duration, w window, segments []domain.Segment) ([]domain.Segment, time.Duration) {
	end := covered
	for _, seg := range segments {
		if seg.Start >= w.DeferFrom || seg.End <= covered {
			continue
		}
		merged = append(merged, seg)
		end = max(end, seg.End)
	}
	return merged, end
}

// mediaDuration asks ffprobe for the length, falling back to the PCM size.
func (t *Transcriber) mediaDuration(ctx context.Context, wavPath string) time.Duration {
	result, err := t.run(ctx, "ffprobe failed", t.opts.FFprobePath, buildFFprobeArgs(wavPath)...)
	if err == nil {
		if seconds, parseErr := strconv.ParseFloat(strings.TrimSpace(result.Stdout), 64); parseErr == nil && seconds > 0 {
			return time.Duration(seconds * float64(time.Second))
		}
	}

	info, statErr := t.stat(wavPath)
	if statErr != nil || info.Size() <= wavHeaderBytes {
		return 0
	}
	return time.Duration(float64(info.Size()-wavHeaderBytes) / bytesPerSecond * float64(time.Second))
}

// window is one chunk of audio. DeferFrom is where the next chunk starts;
// the last window never defers.
type window struct {
	Start     time.Duration
	Length    time.Duration
	DeferFrom time.Duration
}

// planChunks splits duration into windows of chunk length advancing by
// chunk-overlap.
func planChunks(duration, chunk, overlap time.Duration) []window {
	if duration <= 0 {
		return nil
	}
	step := chunk - overlap
	var windows []window
	for start := time.Duration(0); ; start += step {
		length := min(chunk, duration-start)
		windows = append(windows, window{Start: start, Length: length, DeferFrom: time.Duration(math.MaxInt64)})
		if n := len(windows); n > 1 {
			windows[n-2].DeferFrom = start
		}
		if start+length >= duration {
			break
		}
	}
	return windows
}

// isNonSpeech matches whisper annotations like [BLANK_AUDIO] or (music).
func isNonSpeech(text string) bool {
	if len(text) < 2 {
		return false
	}
	first, last := text[0], text[len(text)-1]
	return (first == '[' && last == ']') || (first == '(' && last == ')')
}

// normalizeLanguage maps "auto" and empty language to model detection.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

// buildFFmpegArgs builds preprocessing CLI args for mono 16k PCM WAV output.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-c:a", "pcm_s16le",
		outPath,
	}
}

// buildChunkArgs cuts one window out of the converted wav.
func buildChunkArgs(wavPath, outPath string, w window) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-ss", formatSeconds(w.Start),
		"-t", formatSeconds(w.Length),
		"-i", wavPath,
		"-c:a", "pcm_s16le",
		outPath,
	}
}

// buildFFprobeArgs prints only the container duration in seconds.
func buildFFprobeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
