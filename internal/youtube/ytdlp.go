package youtube

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

// YTDLP downloads audio with the yt-dlp binary found on PATH.
type YTDLP struct {
	// ProgressInterval throttles progress callbacks.
	ProgressInterval time.Duration
}

// NewYTDLP creates a yt-dlp backed downloader.
func NewYTDLP() *YTDLP {
	return &YTDLP{ProgressInterval: 500 * time.Millisecond}
}

// Download fetches the best audio stream and converts it to wav.
func (y *YTDLP) Download(ctx context.Context, videoURL, dir string, progress func(fraction float64)) (DownloadResult, error) {
	var mu sync.Mutex
	var title string

	dl := ytdlp.New().
		Format("bestaudio/best").
		ExtractAudio().
		AudioFormat("wav").
		NoPlaylist().
		ForceOverwrites().
		RestrictFilenames().
		Output(filepath.Join(dir, "audio.%(ext)s"))

	dl.ProgressFunc(y.ProgressInterval, func(update ytdlp.ProgressUpdate) {
		mu.Lock()
		if update.Info != nil && update.Info.Title != nil && *update.Info.Title != "" {
			title = *update.Info.Title
		}
		mu.Unlock()

		if update.TotalBytes > 0 && progress != nil {
			progress(float64(update.DownloadedBytes) / float64(update.TotalBytes))
		}
	})

	result, err := dl.Run(ctx, videoURL)
	if err != nil {
		stderr := ""
		if result != nil {
			stderr = result.Stderr
		}
		return DownloadResult{}, &DownloadError{Stderr: stderr, Err: err}
	}

	out := DownloadResult{}
	if info, infoErr := result.GetExtractedInfo(); infoErr == nil && len(info) > 0 {
		if info[0].Title != nil {
			out.Title = *info[0].Title
		}
	}
	if out.Title == "" {
		mu.Lock()
		out.Title = title
		mu.Unlock()
	}

	path, err := findAudio(dir)
	if err != nil {
		return DownloadResult{}, err
	}
	out.Path = path
	return out, nil
}

// findAudio locates the extracted file; yt-dlp picks the final extension.
func findAudio(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "audio.*"))
	if err != nil {
		return "", err
	}
	sort.Strings(matches)
	for _, m := range matches {
		if filepath.Ext(m) == ".wav" {
			return m, nil
		}
	}
	for _, m := range matches {
		switch filepath.Ext(m) {
		case ".part", ".ytdl", ".json":
			continue
		}
		return m, nil
	}
	return "", fmt.Errorf("no audio file produced in %s", dir)
}
