package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dualmind/internal/domain"
	"dualmind/internal/speech"
)

// ModelProgress is the payload of EventModelProgress.
type ModelProgress struct {
	ID       string  `json:"id"`
	Written  int64   `json:"written"`
	Total    int64   `json:"total"`
	Fraction float64 `json:"fraction"`
}

// GetWhisperModels returns built-in whisper.cpp model presets marked with
// their local cache state.
func (a *App) GetWhisperModels() []domain.WhisperModelOption {
	models := speech.Catalog()
	speech.MarkDownloaded(models, knownModelDirs(a.currentSettings()))
	return models
}

// DownloadWhisperModel downloads the selected catalog model into the model
// directory and makes it the active model.
func (a *App) DownloadWhisperModel(modelID string) (domain.Settings, error) {
	id := strings.TrimSpace(modelID)
	if id == "" {
		return domain.Settings{}, fmt.Errorf("model id is required")
	}
	if _, found := speech.Lookup(id); !found {
		return domain.Settings{}, fmt.Errorf("unknown model id: %s", id)
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	effective := a.currentSettings()

	ctx := a.emitContext()
	path, err := a.fetchModel(context.Background(), effective.ModelDir, id, func(written, total int64) {
		a.emitModelProgress(ctx, id, written, total)
	})
	if err != nil {
		return domain.Settings{}, err
	}
	a.logger.Info("model downloaded", "model", id, "path", path)

	settings.ModelSize = id
	settings.ModelPath = ""
	return a.SaveSettings(settings)
}

func (a *App) emitContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runtimeCtx
}

func (a *App) emitModelProgress(ctx context.Context, id string, written, total int64) {
	if ctx == nil || a.emit == nil {
		return
	}
	progress := ModelProgress{ID: id, Written: written, Total: total}
	if total > 0 {
		progress.Fraction = float64(written) / float64(total)
	}
	a.emit(ctx, EventModelProgress, progress)
}

// knownModelDirs lists directories that may hold catalog model files.
func knownModelDirs(settings domain.Settings) []string {
	seen := map[string]struct{}{}
	var dirs []string
	add := func(path string) {
		p := strings.TrimSpace(path)
		if p == "" {
			return
		}
		clean := filepath.Clean(p)
		if clean == "." {
			return
		}
		if _, ok := seen[clean]; ok {
			return
		}
		seen[clean] = struct{}{}
		dirs = append(dirs, clean)
	}

	add(settings.ModelDir)

	modelPath := strings.TrimSpace(settings.ModelPath)
	if modelPath != "" {
		info, statErr := os.Stat(modelPath)
		switch {
		case statErr == nil && info.IsDir():
			add(modelPath)
		case statErr == nil:
			add(filepath.Dir(modelPath))
		case errors.Is(statErr, os.ErrNotExist) && speech.IsModelFile(modelPath):
			add(filepath.Dir(modelPath))
		}
	}
	return dirs
}
