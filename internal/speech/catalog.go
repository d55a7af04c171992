package speech

import (
	"os"
	"path/filepath"
	"strings"

	"dualmind/internal/domain"
)

const modelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

var catalog = []domain.WhisperModelOption{
	{ID: "tiny.en", Name: "Tiny (English)", FileName: "ggml-tiny.en.bin", SizeLabel: "~75 MB", Description: "Fastest, English-only model."},
	{ID: "tiny", Name: "Tiny (Multilingual)", FileName: "ggml-tiny.bin", SizeLabel: "~75 MB", Description: "Fastest multilingual model."},
	{ID: "base.en", Name: "Base (English)", FileName: "ggml-base.en.bin", SizeLabel: "~142 MB", Description: "Balanced speed/quality, English-only."},
	{ID: "base", Name: "Base (Multilingual)", FileName: "ggml-base.bin", SizeLabel: "~142 MB", Description: "Default. Balanced speed/quality, multilingual."},
	{ID: "small.en", Name: "Small (English)", FileName: "ggml-small.en.bin", SizeLabel: "~466 MB", Description: "Higher quality, English-only."},
	{ID: "small", Name: "Small (Multilingual)", FileName: "ggml-small.bin", SizeLabel: "~466 MB", Description: "Higher quality multilingual model."},
	{ID: "medium", Name: "Medium (Multilingual)", FileName: "ggml-medium.bin", SizeLabel: "~1.5 GB", Description: "High quality multilingual model."},
	{ID: "large-v3-turbo", Name: "Large v3 Turbo", FileName: "ggml-large-v3-turbo.bin", SizeLabel: "~1.6 GB", Description: "Fast large-v3 variant."},
}

// Catalog returns a copy of the downloadable model presets.
func Catalog() []domain.WhisperModelOption {
	models := make([]domain.WhisperModelOption, len(catalog))
	copy(models, catalog)
	for i := range models {
		models[i].URL = modelBaseURL + models[i].FileName
	}
	return models
}

// Lookup finds a catalog entry by id, case-insensitively.
func Lookup(id string) (domain.WhisperModelOption, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, model := range Catalog() {
		if model.ID == id {
			return model, true
		}
	}
	return domain.WhisperModelOption{}, false
}

// MarkDownloaded flags models whose file exists in any of dirs.
func MarkDownloaded(models []domain.WhisperModelOption, dirs []string) {
	for i := range models {
		for _, dir := range dirs {
			if strings.TrimSpace(dir) == "" {
				continue
			}
			candidate := filepath.Join(dir, models[i].FileName)
			info, err := os.Stat(candidate)
			if err != nil || info.IsDir() || info.Size() == 0 {
				continue
			}
			models[i].Downloaded = true
			models[i].LocalPath = candidate
			break
		}
	}
}

// IsModelFile reports whether path has a whisper.cpp model extension.
func IsModelFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".bin" || ext == ".gguf"
}
