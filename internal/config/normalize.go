package config

import (
	"strings"

	"dualmind/internal/domain"
)

// Normalize trims paths and resets out-of-range values to defaults.
func Normalize(cfg domain.Settings) domain.Settings {
	defaults := DefaultSettings()

	cfg.ModelSize = strings.ToLower(strings.TrimSpace(cfg.ModelSize))
	if cfg.ModelSize == "" {
		cfg.ModelSize = defaults.ModelSize
	}
	cfg.ModelPath = strings.TrimSpace(cfg.ModelPath)
	cfg.ModelDir = strings.TrimSpace(cfg.ModelDir)
	if cfg.ModelDir == "" {
		cfg.ModelDir = defaults.ModelDir
	}
	cfg.OutputDir = strings.TrimSpace(cfg.OutputDir)
	if cfg.OutputDir == "" {
		cfg.OutputDir = defaults.OutputDir
	}
	cfg.Language = strings.ToLower(strings.TrimSpace(cfg.Language))
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}

	if cfg.ChunkSeconds < 5 || cfg.ChunkSeconds > 600 {
		cfg.ChunkSeconds = DefaultChunkSeconds
	}
	if cfg.ChunkOverlapSeconds < 0 || cfg.ChunkOverlapSeconds >= cfg.ChunkSeconds {
		cfg.ChunkOverlapSeconds = min(DefaultChunkOverlapSeconds, cfg.ChunkSeconds-1)
	}
	if cfg.ParagraphPauseMs <= 0 {
		cfg.ParagraphPauseMs = DefaultParagraphPauseMs
	}

	if cfg.Summary.MainPoints <= 0 {
		cfg.Summary.MainPoints = DefaultMainPoints
	}
	if cfg.Summary.KeyInsights <= 0 {
		cfg.Summary.KeyInsights = DefaultKeyInsights
	}
	if cfg.Summary.ActionItems <= 0 {
		cfg.Summary.ActionItems = DefaultActionItems
	}
	return cfg
}
