package config

import (
	"os"
	"path/filepath"

	"dualmind/internal/domain"
)

const (
	DefaultModelSize           = "base"
	DefaultLanguage            = "auto"
	DefaultChunkSeconds        = 30
	DefaultChunkOverlapSeconds = 2
	DefaultParagraphPauseMs    = 1500
	DefaultMainPoints          = 4
	DefaultKeyInsights         = 3
	DefaultActionItems         = 3

	appDirName = ".dualmind"
)

// AppDir returns the per-user application directory.
func AppDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, appDirName)
}

// DefaultSettingsPath is where the launcher keeps settings.
func DefaultSettingsPath() string {
	return filepath.Join(AppDir(), "settings.yaml")
}

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		ModelSize:           DefaultModelSize,
		ModelDir:            filepath.Join(AppDir(), "models"),
		OutputDir:           filepath.Join(homeDir, "Documents", "DualMind"),
		Language:            DefaultLanguage,
		ChunkSeconds:        DefaultChunkSeconds,
		ChunkOverlapSeconds: DefaultChunkOverlapSeconds,
		ParagraphPauseMs:    DefaultParagraphPauseMs,
		Summary: domain.SummaryTargets{
			MainPoints:  DefaultMainPoints,
			KeyInsights: DefaultKeyInsights,
			ActionItems: DefaultActionItems,
		},
	}
}
