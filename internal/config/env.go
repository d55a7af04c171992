package config

import (
	"os"
	"strconv"
	"strings"

	"dualmind/internal/domain"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "DUALMIND_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides settings from DUALMIND_* variables.
// Unparseable numbers and booleans are ignored.
func ApplyEnv(cfg domain.Settings, lookup LookupFunc) domain.Settings {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}

	str("MODEL_SIZE", &cfg.ModelSize)
	str("MODEL_PATH", &cfg.ModelPath)
	str("MODEL_DIR", &cfg.ModelDir)
	str("OUTPUT_DIR", &cfg.OutputDir)
	str("LANGUAGE", &cfg.Language)
	num("CHUNK_SECONDS", &cfg.ChunkSeconds)
	num("CHUNK_OVERLAP_SECONDS", &cfg.ChunkOverlapSeconds)
	num("PARAGRAPH_PAUSE_MS", &cfg.ParagraphPauseMs)
	num("SUMMARY_MAIN_POINTS", &cfg.Summary.MainPoints)
	num("SUMMARY_KEY_INSIGHTS", &cfg.Summary.KeyInsights)
	num("SUMMARY_ACTION_ITEMS", &cfg.Summary.ActionItems)

	if v, ok := lookup(EnvPrefix + "KEEP_AUDIO"); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.KeepAudio = b
		}
	}
	return cfg
}
