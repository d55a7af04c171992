package langdetect

import "testing"

// TestDetect verifies common languages map to ISO 639-1 codes.
func TestDetect(t *testing.T) {
	tests := map[string]string{
		"The quick brown fox jumps over the lazy dog while the farmer watches from the porch.": "en",
		"Der schnelle braune Fuchs springt über den faulen Hund, während der Bauer zuschaut.":   "de",
		"El rápido zorro marrón salta sobre el perro perezoso mientras el granjero observa.":    "es",
	}
	for text, want := range tests {
		if got := Detect(text); got != want {
			t.Fatalf("Detect(%q) = %s, want %s", text, got, want)
		}
	}
}

// TestDetectShortText verifies tiny inputs are not guessed.
func TestDetectShortText(t *testing.T) {
	if got := Detect("ok"); got != Unknown {
		t.Fatalf("Detect = %s, want %s", got, Unknown)
	}
}

// TestCodeFromName verifies recogniser language names become ISO codes.
func TestCodeFromName(t *testing.T) {
	tests := map[string]string{
		"english":  "en",
		" German ": "de",
		"ru":       "ru",
		"":         "",
		"klingon":  "klingon",
	}
	for name, want := range tests {
		if got := CodeFromName(name); got != want {
			t.Fatalf("CodeFromName(%q) = %q, want %q", name, got, want)
		}
	}
}
