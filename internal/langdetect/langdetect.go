package langdetect

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
)

// Unknown is returned when no language can be determined.
const Unknown = "unknown"

// sampleLimit caps how much text is fed to the detector.
const sampleLimit = 4000

var supported = []lingua.Language{
	lingua.English,
	lingua.German,
	lingua.French,
	lingua.Spanish,
	lingua.Italian,
	lingua.Portuguese,
	lingua.Dutch,
	lingua.Polish,
	lingua.Russian,
	lingua.Ukrainian,
	lingua.Turkish,
	lingua.Japanese,
	lingua.Chinese,
	lingua.Korean,
}

var (
	once     sync.Once
	detector lingua.LanguageDetector
)

func load() lingua.LanguageDetector {
	once.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(supported...).
			WithMinimumRelativeDistance(0.1).
			Build()
	})
	return detector
}

// Detect returns the ISO 639-1 code of text, lower case, or Unknown.
func Detect(text string) string {
	text = strings.TrimSpace(text)
	if len([]rune(text)) < 20 {
		return Unknown
	}
	if len(text) > sampleLimit {
		text = strings.ToValidUTF8(text[:sampleLimit], "")
	}

	language, ok := load().DetectLanguageOf(text)
	if !ok {
		return Unknown
	}
	return strings.ToLower(language.IsoCode639_1().String())
}

// CodeFromName maps a language name such as "english" to its ISO 639-1 code.
// Two and three letter inputs are taken as codes already. Names lingua does
// not know are returned lower cased.
func CodeFromName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || len(name) <= 3 {
		return name
	}
	for _, language := range lingua.AllLanguages() {
		if strings.EqualFold(language.String(), name) {
			return strings.ToLower(language.IsoCode639_1().String())
		}
	}
	return name
}
