package transcribe

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"dualmind/internal/domain"
	"dualmind/internal/langdetect"
	"dualmind/internal/pipeline"
)

// FormatStageName is the pipeline name of the paragraph formatting stage.
const FormatStageName = "FormatParagraphs"

const (
	maxSentencesPerParagraph = 4
	longSentenceSentences    = 3
	longSentenceChars        = 50
	minFragmentChars         = 3

	headerRule  = "=================================================="
	sectionRule = "------------------------------"
	footerRule  = "--------------------------------------------------"
)

// FormatOptions controls paragraph grouping and the header timestamp.
type FormatOptions struct {
	// Pause between segments that always starts a new paragraph.
	Pause time.Duration
	Now   func() time.Time
}

// Formatter is the FormatParagraphs stage.
type Formatter struct {
	opts FormatOptions
}

// NewFormatter creates a formatter. A zero pause disables pause breaks.
func NewFormatter(opts FormatOptions) *Formatter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Formatter{opts: opts}
}

// Stage returns the typed pipeline stage: domain.Transcript to domain.Outcome.
func (f *Formatter) Stage(weight float64) pipeline.Stage {
	return pipeline.Typed(FormatStageName, weight, f.Format)
}

// Format renders the transcript as a titled, paragraphed document.
func (f *Formatter) Format(_ context.Context, tr domain.Transcript, report pipeline.Sink) (domain.Outcome, error) {
	paragraphs := FormatParagraphs(tr.Segments, f.opts.Pause)
	body := strings.Join(paragraphs, "\n\n")
	if body == "" {
		body = "No transcript available."
	}

	language := strings.TrimSpace(tr.Language)
	if language == "" || language == "auto" {
		language = langdetect.Detect(body)
	}
	title := strings.TrimSpace(tr.Title)
	if title == "" {
		title = "YouTube Video"
	}

	var b strings.Builder
	b.WriteString("YouTube Video Transcription\n")
	b.WriteString(headerRule + "\n\n")
	fmt.Fprintf(&b, "Title: %s\n", title)
	fmt.Fprintf(&b, "URL: %s\n", tr.SourceURL)
	fmt.Fprintf(&b, "Language: %s\n", language)
	fmt.Fprintf(&b, "Processed: %s\n\n", f.opts.Now().Format("2006-01-02 15:04:05"))
	b.WriteString("Transcript:\n")
	b.WriteString(sectionRule + "\n\n")
	b.WriteString(body)
	b.WriteString("\n\n" + footerRule + "\n")

	report(1, "formatted transcript")
	return domain.Outcome{Text: b.String(), Title: title, Language: language}, nil
}

// FormatParagraphs joins timed segments into sentences and groups them.
// A paragraph ends after a pause of at least pause between segments, after
// four sentences, or after three when the third is longer than 50 chars.
func FormatParagraphs(segments []domain.Segment, pause time.Duration) []string {
	var (
		paragraphs []string
		current    []string
		pending    strings.Builder
		prevEnd    time.Duration
	)

	flushParagraph := func() {
		if len(current) > 0 {
			paragraphs = append(paragraphs, strings.Join(current, " "))
			current = nil
		}
	}
	addSentence := func(sentence string) {
		sentence = cleanSentence(sentence)
		if utf8.RuneCountInString(strings.TrimRight(sentence, ".!?")) <= minFragmentChars {
			return
		}
		current = append(current, sentence)
		n := len(current)
		if n >= maxSentencesPerParagraph || (n >= longSentenceSentences && utf8.RuneCountInString(sentence) > longSentenceChars) {
			flushParagraph()
		}
	}
	flushPending := func() {
		if rest := strings.TrimSpace(pending.String()); rest != "" {
			addSentence(rest)
		}
		pending.Reset()
	}

	for i, seg := range segments {
		text := strings.Join(strings.Fields(seg.Text), " ")
		if text == "" {
			continue
		}
		if i > 0 && pause > 0 && seg.Start-prevEnd >= pause {
			flushPending()
			flushParagraph()
		}
		prevEnd = seg.End

		if pending.Len() > 0 {
			pending.WriteByte(' ')
		}
		pending.WriteString(text)

		sentences, rest := splitSentences(pending.String())
		for _, s := range sentences {
			addSentence(s)
		}
		pending.Reset()
		pending.WriteString(rest)
	}
	flushPending()
	flushParagraph()
	return paragraphs
}

// splitSentences returns complete sentences and the unterminated remainder.
func splitSentences(text string) ([]string, string) {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		end := i
		for end+1 < len(runes) && isTerminator(runes[end+1]) {
			end++
		}
		if end+1 < len(runes) && !unicode.IsSpace(runes[end+1]) {
			i = end
			continue
		}
		sentences = append(sentences, strings.TrimSpace(string(runes[start:end+1])))
		start = end + 1
		i = end
	}
	return sentences, strings.TrimSpace(string(runes[start:]))
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// cleanSentence capitalizes the first letter and ensures terminal punctuation.
func cleanSentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	s = string(unicode.ToUpper(r)) + s[size:]
	last, _ := utf8.DecodeLastRuneInString(s)
	if !isTerminator(last) {
		s += "."
	}
	return s
}
