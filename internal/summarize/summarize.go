package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"dualmind/internal/domain"
	"dualmind/internal/langdetect"
	"dualmind/internal/pipeline"
)

// StageName is the pipeline name of the analysis stage.
const StageName = "Summarize"

const wordsPerMinute = 200

const (
	headerRule  = "=================================================="
	sectionRule = "------------------------------"
)

// Options configures section sizes and the report timestamp.
type Options struct {
	Targets domain.SummaryTargets
	Now     func() time.Time
}

// Summarizer is the Summarize stage.
type Summarizer struct {
	opts    Options
	logger  *slog.Logger
	printer *message.Printer
}

// NewSummarizer creates the analysis stage.
func NewSummarizer(opts Options, logger *slog.Logger) *Summarizer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{opts: opts, logger: logger, printer: message.NewPrinter(language.English)}
}

// Stage returns the typed pipeline stage: domain.Document to domain.Outcome.
func (s *Summarizer) Stage(weight float64) pipeline.Stage {
	return pipeline.Typed(StageName, weight, s.Summarize)
}

// Summarize analyses the document text and renders the report.
func (s *Summarizer) Summarize(ctx context.Context, doc domain.Document, report pipeline.Sink) (domain.Outcome, error) {
	text := joinPages(doc.Pages)
	if strings.TrimSpace(text) == "" {
		return domain.Outcome{}, pipeline.Fail(domain.ErrorKindUnreadable, "document has no text", nil)
	}

	report(0.1, "preparing document analysis")
	lang := langdetect.Detect(text)
	if err := ctx.Err(); err != nil {
		return domain.Outcome{}, err
	}

	report(0.3, "analyzing content")
	analysis := Analyze(text, s.opts.Targets)
	if err := ctx.Err(); err != nil {
		return domain.Outcome{}, err
	}

	report(0.8, "formatting results")
	name := filepath.Base(doc.Path)
	info := reportInfo{
		FileName:  name,
		Chars:     utf8.RuneCountInString(text),
		Pages:     len(doc.Pages),
		Words:     len(strings.Fields(text)),
		Language:  lang,
		Keywords:  Keywords(text),
		Processed: s.opts.Now(),
	}
	out := s.render(info, analysis)

	s.logger.InfoContext(ctx, "document analyzed",
		"main_points", len(analysis.MainPoints),
		"key_insights", len(analysis.KeyInsights),
		"action_items", len(analysis.ActionItems),
		"language", lang,
	)
	report(1, "analysis complete")

	return domain.Outcome{
		Text:     out,
		Title:    strings.TrimSuffix(name, filepath.Ext(name)),
		Language: lang,
		Analysis: &analysis,
	}, nil
}

type reportInfo struct {
	FileName  string
	Chars     int
	Pages     int
	Words     int
	Language  string
	Keywords  []string
	Processed time.Time
}

func (s *Summarizer) render(info reportInfo, a domain.AnalysisResult) string {
	var b strings.Builder
	b.WriteString("PDF Document Analysis\n")
	b.WriteString(headerRule + "\n\n")
	fmt.Fprintf(&b, "Document: %s\n", info.FileName)
	b.WriteString(s.printer.Sprintf("Characters: %d\n", info.Chars))
	fmt.Fprintf(&b, "Pages: %d\n", info.Pages)
	fmt.Fprintf(&b, "Language: %s\n", info.Language)
	fmt.Fprintf(&b, "Reading time: %s\n", ReadingTime(info.Words))
	if len(info.Keywords) > 0 {
		top := info.Keywords
		if len(top) > 5 {
			top = top[:5]
		}
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(top, ", "))
	}
	fmt.Fprintf(&b, "Processed: %s\n\n", info.Processed.Format("2006-01-02 15:04:05"))

	writeSection(&b, "MAIN POINTS", a.MainPoints, true, 200, "No clear main points identified in the document")
	writeSection(&b, "KEY INSIGHTS", a.KeyInsights, false, 180, "Document analysis did not reveal clear insights")
	writeSection(&b, "ACTION ITEMS", a.ActionItems, false, 170, "No specific action items or recommendations identified")

	b.WriteString(headerRule + "\n")
	return b.String()
}

func writeSection(b *strings.Builder, title string, items []string, numbered bool, maxChars int, empty string) {
	b.WriteString(title + "\n")
	b.WriteString(sectionRule + "\n")
	if len(items) == 0 {
		b.WriteString("• " + empty + "\n\n")
		return
	}
	for i, item := range items {
		item = shorten(strings.TrimRight(item, ".,!?"), maxChars)
		if numbered {
			fmt.Fprintf(b, "%d. %s\n", i+1, item)
		} else {
			fmt.Fprintf(b, "• %s\n", item)
		}
	}
	b.WriteString("\n")
}

// ReadingTime estimates reading time at 200 words per minute.
func ReadingTime(words int) string {
	minutes := float64(words) / wordsPerMinute
	switch {
	case minutes < 1:
		return "less than 1 minute"
	case minutes < 60:
		n := int(minutes)
		if n == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", n)
	default:
		return fmt.Sprintf("%.1f hours", minutes/60)
	}
}

func joinPages(pages []string) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}

func shorten(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxChars-3]) + "..."
}
