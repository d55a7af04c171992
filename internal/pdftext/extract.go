package pdftext

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"dualmind/internal/domain"
	"dualmind/internal/pipeline"
)

// StageName is the pipeline name of the text extraction stage.
const StageName = "ExtractText"

// MaxFileSize is the largest PDF accepted for analysis.
const MaxFileSize = 50 << 20

// ErrEncrypted reports a PDF whose trailer carries an /Encrypt dictionary.
var ErrEncrypted = errors.New("pdf is encrypted")

// document is an opened PDF with 1-based page access.
type document interface {
	NumPage() int
	PageText(n int) (string, error)
	Close() error
}

// Extractor is the ExtractText stage.
type Extractor struct {
	logger *slog.Logger
	open   func(path string) (document, error)
}

// NewExtractor creates an extractor backed by github.com/ledongthuc/pdf.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger, open: openPDF}
}

// Stage returns the typed pipeline stage: file path to domain.Document.
func (e *Extractor) Stage(weight float64) pipeline.Stage {
	return pipeline.Typed(StageName, weight, e.Extract)
}

// Extract reads the text of every page. A document without any text is an
// unreadable failure, never an empty result.
func (e *Extractor) Extract(ctx context.Context, path string, report pipeline.Sink) (domain.Document, error) {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return domain.Document{}, pipeline.Fail(domain.ErrorKindUnsupported, "file must be a PDF", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return domain.Document{}, pipeline.Fail(domain.ErrorKindIO, "cannot access PDF file", err)
	}
	if info.IsDir() || info.Size() == 0 {
		return domain.Document{}, pipeline.Fail(domain.ErrorKindUnreadable, "PDF file is empty", nil)
	}
	if info.Size() > MaxFileSize {
		return domain.Document{}, pipeline.Fail(domain.ErrorKindUnsupported, fmt.Sprintf("PDF is larger than %d MB", MaxFileSize>>20), nil)
	}

	report(0, "opening PDF")
	doc, err := e.open(path)
	if err != nil {
		if isEncryptionError(err) {
			return domain.Document{}, pipeline.Fail(domain.ErrorKindUnreadable, "PDF is password protected", err)
		}
		return domain.Document{}, pipeline.Fail(domain.ErrorKindUnreadable, "PDF appears to be corrupted", err)
	}
	defer doc.Close()

	total := doc.NumPage()
	if total <= 0 {
		return domain.Document{}, pipeline.Fail(domain.ErrorKindUnreadable, "PDF has no pages", nil)
	}

	pages := make([]string, 0, total)
	textPages := 0
	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return domain.Document{}, err
		}
		text, err := doc.PageText(n)
		if err != nil {
			e.logger.WarnContext(ctx, "page text extraction failed", "page", n, "error", err)
			text = ""
		}
		text = strings.TrimSpace(text)
		if text != "" {
			textPages++
		}
		pages = append(pages, text)
		report(float64(n)/float64(total), fmt.Sprintf("extracted page %d of %d", n, total))
	}

	if textPages == 0 {
		return domain.Document{}, pipeline.Fail(domain.ErrorKindUnreadable, "no text could be extracted; the PDF may contain only images", nil)
	}
	e.logger.InfoContext(ctx, "pdf text extracted", "pages", total, "text_pages", textPages)
	return domain.Document{Path: path, Pages: pages}, nil
}

// isEncryptionError reports open failures caused by document encryption,
// including encryption schemes the parser cannot handle.
func isEncryptionError(err error) bool {
	if errors.Is(err, ErrEncrypted) || errors.Is(err, pdf.ErrInvalidPassword) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "encryption")
}

type pdfDocument struct {
	file   *os.File
	reader *pdf.Reader
}

// openPDF opens path with ledongthuc/pdf. The parser panics on some
// malformed inputs, so panics become errors. The parser silently decrypts
// files with an empty user password; those are rejected with ErrEncrypted.
func openPDF(path string) (doc document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("parse pdf: %v", r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	if !r.Trailer().Key("Encrypt").IsNull() {
		f.Close()
		return nil, ErrEncrypted
	}
	return &pdfDocument{file: f, reader: r}, nil
}

func (d *pdfDocument) NumPage() int {
	return d.reader.NumPage()
}

func (d *pdfDocument) PageText(n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("page %d: %v", n, r)
		}
	}()
	page := d.reader.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

func (d *pdfDocument) Close() error {
	return d.file.Close()
}
