package pdftext

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/rc4"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ledongthuc/pdf"

	"dualmind/internal/domain"
	"dualmind/internal/pipeline"
)

type fakeDocument struct {
	pages  []string
	errs   map[int]error
	closed bool
}

func (d *fakeDocument) NumPage() int { return len(d.pages) }

func (d *fakeDocument) PageText(n int) (string, error) {
	if err := d.errs[n]; err != nil {
		return "", err
	}
	return d.pages[n-1], nil
}

func (d *fakeDocument) Close() error {
	d.closed = true
	return nil
}

func writePDF(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.pdf")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return path
}

func newFakeExtractor(doc *fakeDocument, openErr error) *Extractor {
	e := NewExtractor(nil)
	e.open = func(string) (document, error) {
		if openErr != nil {
			return nil, openErr
		}
		return doc, nil
	}
	return e
}

// TestExtractReadsAllPages checks per-page text and progress.
func TestExtractReadsAllPages(t *testing.T) {
	doc := &fakeDocument{
		pages: []string{" first page ", "", "third page"},
		errs:  map[int]error{2: errors.New("bad font")},
	}
	e := newFakeExtractor(doc, nil)
	path := writePDF(t, "%PDF-1.4")

	var fractions []float64
	got, err := e.Extract(context.Background(), path, func(f float64, _ string) {
		fractions = append(fractions, f)
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(got.Pages) != 3 || got.Pages[0] != "first page" || got.Pages[1] != "" || got.Pages[2] != "third page" {
		t.Fatalf("pages = %q", got.Pages)
	}
	if got.Path != path {
		t.Fatalf("path = %q", got.Path)
	}
	if len(fractions) != 4 || fractions[3] != 1 {
		t.Fatalf("fractions = %v", fractions)
	}
	if !doc.closed {
		t.Fatal("document was not closed")
	}
}

// TestExtractEncryptedIsUnreadable checks password protected files fail.
func TestExtractEncryptedIsUnreadable(t *testing.T) {
	e := newFakeExtractor(nil, fmt.Errorf("open: %w", pdf.ErrInvalidPassword))
	_, err := e.Extract(context.Background(), writePDF(t, "%PDF-1.4"), func(float64, string) {})
	if domain.KindOf(err) != domain.ErrorKindUnreadable {
		t.Fatalf("kind = %s", domain.KindOf(err))
	}
	if !errors.Is(err, pdf.ErrInvalidPassword) {
		t.Fatalf("error = %v", err)
	}
}

// TestExtractUnsupportedEncryptionIsPasswordProtected checks parser errors
// about encryption schemes are not reported as corruption.
func TestExtractUnsupportedEncryptionIsPasswordProtected(t *testing.T) {
	e := newFakeExtractor(nil, errors.New("unsupported PDF: encryption version V=5"))
	_, err := e.Extract(context.Background(), writePDF(t, "%PDF-1.4"), func(float64, string) {})
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) || stageErr.Kind != domain.ErrorKindUnreadable {
		t.Fatalf("error = %v", err)
	}
	if stageErr.Message != "PDF is password protected" {
		t.Fatalf("message = %q", stageErr.Message)
	}
}

// TestExtractRejectsEmptyPasswordEncryption runs the real parser on an RC4
// encrypted file that opens without a password.
func TestExtractRejectsEmptyPasswordEncryption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restricted.pdf")
	if err := os.WriteFile(path, encryptedPDF(t, "Secret quarterly findings show that revenue grew."), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		t.Fatalf("parser rejected the file itself: %v", err)
	}
	f.Close()
	if r.Trailer().Key("Encrypt").IsNull() {
		t.Fatal("file has no /Encrypt entry")
	}

	got, err := NewExtractor(nil).Extract(context.Background(), path, func(float64, string) {})
	if domain.KindOf(err) != domain.ErrorKindUnreadable {
		t.Fatalf("kind = %s err = %v pages = %q", domain.KindOf(err), err, got.Pages)
	}
	if !errors.Is(err, ErrEncrypted) {
		t.Fatalf("error = %v", err)
	}
}

var passwordPad = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41, 0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80, 0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func rc4XOR(t *testing.T, key, data []byte) []byte {
	t.Helper()
	c, err := rc4.NewCipher(key)
	if err != nil {
		t.Fatalf("rc4: %v", err)
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

// encryptedPDF builds a one page PDF using the standard security handler
// (V1 R2, 40-bit RC4) with empty user and owner passwords.
func encryptedPDF(t *testing.T, text string) []byte {
	t.Helper()
	perms := int32(-4)
	p := uint32(perms)
	id := md5.Sum([]byte("dualmind restricted fixture"))

	ownerKey := md5.Sum(passwordPad)
	o := rc4XOR(t, ownerKey[:5], passwordPad)

	h := md5.New()
	h.Write(passwordPad)
	h.Write(o)
	h.Write([]byte{byte(p), byte(p >> 8), byte(p >> 16), byte(p >> 24)})
	h.Write(id[:])
	fileKey := h.Sum(nil)[:5]
	u := rc4XOR(t, fileKey, passwordPad)

	objKey := md5.Sum(append(append([]byte{}, fileKey...), 4, 0, 0, 0, 0))
	content := rc4XOR(t, objKey[:], []byte(fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)))

	var buf bytes.Buffer
	offsets := make([]int, 6)
	buf.WriteString("%PDF-1.4\n")
	obj := func(n int, body string) {
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, body)
	}
	obj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	obj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	obj(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>")
	offsets[4] = buf.Len()
	fmt.Fprintf(&buf, "4 0 obj\n<< /Length %d >>\nstream\n", len(content))
	buf.Write(content)
	buf.WriteString("\nendstream\nendobj\n")
	obj(5, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	xref := buf.Len()
	buf.WriteString("xref\n0 6\n0000000000 65535 f \n")
	for n := 1; n <= 5; n++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[n])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size 6 /Root 1 0 R /Encrypt << /Filter /Standard /V 1 /R 2 /O <%x> /U <%x> /P %d >> /ID [<%x> <%x>] >>\n",
		o, u, perms, id[:], id[:])
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xref)
	return buf.Bytes()
}

// TestExtractImageOnlyIsUnreadable checks empty text is never returned.
func TestExtractImageOnlyIsUnreadable(t *testing.T) {
	e := newFakeExtractor(&fakeDocument{pages: []string{"", "  \n"}}, nil)
	_, err := e.Extract(context.Background(), writePDF(t, "%PDF-1.4"), func(float64, string) {})
	if domain.KindOf(err) != domain.ErrorKindUnreadable {
		t.Fatalf("kind = %s", domain.KindOf(err))
	}
}

// TestExtractCorruptFileIsUnreadable runs the real parser on garbage.
func TestExtractCorruptFileIsUnreadable(t *testing.T) {
	e := NewExtractor(nil)
	_, err := e.Extract(context.Background(), writePDF(t, "this is not a pdf at all"), func(float64, string) {})
	if domain.KindOf(err) != domain.ErrorKindUnreadable {
		t.Fatalf("kind = %s (err=%v)", domain.KindOf(err), err)
	}
}

// TestExtractRejectsBadInputs checks path validation before parsing.
func TestExtractRejectsBadInputs(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	empty := filepath.Join(dir, "empty.pdf")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tests := []struct {
		name string
		path string
		want domain.ErrorKind
	}{
		{name: "wrong extension", path: txt, want: domain.ErrorKindUnsupported},
		{name: "missing", path: filepath.Join(dir, "missing.pdf"), want: domain.ErrorKindIO},
		{name: "empty", path: empty, want: domain.ErrorKindUnreadable},
	}
	e := newFakeExtractor(&fakeDocument{pages: []string{"text"}}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Extract(context.Background(), tt.path, func(float64, string) {})
			if got := domain.KindOf(err); got != tt.want {
				t.Fatalf("kind = %s, want %s", got, tt.want)
			}
		})
	}
}

// TestExtractHonorsCancellation checks the context is checked per page.
func TestExtractHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newFakeExtractor(&fakeDocument{pages: []string{"a", "b"}}, nil)
	_, err := e.Extract(ctx, writePDF(t, "%PDF-1.4"), func(float64, string) {})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v", err)
	}
}
