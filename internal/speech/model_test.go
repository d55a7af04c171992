package speech

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dualmind/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestLookup verifies known model lookup.
func TestLookup(t *testing.T) {
	model, found := Lookup(" Base ")
	if !found {
		t.Fatal("expected base model to exist")
	}
	if model.FileName != "ggml-base.bin" || !strings.HasSuffix(model.URL, "/ggml-base.bin") {
		t.Fatalf("model = %+v", model)
	}
	if _, found := Lookup("huge"); found {
		t.Fatal("unexpected model for unknown id")
	}
}

// TestMarkDownloaded marks catalog models when the file exists in known dirs.
func TestMarkDownloaded(t *testing.T) {
	root := t.TempDir()
	modelPath := filepath.Join(root, "ggml-base.bin")
	if err := os.WriteFile(modelPath, []byte("stub"), 0o644); err != nil {
		t.Fatalf("write model file: %v", err)
	}

	models := []domain.WhisperModelOption{
		{ID: "base", FileName: "ggml-base.bin"},
		{ID: "small", FileName: "ggml-small.bin"},
	}
	MarkDownloaded(models, []string{"", root})

	if !models[0].Downloaded || models[0].LocalPath != modelPath {
		t.Fatalf("base = %+v", models[0])
	}
	if models[1].Downloaded {
		t.Fatal("expected small to remain not downloaded")
	}
}

// TestResolveModelPathFromDirectory picks the first model file by name.
func TestResolveModelPathFromDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"notes.txt", "ggml-small.bin", "ggml-base.bin"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	got, err := ResolveModelPath(dir)
	if err != nil {
		t.Fatalf("ResolveModelPath error: %v", err)
	}
	if filepath.Base(got) != "ggml-base.bin" {
		t.Fatalf("got %s", got)
	}

	if _, err := ResolveModelPath(t.TempDir()); err == nil {
		t.Fatal("expected error for dir without models")
	}
}

// TestModelDownloadsOnceAndCaches verifies first use fetches and later uses reuse the file.
func TestModelDownloadsOnceAndCaches(t *testing.T) {
	dir := t.TempDir()
	m := NewModel(Config{Size: "base", Dir: dir}, quietLogger())
	fetches := 0
	m.fetch = func(_ context.Context, dest, url string, progress ProgressFunc) error {
		fetches++
		progress(5, 10)
		progress(10, 10)
		return os.WriteFile(dest, []byte("ggml"), 0o644)
	}

	launches := attachFakeServer(t, m, nil)

	var fractions []float64
	_, release, err := m.Acquire(context.Background(), func(f float64) { fractions = append(fractions, f) })
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	release()
	if len(launches.models) != 1 || launches.models[0] != filepath.Join(dir, "ggml-base.bin") {
		t.Fatalf("loaded = %v", launches.models)
	}
	if len(fractions) != 2 || fractions[1] != 1 {
		t.Fatalf("fractions = %v", fractions)
	}

	if _, err := m.Resolve(context.Background(), nil); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if fetches != 1 {
		t.Fatalf("fetches = %d, want 1", fetches)
	}
}

// TestModelInitFailureIsRetried verifies failures are classified and not cached.
func TestModelInitFailureIsRetried(t *testing.T) {
	dir := t.TempDir()
	m := NewModel(Config{Size: "base", Dir: dir}, quietLogger())
	attempts := 0
	m.fetch = func(_ context.Context, dest, _ string, _ ProgressFunc) error {
		attempts++
		if attempts == 1 {
			return errors.New("connection reset")
		}
		return os.WriteFile(dest, []byte("ggml"), 0o644)
	}

	_, _, err := m.Acquire(context.Background(), nil)
	if domain.KindOf(err) != domain.ErrorKindModelInitFailure {
		t.Fatalf("kind = %s, want model_init_failure", domain.KindOf(err))
	}

	if _, err := m.Resolve(context.Background(), nil); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

// TestModelAcquireIsExclusive verifies a second holder waits until release.
func TestModelAcquireIsExclusive(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ggml-base.bin"), []byte("ggml"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := NewModel(Config{Size: "base", Dir: dir}, quietLogger())
	attachFakeServer(t, m, nil)

	_, release, err := m.Acquire(context.Background(), nil)
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, _, err := m.Acquire(ctx, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second acquire error = %v, want deadline exceeded", err)
	}

	release()
	release()
	_, release2, err := m.Acquire(context.Background(), nil)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release2()
}

// TestModelConfigureDropsCache verifies a new selection is resolved again.
func TestModelConfigureDropsCache(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"ggml-base.bin", "ggml-small.bin"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("ggml"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	m := NewModel(Config{Size: "base", Dir: dir}, quietLogger())
	if path, _ := m.Resolve(context.Background(), nil); filepath.Base(path) != "ggml-base.bin" {
		t.Fatalf("path = %s", path)
	}

	m.Configure(Config{Size: "small", Dir: dir})
	if path, _ := m.Resolve(context.Background(), nil); filepath.Base(path) != "ggml-small.bin" {
		t.Fatalf("path after configure = %s", path)
	}
}

// TestDownloadFileWritesAtomically verifies content lands at the destination only on success.
func TestDownloadFileWritesAtomically(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("model-bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "models", "ggml-base.bin")
	dl := &Downloader{Client: srv.Client()}

	var last int64
	if err := dl.DownloadFile(context.Background(), dest, srv.URL+"/ok", func(written, _ int64) { last = written }); err != nil {
		t.Fatalf("DownloadFile error: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "model-bytes" || last != int64(len("model-bytes")) {
		t.Fatalf("data = %q, err = %v, last = %d", data, err, last)
	}

	missing := filepath.Join(filepath.Dir(dest), "other.bin")
	if err := dl.DownloadFile(context.Background(), missing, srv.URL+"/missing", nil); err == nil {
		t.Fatal("expected error for 404")
	}
	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Fatalf("destination created on failure: %v", err)
	}
	if _, err := os.Stat(missing + ".download"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}
