package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"dualmind/internal/domain"
)

// Config selects which model file a Model resolves to.
type Config struct {
	// Size is a catalog id such as "base" or "small".
	Size string
	// Path overrides Size with an explicit model file or directory.
	Path string
	// Dir is the cache directory catalog models are downloaded into.
	Dir string
	// Server is the whisper-server executable. Empty means DefaultServerBinary.
	Server string
}

// ConfigFrom extracts the model selection from settings.
func ConfigFrom(settings domain.Settings) Config {
	return Config{Size: settings.ModelSize, Path: settings.ModelPath, Dir: settings.ModelDir, Server: DefaultServerBinary}
}

// InitError reports that the speech model could not be made ready.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("speech model unavailable: %v", e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// ErrorKind classifies every init failure as model_init_failure.
func (e *InitError) ErrorKind() domain.ErrorKind {
	return domain.ErrorKindModelInitFailure
}

type fetchFunc func(ctx context.Context, dest, url string, progress ProgressFunc) error

// Model resolves the model file, loads it into a speech server once per
// process and grants exclusive use. Failed initialization is not cached, so
// the next job retries it.
type Model struct {
	sem    chan struct{}
	logger *slog.Logger
	fetch  fetchFunc
	server *Server

	mu       sync.Mutex
	cfg      Config
	resolved string
}

// NewModel creates a lazily initialized model handle.
func NewModel(cfg Config, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	dl := &Downloader{}
	return &Model{
		sem:    make(chan struct{}, 1),
		logger: logger,
		fetch:  dl.DownloadFile,
		server: NewServer(logger),
		cfg:    cfg,
	}
}

// Configure switches the model selection. A changed selection drops the cache.
func (m *Model) Configure(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg != m.cfg {
		m.cfg = cfg
		m.resolved = ""
	}
}

// Acquire waits for exclusive use of the model, preparing it if needed.
// progress receives download fractions on first use. The model stays loaded
// after release and later jobs reuse it. The returned release must be
// called when inference is done.
func (m *Model) Acquire(ctx context.Context, progress func(fraction float64)) (Recognizer, func(), error) {
	if err := m.lock(ctx); err != nil {
		return nil, nil, err
	}

	path, err := m.ensure(ctx, progress)
	if err != nil {
		<-m.sem
		return nil, nil, err
	}

	m.mu.Lock()
	binary := m.cfg.Server
	m.mu.Unlock()
	rec, err := m.server.Load(ctx, binary, path)
	if err != nil {
		<-m.sem
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		m.logger.ErrorContext(ctx, "speech model load failed", "model", filepath.Base(path), "error", err)
		return nil, nil, &InitError{Err: err}
	}

	var once sync.Once
	return rec, func() { once.Do(func() { <-m.sem }) }, nil
}

// Resolve prepares the model file without loading it.
func (m *Model) Resolve(ctx context.Context, progress func(fraction float64)) (string, error) {
	if err := m.lock(ctx); err != nil {
		return "", err
	}
	defer func() { <-m.sem }()
	return m.ensure(ctx, progress)
}

// Close unloads the model. A later Acquire loads it again.
func (m *Model) Close() error {
	return m.server.Close()
}

func (m *Model) lock(ctx context.Context) error {
	select {
	case m.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Model) ensure(ctx context.Context, progress func(fraction float64)) (string, error) {
	m.mu.Lock()
	cfg := m.cfg
	cached := m.resolved
	m.mu.Unlock()

	if cached != "" {
		if info, err := os.Stat(cached); err == nil && !info.IsDir() {
			return cached, nil
		}
	}

	path, err := m.resolve(ctx, cfg, progress)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		m.logger.ErrorContext(ctx, "speech model init failed", "error", err)
		return "", &InitError{Err: err}
	}

	m.mu.Lock()
	if m.cfg == cfg {
		m.resolved = path
	}
	m.mu.Unlock()
	return path, nil
}

func (m *Model) resolve(ctx context.Context, cfg Config, progress func(fraction float64)) (string, error) {
	if strings.TrimSpace(cfg.Path) != "" {
		return ResolveModelPath(cfg.Path)
	}

	option, ok := Lookup(cfg.Size)
	if !ok {
		return "", fmt.Errorf("unknown model size %q", cfg.Size)
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		return "", fmt.Errorf("model cache directory is not configured")
	}

	target := filepath.Join(cfg.Dir, option.FileName)
	if info, err := os.Stat(target); err == nil && !info.IsDir() && info.Size() > 0 {
		return target, nil
	}

	m.logger.InfoContext(ctx, "downloading speech model", "model", option.ID, "size", option.SizeLabel, "dest", target)
	err := m.fetch(ctx, target, option.URL, func(written, total int64) {
		if progress != nil && total > 0 {
			progress(float64(written) / float64(total))
		}
	})
	if err != nil {
		return "", fmt.Errorf("download model %s: %w", option.Name, err)
	}
	return target, nil
}

// ResolveModelPath returns a model file from a file or directory path.
// A directory resolves to its first .bin or .gguf file by name.
func ResolveModelPath(rawPath string) (string, error) {
	modelPath := strings.TrimSpace(rawPath)
	if modelPath == "" {
		return "", fmt.Errorf("model path is required")
	}

	info, err := os.Stat(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot access model path: %s", modelPath)
	}
	if !info.IsDir() {
		if info.Size() == 0 {
			return "", fmt.Errorf("model file is empty: %s", modelPath)
		}
		return modelPath, nil
	}

	entries, err := os.ReadDir(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory: %s", modelPath)
	}

	modelNames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && IsModelFile(entry.Name()) {
			modelNames = append(modelNames, entry.Name())
		}
	}
	if len(modelNames) == 0 {
		return "", fmt.Errorf("no .bin or .gguf model files found in: %s", modelPath)
	}

	sort.Strings(modelNames)
	return filepath.Join(modelPath, modelNames[0]), nil
}

// DownloadOption fetches a catalog model into dir and returns its path.
func DownloadOption(ctx context.Context, dir, id string, progress ProgressFunc) (string, error) {
	option, ok := Lookup(id)
	if !ok {
		return "", fmt.Errorf("unknown model id: %s", id)
	}
	target := filepath.Join(dir, option.FileName)
	dl := &Downloader{}
	if err := dl.DownloadFile(ctx, target, option.URL, progress); err != nil {
		return "", fmt.Errorf("download model %s: %w", option.Name, err)
	}
	return target, nil
}
