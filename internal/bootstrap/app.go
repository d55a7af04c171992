package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"dualmind/internal/cleanup"
	"dualmind/internal/config"
	"dualmind/internal/diagnostics"
	"dualmind/internal/domain"
	"dualmind/internal/export"
	"dualmind/internal/jobs"
	"dualmind/internal/speech"
	"dualmind/internal/youtube"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// EventJob is the push event carrying jobs.Event payloads to the frontend.
const EventJob = "job:event"

// EventModelProgress carries model download fractions to the frontend.
const EventModelProgress = "model:progress"

// staleWorkDirAge is how old a leftover scratch dir must be to be swept.
const staleWorkDirAge = 24 * time.Hour

var pdfDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "PDF documents",
		Pattern:     "*.pdf",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

var textDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Text files",
		Pattern:     "*.txt",
	},
}

// Options configures App construction.
type Options struct {
	// SettingsPath defaults to ~/.dualmind/settings.yaml.
	SettingsPath string
	// Assets holds the embedded frontend. Nil serves ./frontend from disk.
	Assets fs.FS
	Logger *slog.Logger
	// LookupEnv resolves DUALMIND_* overrides. Nil uses os.LookupEnv.
	LookupEnv config.LookupFunc
}

// App wires configuration, jobs, pipelines and UI runtime callbacks.
type App struct {
	Store    config.Store
	Runner   *jobs.Runner
	Exporter *export.Exporter
	Model    *speech.Model

	logger     *slog.Logger
	checker    *diagnostics.Checker
	assets     fs.FS
	lookupEnv  config.LookupFunc
	emit       func(ctx context.Context, name string, data ...interface{})
	fetchModel func(ctx context.Context, dir, id string, progress speech.ProgressFunc) (string, error)

	mu          sync.Mutex
	settings    domain.Settings
	diagnostics domain.DiagnosticReport
	runtimeCtx  context.Context
}

// New builds the application with persisted settings and startup diagnostics.
func New(opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	settingsPath := opts.SettingsPath
	if strings.TrimSpace(settingsPath) == "" {
		settingsPath = config.DefaultSettingsPath()
	}
	store := config.NewStore(settingsPath)

	app := &App{
		Store:      store,
		Exporter:   export.NewExporter(logger),
		logger:     logger,
		checker:    diagnostics.NewChecker(),
		assets:     opts.Assets,
		lookupEnv:  opts.LookupEnv,
		emit:       wailsruntime.EventsEmit,
		fetchModel: speech.DownloadOption,
	}

	settings, err := app.loadSettings()
	if err != nil {
		return nil, err
	}
	app.Model = speech.NewModel(speech.ConfigFrom(settings), logger)

	workflows := NewWorkflows(app.currentSettings, app.Model, youtube.NewYTDLP(), logger)
	app.Runner = jobs.NewRunner(workflows.Pipeline,
		jobs.WithLogger(logger),
		jobs.WithKeepWorkDir(func() bool { return app.currentSettings().KeepAudio }),
	)
	app.applySettings(settings)

	if removed, err := cleanup.Sweep(os.TempDir(), time.Now().Add(-staleWorkDirAge)); err != nil {
		logger.Warn("stale work dir sweep incomplete", "error", err)
	} else if len(removed) > 0 {
		logger.Info("removed stale work dirs", "count", len(removed))
	}

	return app, nil
}

// NewWithAssets builds the application serving the embedded frontend.
func NewWithAssets(assets fs.FS) (*App, error) {
	return New(Options{Assets: assets})
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "DualMind",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Shutdown cancels any running job, then unloads the speech model.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = nil
	a.mu.Unlock()

	if a.Runner != nil && a.Runner.IsRunning() {
		_ = a.Runner.Cancel("")
		select {
		case <-a.Runner.Idle():
		case <-time.After(5 * time.Second):
			a.logger.Warn("job did not stop before shutdown")
		}
	}
	if a.Model != nil {
		if err := a.Model.Close(); err != nil {
			a.logger.Warn("unload speech model", "error", err)
		}
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.diagnostics
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.loadSettings()
	if err != nil {
		return domain.DiagnosticReport{}, err
	}
	return a.applySettings(settings), nil
}

// GetSettings loads and returns the effective settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.loadSettings()
	if err != nil {
		return domain.Settings{}, err
	}
	a.applySettings(settings)
	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
// The next job picks up the new values; a running job keeps its own.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	effective := config.Normalize(config.ApplyEnv(normalized, a.lookupEnv))
	a.applySettings(effective)
	return effective, nil
}

// StartYouTube starts transcribing the video at url.
func (a *App) StartYouTube(url string) (domain.Job, error) {
	return a.start(domain.JobKindYouTube, url)
}

// StartPDF starts analysing the PDF at path.
func (a *App) StartPDF(path string) (domain.Job, error) {
	return a.start(domain.JobKindPDF, path)
}

func (a *App) start(kind domain.JobKind, input string) (domain.Job, error) {
	if a.GetDiagnostics().Blocked(kind) {
		a.logger.Warn("starting job with failing diagnostics", "job_kind", kind)
	}

	job, err := a.Runner.Start(jobs.Spec{Kind: kind, Input: input})
	if err != nil {
		return domain.Job{}, err
	}
	a.forwardEvents(job.ID)
	return job, nil
}

// forwardEvents pushes one job's events to the frontend until it ends.
func (a *App) forwardEvents(jobID string) {
	a.Runner.Bus().FollowAsync(context.Background(), jobID, func(event jobs.Event) bool {
		a.mu.Lock()
		ctx := a.runtimeCtx
		a.mu.Unlock()
		if ctx != nil && a.emit != nil {
			a.emit(ctx, EventJob, event)
		}
		return true
	})
}

// CancelJob cancels the running job. An empty id targets whichever job runs.
func (a *App) CancelJob(id string) error {
	return a.Runner.Cancel(strings.TrimSpace(id))
}

// CurrentJob returns the newest job with its status and progress.
func (a *App) CurrentJob() domain.Job {
	return a.Runner.Current()
}

// LastResult returns the most recent succeeded job, or nil.
func (a *App) LastResult() *domain.Job {
	job, ok := a.Runner.Last()
	if !ok {
		return nil
	}
	return &job
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.Runner.Events(sinceSeq)
}

// ClearJob discards a finished job from the view.
func (a *App) ClearJob() error {
	return a.Runner.Clear()
}

// ExportResult writes the last succeeded result to path and returns the
// path written. An empty path uses the default name in the output dir.
func (a *App) ExportResult(path string) (string, error) {
	job, ok := a.Runner.Last()
	if !ok {
		job = a.Runner.Current()
	}

	dest := strings.TrimSpace(path)
	if dest == "" {
		dest = filepath.Join(a.currentSettings().OutputDir, export.DefaultFileName(job))
	}
	if err := a.Exporter.Export(job, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// PickPDFFile opens a native file dialog for PDF selection.
func (a *App) PickPDFFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select PDF document",
		Filters: pdfDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickExportPath opens a native save dialog prefilled for the last result.
func (a *App) PickExportPath() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	job, ok := a.Runner.Last()
	if !ok {
		return "", export.ErrInvalidState
	}

	path, err := wailsruntime.SaveFileDialog(ctx, wailsruntime.SaveDialogOptions{
		Title:            "Export result",
		DefaultDirectory: a.currentSettings().OutputDir,
		DefaultFilename:  export.DefaultFileName(job),
		Filters:          textDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickModelFile opens a native file dialog for whisper model selection.
func (a *App) PickModelFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select whisper model",
		Filters: []wailsruntime.FileFilter{
			{DisplayName: "Whisper models", Pattern: "*.bin;*.gguf"},
		},
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickOutputDirectory opens a native directory picker for exports.
func (a *App) PickOutputDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select output directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or configured output dir) in file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		target = a.currentSettings().OutputDir
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// loadSettings reads persisted settings with environment overrides applied.
func (a *App) loadSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return config.Normalize(config.ApplyEnv(settings, a.lookupEnv)), nil
}

// applySettings makes settings current and reruns diagnostics.
func (a *App) applySettings(settings domain.Settings) domain.DiagnosticReport {
	if a.Model != nil {
		a.Model.Configure(speech.ConfigFrom(settings))
	}
	var report domain.DiagnosticReport
	if a.checker != nil {
		report = a.checker.Run(settings)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings = settings
	a.diagnostics = report
	return report
}

func (a *App) currentSettings() domain.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
