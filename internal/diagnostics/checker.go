package diagnostics

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"dualmind/internal/domain"
	"dualmind/internal/speech"
)

// Tool describes one external executable a workflow depends on.
type Tool struct {
	Name   string
	Hint   string
	Blocks []domain.JobKind
	// Optional tools never block a job; the workflow degrades instead.
	Optional bool
}

// Tools are the executables checked at startup.
var Tools = []Tool{
	{Name: "yt-dlp", Hint: "Use the fix action to install a managed copy, or install yt-dlp and put it on PATH.", Blocks: []domain.JobKind{domain.JobKindYouTube}},
	{Name: "ffmpeg", Hint: "Install ffmpeg and ensure the binary is available on PATH.", Blocks: []domain.JobKind{domain.JobKindYouTube}},
	{Name: "ffprobe", Hint: "Install ffmpeg; without ffprobe durations are estimated from file size.", Optional: true},
	{Name: "whisper-server", Hint: "Install whisper.cpp, which ships whisper-server, or use the fix action to link an existing server binary.", Blocks: []domain.JobKind{domain.JobKindYouTube}},
}

// Checker validates external tools and required filesystem paths.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	readDir    func(string) ([]os.DirEntry, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	now        func() time.Time
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		readDir:    os.ReadDir,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		now:        time.Now,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := make([]domain.DiagnosticItem, 0, len(Tools)+3)
	for _, tool := range Tools {
		items = append(items, c.checkTool(tool))
	}
	items = append(items,
		c.checkModel(settings),
		c.checkOutputDir(settings.OutputDir),
		c.checkTempDir(),
	)

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: c.now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a required CLI executable is on PATH.
func (c *Checker) checkTool(tool Tool) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "tool_" + tool.Name, Name: tool.Name}
	path, err := c.lookPath(tool.Name)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Tool not found in PATH: %s", tool.Name)
		item.Hint = tool.Hint
		if !tool.Optional {
			item.Blocks = tool.Blocks
		}
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkModel validates an explicit model path, or the catalog model in the
// cache directory. A catalog model that is not cached yet passes, since it
// is downloaded on first use.
func (c *Checker) checkModel(settings domain.Settings) domain.DiagnosticItem {
	if strings.TrimSpace(settings.ModelPath) != "" {
		return c.checkModelPath(settings.ModelPath)
	}

	item := domain.DiagnosticItem{
		ID:     "model",
		Name:   "Speech model",
		Blocks: []domain.JobKind{domain.JobKindYouTube},
	}
	option, ok := speech.Lookup(settings.ModelSize)
	if !ok {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Unknown model size: %q", settings.ModelSize)
		item.Hint = "Pick a model from the catalog in settings."
		return item
	}
	if strings.TrimSpace(settings.ModelDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Model cache directory is empty."
		item.Hint = "Use the fix action to restore the default model directory."
		return item
	}

	target := filepath.Join(settings.ModelDir, option.FileName)
	if info, err := c.stat(target); err == nil && !info.IsDir() && info.Size() > 0 {
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Model %s cached at %s", option.ID, target)
		item.Blocks = nil
		return item
	}
	if err := c.mkdirAll(settings.ModelDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create model directory: %s", settings.ModelDir)
		item.Hint = "Choose a writable model directory or adjust filesystem permissions."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Model %s (%s) will be downloaded on first use", option.ID, option.SizeLabel)
	item.Hint = "Use the fix action to download it now."
	item.Blocks = nil
	return item
}

// checkModelPath validates configured model file or model directory.
func (c *Checker) checkModelPath(modelPath string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:     "model",
		Name:   "Speech model",
		Blocks: []domain.JobKind{domain.JobKindYouTube},
	}

	info, err := c.stat(modelPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		if errors.Is(err, os.ErrNotExist) {
			item.Message = fmt.Sprintf("Model path does not exist: %s", modelPath)
		} else {
			item.Message = fmt.Sprintf("Cannot access model path: %s", modelPath)
		}
		item.Hint = "Clear the custom model path to use the catalog model, or point it at a ggml model file."
		return item
	}

	if !info.IsDir() {
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Model file found: %s", modelPath)
		item.Blocks = nil
		return item
	}

	entries, err := c.readDir(modelPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot read model directory: %s", modelPath)
		item.Hint = "Check permissions for the model directory."
		return item
	}

	for _, entry := range entries {
		if !entry.IsDir() && speech.IsModelFile(entry.Name()) {
			item.Status = domain.DiagnosticStatusPass
			item.Message = fmt.Sprintf("Model directory is valid: %s", modelPath)
			item.Blocks = nil
			return item
		}
	}

	item.Status = domain.DiagnosticStatusFail
	item.Message = fmt.Sprintf("No model files found in directory: %s", modelPath)
	item.Hint = "Place a .bin or .gguf model file in this directory or point to a model file directly."
	return item
}

// checkOutputDir validates output directory existence and write access.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "output_dir",
		Name: "Output directory",
	}

	if strings.TrimSpace(outputDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Output directory is empty."
		item.Hint = "Set an output directory where exported results can be written."
		return item
	}

	if err := c.writable(outputDir); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output directory is not writable: %s", outputDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", outputDir)
	return item
}

// checkTempDir validates the scratch area used for downloaded audio.
func (c *Checker) checkTempDir() domain.DiagnosticItem {
	dir := os.TempDir()
	item := domain.DiagnosticItem{
		ID:   "temp_dir",
		Name: "Temporary directory",
	}
	if err := c.writable(dir); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Temporary directory is not writable: %s", dir)
		item.Hint = "Set TMPDIR to a writable directory."
		item.Blocks = []domain.JobKind{domain.JobKindYouTube}
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

func (c *Checker) writable(dir string) error {
	if err := c.mkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)
	return nil
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	readDir func(string) ([]os.DirEntry, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		readDir:    readDir,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		now:        time.Now,
	}
}
