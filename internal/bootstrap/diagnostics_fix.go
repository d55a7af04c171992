package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"dualmind/internal/config"
	"dualmind/internal/domain"
	"dualmind/internal/speech"
)

const installCommandTimeout = 45 * time.Minute

type installOption struct {
	manager  string
	commands [][]string
}

// InstallOrFixDiagnostic applies an OS-specific remediation for one failed diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)

	settingsChanged := false
	var fixErr error

	switch id {
	case "tool_yt-dlp":
		fixErr = a.installYTDLP()
	case "tool_ffmpeg", "tool_ffprobe":
		fixErr = installFFmpegForCurrentOS()
	case "tool_" + speech.DefaultServerBinary:
		fixErr = installWhisperForCurrentOS()
	case "model":
		settings, settingsChanged, fixErr = a.installOrFixModel(settings)
	case "output_dir":
		settings, settingsChanged, fixErr = installOrFixOutputDir(settings)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if settingsChanged {
		if saveErr := a.Store.Save(settings); saveErr != nil {
			report := a.applySettings(a.currentSettings())
			return report, fmt.Errorf("save settings after fix: %w", saveErr)
		}
	}

	report := a.applySettings(config.Normalize(config.ApplyEnv(settings, a.lookupEnv)))
	if fixErr != nil {
		a.logger.Warn("diagnostic fix failed", "item", id, "error", fixErr)
		return report, fixErr
	}
	a.logger.Info("diagnostic fix applied", "item", id)
	return report, nil
}

func ensureLocalBinOnPATH(homeDir string) error {
	binDir := localBinDir(homeDir)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	entries := filepath.SplitList(current)
	for _, entry := range entries {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

func localBinDir(homeDir string) string {
	return filepath.Join(homeDir, ".dualmind", "bin")
}

// installYTDLP fetches a managed yt-dlp release and links it into the local bin dir.
func (a *App) installYTDLP() error {
	ctx, cancel := context.WithTimeout(context.Background(), installCommandTimeout)
	defer cancel()

	resolved, err := ytdlp.Install(ctx, nil)
	if err != nil {
		return fmt.Errorf("install yt-dlp: %w", err)
	}
	if err := createAliasFromExecutable("yt-dlp", resolved.Executable); err != nil {
		return err
	}
	if err := requireToolsOnPath("yt-dlp"); err != nil {
		return fmt.Errorf("verify yt-dlp on PATH: %w", err)
	}
	return nil
}

func installFFmpegForCurrentOS() error {
	var options []installOption

	switch goruntime.GOOS {
	case "windows":
		options = []installOption{
			{manager: "winget", commands: [][]string{{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"}}},
			{manager: "choco", commands: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "ffmpeg"}}},
		}
	case "darwin":
		options = []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	default:
		options = []installOption{
			{manager: "apt-get", commands: [][]string{{"apt-get", "update"}, {"apt-get", "install", "-y", "ffmpeg"}}},
			{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", "ffmpeg"}}},
			{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "ffmpeg"}}},
			{manager: "zypper", commands: [][]string{{"zypper", "install", "-y", "ffmpeg"}}},
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	}

	if err := runFirstSuccessfulInstall(options); err != nil {
		return fmt.Errorf("install ffmpeg/ffprobe: %w", err)
	}
	if err := requireToolsOnPath("ffmpeg", "ffprobe"); err != nil {
		return fmt.Errorf("verify ffmpeg/ffprobe on PATH: %w", err)
	}
	return nil
}

func installWhisperForCurrentOS() error {
	if err := requireToolsOnPath(speech.DefaultServerBinary); err == nil {
		return nil
	}
	if err := createWhisperAlias(); err == nil {
		if err := requireToolsOnPath(speech.DefaultServerBinary); err == nil {
			return nil
		}
	}

	var options []installOption

	switch goruntime.GOOS {
	case "windows":
		options = []installOption{
			{manager: "winget", commands: [][]string{{"winget", "install", "--id", "ggerganov.whisper.cpp", "--exact", "--accept-source-agreements", "--accept-package-agreements"}}},
			{manager: "choco", commands: [][]string{{"choco", "install", "whispercpp", "-y"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "whisper-cpp"}}},
		}
	case "darwin":
		options = []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", "whisper-cpp"}}},
		}
	default:
		options = []installOption{
			{manager: "apt-get", commands: [][]string{{"apt-get", "update"}, {"apt-get", "install", "-y", "whisper-cpp"}}},
			{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", "whisper-cpp"}}},
			{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "whisper.cpp"}}},
			{manager: "zypper", commands: [][]string{{"zypper", "install", "-y", "whisper-cpp"}}},
			{manager: "brew", commands: [][]string{{"brew", "install", "whisper-cpp"}}},
		}
	}

	installErr := runFirstSuccessfulInstall(options)
	if installErr == nil {
		if err := requireToolsOnPath(speech.DefaultServerBinary); err == nil {
			return nil
		}
	}

	if err := createWhisperAlias(); err != nil {
		if installErr != nil {
			return fmt.Errorf("install whisper.cpp failed: %v | alias creation failed: %w", installErr, err)
		}
		return fmt.Errorf("create %s command alias: %w", speech.DefaultServerBinary, err)
	}

	if err := requireToolsOnPath(speech.DefaultServerBinary); err != nil {
		if installErr != nil {
			return fmt.Errorf("install whisper.cpp failed: %v | verify %s on PATH: %w", installErr, speech.DefaultServerBinary, err)
		}
		return fmt.Errorf("verify %s on PATH: %w", speech.DefaultServerBinary, err)
	}
	return nil
}

func runFirstSuccessfulInstall(options []installOption) error {
	if len(options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", goruntime.GOOS)
	}

	errorsByManager := make([]string, 0, len(options))
	atLeastOneManager := false

	for _, option := range options {
		if !commandAvailable(option.manager) {
			continue
		}
		atLeastOneManager = true
		err := runInstallCommands(option.commands)
		if err == nil {
			return nil
		}
		errorsByManager = append(errorsByManager, fmt.Sprintf("%s: %v", option.manager, err))
	}

	if !atLeastOneManager {
		return fmt.Errorf("no supported package manager found for %s", goruntime.GOOS)
	}
	return errors.New(strings.Join(errorsByManager, " | "))
}

func runInstallCommands(commands [][]string) error {
	for _, command := range commands {
		if err := runCommandWithPossibleElevation(command); err != nil {
			return err
		}
	}
	return nil
}

func runCommandWithPossibleElevation(command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("empty command")
	}

	candidates := [][]string{command}
	if goruntime.GOOS == "linux" && requiresElevation(command[0]) {
		if commandAvailable("pkexec") {
			candidates = append(candidates, append([]string{"pkexec"}, command...))
		}
		if commandAvailable("sudo") {
			candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
		}
	}

	attemptErrors := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		err := runCommand(candidate[0], candidate[1:]...)
		if err == nil {
			return nil
		}
		attemptErrors = append(attemptErrors, err.Error())
	}

	return errors.New(strings.Join(attemptErrors, " | "))
}

func runCommand(name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), installCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", formatCommand(name, args), installCommandTimeout)
	}

	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) > 500 {
		trimmed = trimmed[:500] + "..."
	}
	if trimmed == "" {
		return fmt.Errorf("%s failed: %w", formatCommand(name, args), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", formatCommand(name, args), err, trimmed)
}

func formatCommand(name string, args []string) string {
	parts := append([]string{name}, args...)
	return strings.Join(parts, " ")
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}

func commandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func requireToolsOnPath(names ...string) error {
	missing := make([]string, 0, len(names))
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tools on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}

func createWhisperAlias() error {
	if _, err := exec.LookPath(speech.DefaultServerBinary); err == nil {
		return nil
	}

	candidates := []string{"whisper-cpp-server", "whisper.cpp-server", "whisper_server", "server"}
	var sourcePath string
	for _, candidate := range candidates {
		path, err := exec.LookPath(candidate)
		if err == nil {
			sourcePath = path
			break
		}
	}
	if sourcePath == "" {
		return fmt.Errorf("no compatible whisper server executable found (tried: %s)", strings.Join(candidates, ", "))
	}

	return createAliasFromExecutable(speech.DefaultServerBinary, sourcePath)
}

// createAliasFromExecutable writes a launcher named alias into the local bin dir.
func createAliasFromExecutable(alias, sourcePath string) error {
	if strings.TrimSpace(sourcePath) == "" {
		return fmt.Errorf("source executable path is empty")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return err
	}
	return writeAlias(localBinDir(homeDir), alias, sourcePath)
}

func writeAlias(binDir, alias, sourcePath string) error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("create local bin directory: %w", err)
	}

	if goruntime.GOOS == "windows" {
		aliasPath := filepath.Join(binDir, alias+".cmd")
		content := fmt.Sprintf("@echo off\r\n\"%s\" %%*\r\n", sourcePath)
		if err := os.WriteFile(aliasPath, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s alias file: %w", alias, err)
		}
		return nil
	}

	aliasPath := filepath.Join(binDir, alias)
	escaped := strings.ReplaceAll(sourcePath, "\"", "\\\"")
	content := fmt.Sprintf("#!/usr/bin/env sh\nexec \"%s\" \"$@\"\n", escaped)
	if err := os.WriteFile(aliasPath, []byte(content), 0o755); err != nil {
		return fmt.Errorf("write %s alias script: %w", alias, err)
	}
	return nil
}

// installOrFixModel drops a broken custom model path and downloads the
// configured catalog model into the model directory.
func (a *App) installOrFixModel(settings domain.Settings) (domain.Settings, bool, error) {
	changed := false
	if path := strings.TrimSpace(settings.ModelPath); path != "" {
		if _, err := os.Stat(path); err == nil {
			return settings, false, fmt.Errorf("custom model path exists; clear it in settings to use the catalog model")
		}
		settings.ModelPath = ""
		changed = true
	}
	if strings.TrimSpace(settings.ModelDir) == "" {
		settings.ModelDir = config.DefaultSettings().ModelDir
		changed = true
	}

	ctx := a.emitContext()
	id := settings.ModelSize
	if _, err := a.fetchModel(context.Background(), settings.ModelDir, id, func(written, total int64) {
		a.emitModelProgress(ctx, id, written, total)
	}); err != nil {
		return settings, changed, fmt.Errorf("download model: %w", err)
	}
	return settings, changed, nil
}

func installOrFixOutputDir(settings domain.Settings) (domain.Settings, bool, error) {
	outputDir := strings.TrimSpace(settings.OutputDir)
	changed := false
	if outputDir == "" {
		outputDir = config.DefaultSettings().OutputDir
		settings.OutputDir = outputDir
		changed = true
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return settings, changed, fmt.Errorf("create output directory %s: %w", outputDir, err)
	}

	return settings, changed, nil
}
