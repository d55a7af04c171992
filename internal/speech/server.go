package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"dualmind/internal/domain"
	"dualmind/internal/langdetect"
	"dualmind/internal/logging"
)

// DefaultServerBinary is the whisper.cpp HTTP server executable.
const DefaultServerBinary = "whisper-server"

// Result is the recognised speech of one audio file. Segment times are
// relative to the start of that file.
type Result struct {
	Language string
	Segments []domain.Segment
}

// Recognizer transcribes one 16 kHz mono wav file with a loaded model.
type Recognizer interface {
	Recognize(ctx context.Context, wavPath, language string) (Result, error)
}

// process is a running server started by a launchFunc.
type process interface {
	// Exited is closed once the process is gone.
	Exited() <-chan struct{}
	// Err describes why the process exited. Valid after Exited is closed.
	Err() error
	Stop() error
}

type launchFunc func(binary, modelPath string) (process, string, error)

// Server keeps one whisper-server process with the model loaded in memory
// and reuses it for every recognition until the model changes or Close.
type Server struct {
	logger       *slog.Logger
	client       *http.Client
	launch       launchFunc
	readyTimeout time.Duration
	pollInterval time.Duration

	mu      sync.Mutex
	proc    process
	binary  string
	model   string
	baseURL string
}

// NewServer creates a server handle. No process is started until Load.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:       logger,
		client:       &http.Client{},
		launch:       launchWhisperServer,
		readyTimeout: 3 * time.Minute,
		pollInterval: 250 * time.Millisecond,
	}
}

// Load returns a recognizer backed by a server serving modelPath, starting
// or restarting the process when needed.
func (s *Server) Load(ctx context.Context, binary, modelPath string) (Recognizer, error) {
	if binary == "" {
		binary = DefaultServerBinary
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc != nil && s.binary == binary && s.model == modelPath && !exited(s.proc) {
		return endpoint{client: s.client, baseURL: s.baseURL}, nil
	}
	s.stopLocked()

	started := time.Now()
	proc, baseURL, err := s.launch(binary, modelPath)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%s is not installed: %w", binary, err)
		}
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}
	if err := s.waitReady(ctx, proc, baseURL); err != nil {
		_ = proc.Stop()
		return nil, err
	}

	s.proc, s.binary, s.model, s.baseURL = proc, binary, modelPath, baseURL
	s.logger.InfoContext(ctx, "speech model loaded",
		"model", filepath.Base(modelPath),
		"addr", baseURL,
		"took", time.Since(started).Round(time.Millisecond).String(),
	)
	return endpoint{client: s.client, baseURL: baseURL}, nil
}

// Close stops the server process if one is running.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Server) stopLocked() error {
	if s.proc == nil {
		return nil
	}
	err := s.proc.Stop()
	s.logger.Info("speech model unloaded", "model", filepath.Base(s.model))
	s.proc, s.binary, s.model, s.baseURL = nil, "", "", ""
	return err
}

// waitReady polls the health endpoint until the model is loaded.
func (s *Server) waitReady(ctx context.Context, proc process, baseURL string) error {
	deadline := time.NewTimer(s.readyTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if s.healthy(ctx, baseURL) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-proc.Exited():
			return fmt.Errorf("speech server exited while loading the model: %w", proc.Err())
		case <-deadline.C:
			return fmt.Errorf("speech server not ready after %s", s.readyTimeout)
		case <-ticker.C:
		}
	}
}

func (s *Server) healthy(ctx context.Context, baseURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func exited(p process) bool {
	select {
	case <-p.Exited():
		return true
	default:
		return false
	}
}

// endpoint posts audio to a running server's inference route.
type endpoint struct {
	client  *http.Client
	baseURL string
}

type inferenceResponse struct {
	Error    string `json:"error"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Recognize uploads wavPath and returns its timed segments. An empty
// language lets the model detect it.
func (e endpoint) Recognize(ctx context.Context, wavPath, language string) (Result, error) {
	body, contentType, err := inferenceForm(wavPath, language)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/inference", body)
	if err != nil {
		return Result{}, fmt.Errorf("build inference request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := e.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read inference response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("speech server returned %s: %s", resp.Status, logging.Truncate(strings.TrimSpace(string(data)), 300))
	}

	var out inferenceResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return Result{}, fmt.Errorf("decode inference response: %w", err)
	}
	if out.Error != "" {
		return Result{}, fmt.Errorf("speech server: %s", out.Error)
	}

	result := Result{
		Language: langdetect.CodeFromName(out.Language),
		Segments: make([]domain.Segment, 0, len(out.Segments)),
	}
	for _, seg := range out.Segments {
		result.Segments = append(result.Segments, domain.Segment{
			Start: seconds(seg.Start),
			End:   seconds(seg.End),
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	return result, nil
}

func inferenceForm(wavPath, language string) (io.Reader, string, error) {
	file, err := os.Open(wavPath)
	if err != nil {
		return nil, "", fmt.Errorf("open chunk audio: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("copy chunk audio: %w", err)
	}

	lang := strings.TrimSpace(language)
	if lang == "" {
		lang = "auto"
	}
	fields := [][2]string{
		{"response_format", "verbose_json"},
		{"language", lang},
		{"temperature", "0.0"},
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", f[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

func seconds(v float64) time.Duration {
	return time.Duration(math.Round(v*1000)) * time.Millisecond
}

// execProcess is a whisper-server child process.
type execProcess struct {
	cmd    *exec.Cmd
	stderr *tailBuffer
	done   chan struct{}
	err    error
}

func (p *execProcess) Exited() <-chan struct{} { return p.done }

func (p *execProcess) Err() error {
	if tail := strings.TrimSpace(p.stderr.String()); tail != "" {
		return fmt.Errorf("%v: %s", p.err, logging.Truncate(lastLine(tail), 300))
	}
	return p.err
}

func (p *execProcess) Stop() error {
	if exited(p) {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-p.done
	return nil
}

// launchWhisperServer starts binary on a free loopback port.
func launchWhisperServer(binary, modelPath string) (process, string, error) {
	port, err := freePort()
	if err != nil {
		return nil, "", err
	}
	cmd := exec.Command(binary,
		"-m", modelPath,
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
	)
	stderr := &tailBuffer{max: 8 << 10}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, "", err
	}

	p := &execProcess{cmd: cmd, stderr: stderr, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, "http://127.0.0.1:" + strconv.Itoa(port), nil
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("reserve port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
