package speech

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dualmind/internal/domain"
)

type fakeProcess struct {
	done    chan struct{}
	err     error
	stopped int
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{done: make(chan struct{})}
}

func (p *fakeProcess) Exited() <-chan struct{} { return p.done }

func (p *fakeProcess) Err() error { return p.err }

func (p *fakeProcess) Stop() error {
	p.stopped++
	if !exited(p) {
		close(p.done)
	}
	return nil
}

// fakeLaunches records server starts and points them at one HTTP server.
type fakeLaunches struct {
	url      string
	err      error
	binaries []string
	models   []string
	procs    []*fakeProcess
}

func (f *fakeLaunches) launch(binary, modelPath string) (process, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	f.binaries = append(f.binaries, binary)
	f.models = append(f.models, modelPath)
	p := newFakeProcess()
	f.procs = append(f.procs, p)
	return p, f.url, nil
}

const verboseJSON = `{"task":"transcribe","language":"english","duration":3.2,"text":"Hello there. General Kenobi.",
"segments":[{"id":0,"start":0.0,"end":1.52,"text":" Hello there."},{"id":1,"start":1.52,"end":3.2,"text":" General Kenobi."}]}`

// fakeWhisperServer serves the health route and the given inference handler.
func fakeWhisperServer(t *testing.T, inference http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})
	if inference == nil {
		inference = func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, verboseJSON)
		}
	}
	mux.HandleFunc("/inference", inference)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// attachFakeServer replaces the model's process launcher.
func attachFakeServer(t *testing.T, m *Model, inference http.HandlerFunc) *fakeLaunches {
	t.Helper()
	srv := fakeWhisperServer(t, inference)
	launches := &fakeLaunches{url: srv.URL}
	m.server.launch = launches.launch
	m.server.client = srv.Client()
	m.server.pollInterval = 5 * time.Millisecond
	return launches
}

func newTestServer(t *testing.T, inference http.HandlerFunc) (*Server, *fakeLaunches) {
	t.Helper()
	srv := fakeWhisperServer(t, inference)
	s := NewServer(quietLogger())
	launches := &fakeLaunches{url: srv.URL}
	s.launch = launches.launch
	s.client = srv.Client()
	s.pollInterval = 5 * time.Millisecond
	return s, launches
}

func writeWav(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunk-000.wav")
	if err := os.WriteFile(path, []byte("RIFF-chunk"), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

// TestServerLoadsModelOnceAcrossRecognitions verifies one process serves
// every chunk and the inference form carries the audio and options.
func TestServerLoadsModelOnceAcrossRecognitions(t *testing.T) {
	var forms []map[string]string
	s, launches := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		data, _ := io.ReadAll(file)
		forms = append(forms, map[string]string{
			"name":            header.Filename,
			"data":            string(data),
			"response_format": r.FormValue("response_format"),
			"language":        r.FormValue("language"),
		})
		_, _ = io.WriteString(w, verboseJSON)
	})
	wav := writeWav(t)

	for i := 0; i < 3; i++ {
		rec, err := s.Load(context.Background(), "", "/models/ggml-base.bin")
		if err != nil {
			t.Fatalf("Load error: %v", err)
		}
		got, err := rec.Recognize(context.Background(), wav, "")
		if err != nil {
			t.Fatalf("Recognize error: %v", err)
		}
		if got.Language != "en" || len(got.Segments) != 2 {
			t.Fatalf("result = %+v", got)
		}
		if got.Segments[0].End != 1520*time.Millisecond || got.Segments[1].Text != "General Kenobi." {
			t.Fatalf("segments = %+v", got.Segments)
		}
	}

	if len(launches.models) != 1 || launches.binaries[0] != DefaultServerBinary {
		t.Fatalf("launches = %+v", launches)
	}
	if len(forms) != 3 {
		t.Fatalf("forms = %d", len(forms))
	}
	f := forms[0]
	if f["name"] != "chunk-000.wav" || f["data"] != "RIFF-chunk" || f["response_format"] != "verbose_json" || f["language"] != "auto" {
		t.Fatalf("form = %+v", f)
	}
}

// TestServerRestartsForNewModel verifies switching models replaces the process.
func TestServerRestartsForNewModel(t *testing.T) {
	s, launches := newTestServer(t, nil)
	if _, err := s.Load(context.Background(), "", "/models/ggml-base.bin"); err != nil {
		t.Fatalf("Load base: %v", err)
	}
	if _, err := s.Load(context.Background(), "", "/models/ggml-small.bin"); err != nil {
		t.Fatalf("Load small: %v", err)
	}
	if len(launches.procs) != 2 || launches.procs[0].stopped != 1 || launches.procs[1].stopped != 0 {
		t.Fatalf("launches = %+v", launches.procs)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if launches.procs[1].stopped != 1 {
		t.Fatal("server still running after Close")
	}
}

// TestServerRelaunchesAfterExit verifies a crashed process is replaced.
func TestServerRelaunchesAfterExit(t *testing.T) {
	s, launches := newTestServer(t, nil)
	if _, err := s.Load(context.Background(), "", "/m.bin"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	close(launches.procs[0].done)

	if _, err := s.Load(context.Background(), "", "/m.bin"); err != nil {
		t.Fatalf("Load after exit: %v", err)
	}
	if len(launches.procs) != 2 {
		t.Fatalf("launches = %d, want 2", len(launches.procs))
	}
}

// TestServerLoadFailsWhenProcessExits verifies a process dying during model
// load is reported instead of waiting for the timeout.
func TestServerLoadFailsWhenProcessExits(t *testing.T) {
	s := NewServer(quietLogger())
	s.pollInterval = 5 * time.Millisecond
	s.launch = func(string, string) (process, string, error) {
		p := newFakeProcess()
		p.err = errors.New("exit status 1: failed to load model")
		close(p.done)
		return p, "http://127.0.0.1:1", nil
	}

	_, err := s.Load(context.Background(), "", "/bad.bin")
	if err == nil || !strings.Contains(err.Error(), "failed to load model") {
		t.Fatalf("error = %v", err)
	}
}

// TestServerLoadHonorsCancellation verifies a stuck load stops with the job.
func TestServerLoadHonorsCancellation(t *testing.T) {
	s := NewServer(quietLogger())
	s.pollInterval = 5 * time.Millisecond
	var proc *fakeProcess
	s.launch = func(string, string) (process, string, error) {
		proc = newFakeProcess()
		return proc, "http://127.0.0.1:1", nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := s.Load(ctx, "", "/m.bin"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v", err)
	}
	if proc.stopped != 1 {
		t.Fatal("half started process was not stopped")
	}
}

// TestRecognizeReportsServerErrors verifies HTTP and payload errors surface.
func TestRecognizeReportsServerErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "failed to read WAV file", http.StatusBadRequest)
			},
			want: "failed to read WAV file",
		},
		{
			name: "payload",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"error":"failed to process audio"}`)
			},
			want: "failed to process audio",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, tt.handler)
			rec, err := s.Load(context.Background(), "", "/m.bin")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if _, err := rec.Recognize(context.Background(), writeWav(t), "en"); err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

// TestModelKeepsServerLoadedAcrossJobs verifies the model is loaded once
// for consecutive holders and reloaded after Configure picks another file.
func TestModelKeepsServerLoadedAcrossJobs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"ggml-base.bin", "ggml-small.bin"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("ggml"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	m := NewModel(Config{Size: "base", Dir: dir}, quietLogger())
	launches := attachFakeServer(t, m, nil)

	for i := 0; i < 3; i++ {
		_, release, err := m.Acquire(context.Background(), nil)
		if err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		release()
	}
	if len(launches.models) != 1 || filepath.Base(launches.models[0]) != "ggml-base.bin" {
		t.Fatalf("launches = %v", launches.models)
	}

	m.Configure(Config{Size: "small", Dir: dir})
	_, release, err := m.Acquire(context.Background(), nil)
	if err != nil {
		t.Fatalf("Acquire after configure: %v", err)
	}
	release()
	if len(launches.models) != 2 || filepath.Base(launches.models[1]) != "ggml-small.bin" {
		t.Fatalf("launches = %v", launches.models)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if launches.procs[1].stopped != 1 {
		t.Fatal("model still loaded after Close")
	}
}

// TestModelMissingServerIsInitFailure verifies a missing executable blocks speech.
func TestModelMissingServerIsInitFailure(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ggml-base.bin"), []byte("ggml"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := NewModel(Config{Size: "base", Dir: dir}, quietLogger())
	launches := attachFakeServer(t, m, nil)
	launches.err = &exec.Error{Name: DefaultServerBinary, Err: exec.ErrNotFound}

	_, _, err := m.Acquire(context.Background(), nil)
	if domain.KindOf(err) != domain.ErrorKindModelInitFailure {
		t.Fatalf("kind = %s (err=%v)", domain.KindOf(err), err)
	}

	launches.err = nil
	_, release, err := m.Acquire(context.Background(), nil)
	if err != nil {
		t.Fatalf("slot not released after failure: %v", err)
	}
	release()
}
