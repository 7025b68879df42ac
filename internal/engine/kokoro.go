package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Worker drives a persistent Kokoro inference subprocess over a newline-JSON
// protocol: one request line in on stdin, one response object out on stdout.
// The worker is single-flight; interrupting it mid-synthesis would
// desynchronize the stream, so requests serialize on a mutex and run to
// completion.
type Worker struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	dec    *json.Decoder
	closed bool

	defaultVoice string
	defaultLang  string
}

// WorkerConfig locates the Python interpreter and worker script.
type WorkerConfig struct {
	Python       string
	Script       string
	DefaultVoice string
	DefaultLang  string
}

type workerRequest struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	LangCode string  `json:"lang_code"`
	Speed    float64 `json:"speed"`
}

type workerResponse struct {
	ID          string `json:"id"`
	OK          bool   `json:"ok"`
	SampleRate  int    `json:"sample_rate"`
	AudioBase64 string `json:"audio_base64"`
	Error       string `json:"error"`
}

// StartWorker launches the Kokoro subprocess and runs a warmup request so
// missing dependencies (model weights, eSpeak NG, torch) surface at startup
// instead of on the first user action.
func StartWorker(cfg WorkerConfig) (*Worker, error) {
	py := strings.TrimSpace(cfg.Python)
	if py == "" {
		for _, candidate := range []string{".venv/bin/python3", ".venv/bin/python", "python3"} {
			if p, err := exec.LookPath(candidate); err == nil && strings.TrimSpace(p) != "" {
				py = p
				break
			}
		}
	}
	if py == "" {
		return nil, fmt.Errorf("python interpreter not configured and python3 not found on PATH")
	}

	script := strings.TrimSpace(cfg.Script)
	if script == "" {
		script = "scripts/kokoro_worker.py"
	}
	if !filepath.IsAbs(script) {
		if wd, err := os.Getwd(); err == nil {
			script = filepath.Join(wd, script)
		}
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("kokoro worker script not found: %s", script)
	}

	cmd := exec.Command(py, "-u", script)
	cmd.Env = append(os.Environ(), "PYTORCH_ENABLE_MPS_FALLBACK=1")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	w := &Worker{
		cmd:          cmd,
		stdin:        stdin,
		dec:          json.NewDecoder(stdout),
		defaultVoice: strings.TrimSpace(cfg.DefaultVoice),
		defaultLang:  strings.TrimSpace(cfg.DefaultLang),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := w.Synthesize(ctx, Request{Text: "warmup", Speed: 1.0}); err != nil {
		_ = stdin.Close()
		_ = cmd.Process.Kill()
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("kokoro worker failed to start: %s", msg)
	}
	return w, nil
}

// Synthesize sends one request and decodes exactly one response. Engine
// errors come back as error values carrying the worker's message verbatim.
func (w *Worker) Synthesize(_ context.Context, req Request) (Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return Result{}, fmt.Errorf("kokoro worker closed")
	}

	line := workerRequest{
		ID:       fmt.Sprintf("req-%d", time.Now().UnixNano()),
		Text:     req.Text,
		Voice:    strings.TrimSpace(req.Voice),
		LangCode: strings.TrimSpace(req.LangCode),
		Speed:    req.Speed,
	}
	if line.Voice == "" {
		line.Voice = w.defaultVoice
	}
	if line.LangCode == "" {
		line.LangCode = w.defaultLang
	}
	if line.Speed <= 0 {
		line.Speed = 1.0
	}

	b, _ := json.Marshal(line)
	b = append(b, '\n')
	if _, err := w.stdin.Write(b); err != nil {
		return Result{}, err
	}

	var resp workerResponse
	if err := w.dec.Decode(&resp); err != nil {
		return Result{}, err
	}
	if resp.ID != line.ID {
		return Result{}, fmt.Errorf("kokoro worker out-of-sync (got %q, expected %q)", resp.ID, line.ID)
	}
	if !resp.OK {
		msg := strings.TrimSpace(resp.Error)
		if msg == "" {
			msg = "unknown kokoro error"
		}
		return Result{}, fmt.Errorf("%s", msg)
	}

	sampleRate := resp.SampleRate
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	if strings.TrimSpace(resp.AudioBase64) == "" {
		return Result{PCM: []byte{}, SampleRate: sampleRate}, nil
	}
	pcm, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	if err != nil {
		return Result{}, fmt.Errorf("decode audio_base64: %w", err)
	}
	return Result{PCM: pcm, SampleRate: sampleRate}, nil
}

// Close shuts the worker down, interrupting first and killing after a short
// grace period.
func (w *Worker) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	stdin := w.stdin
	cmd := w.cmd
	w.stdin = nil
	w.cmd = nil
	w.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	_ = cmd.Process.Signal(os.Interrupt)
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-time.After(1200 * time.Millisecond):
		_ = cmd.Process.Kill()
		<-done
	case <-done:
	}
	return nil
}
