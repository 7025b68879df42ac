// Package synth orchestrates one-shot speech generation: validate the
// request, hand it to the external engine, and persist the waveform as a
// timestamped WAV in the output directory.
package synth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lucaberton/kokoro-studio/internal/audio"
	"github.com/lucaberton/kokoro-studio/internal/engine"
	"github.com/lucaberton/kokoro-studio/internal/observability"
)

// ErrEmptyText marks requests whose text is blank after trimming.
var ErrEmptyText = errors.New("input text is empty")

// Request is one user-submitted synthesis job. Voice may be an installed
// voice name or the path of a saved voice mix.
type Request struct {
	Text     string
	Voice    string
	LangCode string
	Speed    float64

	// TrimSilence removes leading/trailing silence and clamps internal
	// pauses to KeepSilence.
	TrimSilence bool
	KeepSilence time.Duration
}

// Result describes the produced audio file.
type Result struct {
	Path       string
	SampleRate int
	Duration   time.Duration
	Bytes      int
}

// Orchestrator runs one request at a time against a blocking engine. No
// retries: engine failures are deterministic (bad input, missing
// dependency) or leave external state we cannot reason about.
type Orchestrator struct {
	engine    engine.Engine
	outputDir string
	metrics   *observability.Metrics
}

// silenceGate is the PCM16 amplitude below which a sample counts as silence
// when trimming.
const silenceGate = 300

// New returns an orchestrator writing into outputDir. metrics may be nil.
func New(eng engine.Engine, outputDir string, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{engine: eng, outputDir: outputDir, metrics: metrics}
}

// Synthesize validates, delegates to the engine, and writes the result.
// Nothing is written on failure.
func (o *Orchestrator) Synthesize(ctx context.Context, req Request) (Result, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		o.observe("empty_input", 0)
		return Result{}, ErrEmptyText
	}
	speed := req.Speed
	if speed <= 0 {
		speed = 1.0
	}

	start := time.Now()
	out, err := o.engine.Synthesize(ctx, engine.Request{
		Text:     text,
		Voice:    req.Voice,
		LangCode: req.LangCode,
		Speed:    speed,
	})
	if err != nil {
		o.observe("engine_error", time.Since(start))
		if o.metrics != nil {
			o.metrics.EngineErrors.WithLabelValues("tts").Inc()
		}
		// Surface the engine's failure unmodified.
		return Result{}, err
	}

	pcm := out.PCM
	if req.TrimSilence {
		keep := req.KeepSilence
		if keep <= 0 {
			keep = 50 * time.Millisecond
		}
		pcm = audio.TrimSilence(pcm, out.SampleRate, silenceGate, keep)
	}

	res, err := o.writeResult(pcm, out.SampleRate)
	if err != nil {
		o.observe("write_error", time.Since(start))
		return Result{}, err
	}
	o.observe("ok", time.Since(start))
	return res, nil
}

func (o *Orchestrator) writeResult(pcm []byte, sampleRate int) (Result, error) {
	if err := os.MkdirAll(o.outputDir, 0o755); err != nil {
		return Result{}, err
	}
	path := filepath.Join(o.outputDir, outputFileName())
	if err := audio.WriteWAVPCM16LEFile(path, pcm, sampleRate); err != nil {
		return Result{}, err
	}
	if o.metrics != nil {
		o.metrics.AudioBytesWritten.Add(float64(len(pcm)))
	}
	return Result{
		Path:       path,
		SampleRate: sampleRate,
		Duration:   audio.Duration(pcm, sampleRate),
		Bytes:      len(pcm),
	}, nil
}

func (o *Orchestrator) observe(outcome string, d time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.SynthRequests.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		o.metrics.SynthDuration.Observe(d.Seconds())
	}
}

// outputFileName builds a collision-free name: timestamp plus a short
// random suffix.
func outputFileName() string {
	stamp := time.Now().Format("20060102_150405")
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("kokoro_%s_%s.wav", stamp, suffix)
}
