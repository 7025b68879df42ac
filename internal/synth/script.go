package synth

import (
	"context"
	"strings"
	"time"

	"github.com/lucaberton/kokoro-studio/internal/audio"
	"github.com/lucaberton/kokoro-studio/internal/engine"
)

// ScriptLine is one line of a multi-speaker script.
type ScriptLine struct {
	Voice string
	Text  string
}

// ScriptRequest synthesizes a script where each line may name its own voice
// using the "{voice_name} text" form. Lines without a tag use DefaultVoice.
type ScriptRequest struct {
	Script       string
	DefaultVoice string
	LangCode     string
	Speed        float64

	// PadBetween inserts silence between consecutive lines.
	PadBetween  time.Duration
	TrimSilence bool
	KeepSilence time.Duration
}

// ParseScript splits a script into per-voice lines. Empty lines are
// dropped; a leading "{name}" tag selects the voice for that line.
func ParseScript(script, defaultVoice string) []ScriptLine {
	var lines []ScriptLine
	for _, raw := range strings.Split(script, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		voice := defaultVoice
		if strings.HasPrefix(line, "{") {
			if end := strings.Index(line, "}"); end > 1 {
				tag := strings.TrimSpace(line[1:end])
				rest := strings.TrimSpace(line[end+1:])
				if tag != "" && rest != "" {
					voice = tag
					line = rest
				}
			}
		}
		lines = append(lines, ScriptLine{Voice: voice, Text: line})
	}
	return lines
}

// SynthesizeScript generates each line with its own voice and joins the
// segments into a single output file. The engine runs once per line,
// sequentially.
func (o *Orchestrator) SynthesizeScript(ctx context.Context, req ScriptRequest) (Result, error) {
	lines := ParseScript(req.Script, req.DefaultVoice)
	if len(lines) == 0 {
		return Result{}, ErrEmptyText
	}
	speed := req.Speed
	if speed <= 0 {
		speed = 1.0
	}

	var (
		segments   [][]byte
		sampleRate int
	)
	start := time.Now()
	for _, line := range lines {
		out, err := o.engine.Synthesize(ctx, engine.Request{
			Text:     line.Text,
			Voice:    line.Voice,
			LangCode: req.LangCode,
			Speed:    speed,
		})
		if err != nil {
			o.observe("engine_error", time.Since(start))
			if o.metrics != nil {
				o.metrics.EngineErrors.WithLabelValues("script").Inc()
			}
			return Result{}, err
		}
		if sampleRate == 0 {
			sampleRate = out.SampleRate
		}
		pcm := out.PCM
		if req.TrimSilence {
			keep := req.KeepSilence
			if keep <= 0 {
				keep = 50 * time.Millisecond
			}
			pcm = audio.TrimSilence(pcm, out.SampleRate, silenceGate, keep)
		}
		if len(segments) > 0 && req.PadBetween > 0 {
			segments = append(segments, audio.Silence(sampleRate, req.PadBetween))
		}
		segments = append(segments, pcm)
	}

	res, err := o.writeResult(audio.Concat(segments...), sampleRate)
	if err != nil {
		o.observe("write_error", time.Since(start))
		return Result{}, err
	}
	o.observe("ok", time.Since(start))
	return res, nil
}
