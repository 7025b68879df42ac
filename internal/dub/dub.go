// Package dub turns a subtitle file into a single dubbed audio track. Each
// cue is synthesized by the external engine, re-timed to fit its subtitle
// window, and placed on the original timeline with the inter-cue gaps
// preserved as silence.
package dub

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lucaberton/kokoro-studio/internal/audio"
	"github.com/lucaberton/kokoro-studio/internal/engine"
	"github.com/lucaberton/kokoro-studio/internal/observability"
)

// Progress reports per-cue completion while a job runs.
type Progress struct {
	Done  int    `json:"done"`
	Total int    `json:"total"`
	Cue   string `json:"cue"`
}

// Dubber runs dubbing jobs sequentially. FFmpegPath may be empty, in which
// case speed adjustment falls back to linear resampling (pitch shifts with
// tempo; ffmpeg's atempo is the quality path).
type Dubber struct {
	Engine     engine.Engine
	FFmpegPath string
	WorkDir    string
	OutputDir  string
	Metrics    *observability.Metrics
}

// Job configures one dubbing run.
type Job struct {
	SRTName  string // base name of the uploaded file, for the output name
	Cues     []Cue
	Voice    string
	LangCode string
	OnCue    func(Progress)
}

// Result describes the dubbed track.
type Result struct {
	Path       string
	SampleRate int
	Duration   time.Duration
	CueCount   int
	UsedFFmpeg bool
}

// Run synthesizes every cue and assembles the dubbed track. The produced
// audio starts at the first cue's subtitle time; gaps between cues become
// silence.
func (d *Dubber) Run(ctx context.Context, job Job) (Result, error) {
	if len(job.Cues) == 0 {
		return Result{}, fmt.Errorf("no cues to dub")
	}
	if d.Metrics != nil {
		d.Metrics.ActiveDubJobs.Inc()
		defer d.Metrics.ActiveDubJobs.Dec()
	}

	workDir := filepath.Join(d.WorkDir, "dub_"+shortID())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{}, err
	}
	defer os.RemoveAll(workDir)

	var (
		segments   [][]byte
		sampleRate int
		prevEnd    time.Duration
		usedFFmpeg bool
	)
	for i, cue := range job.Cues {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		out, err := d.Engine.Synthesize(ctx, engine.Request{
			Text:     cue.Text,
			Voice:    job.Voice,
			LangCode: job.LangCode,
			Speed:    1.0,
		})
		if err != nil {
			if d.Metrics != nil {
				d.Metrics.EngineErrors.WithLabelValues("dub").Inc()
			}
			return Result{}, fmt.Errorf("cue %d: %w", cue.Index, err)
		}
		if sampleRate == 0 {
			sampleRate = out.SampleRate
		}

		if gap := cue.Start - prevEnd; gap > 0 {
			segments = append(segments, audio.Silence(sampleRate, gap))
		}

		window := cue.End - cue.Start
		pcm, ff, err := d.fitToWindow(workDir, out.PCM, sampleRate, window)
		if err != nil {
			return Result{}, fmt.Errorf("cue %d: %w", cue.Index, err)
		}
		usedFFmpeg = usedFFmpeg || ff
		segments = append(segments, pcm)
		prevEnd = cue.End

		if d.Metrics != nil {
			d.Metrics.DubCuesProcessed.Inc()
		}
		if job.OnCue != nil {
			job.OnCue(Progress{Done: i + 1, Total: len(job.Cues), Cue: cue.Text})
		}
	}

	if err := os.MkdirAll(d.OutputDir, 0o755); err != nil {
		return Result{}, err
	}
	outPath := filepath.Join(d.OutputDir, dubFileName(job.SRTName, job.LangCode))
	joined := audio.Concat(segments...)
	if err := audio.WriteWAVPCM16LEFile(outPath, joined, sampleRate); err != nil {
		return Result{}, err
	}
	return Result{
		Path:       outPath,
		SampleRate: sampleRate,
		Duration:   audio.Duration(joined, sampleRate),
		CueCount:   len(job.Cues),
		UsedFFmpeg: usedFFmpeg,
	}, nil
}

// fitToWindow makes synthesized audio match the cue window: too long is
// sped up, too short is padded with trailing silence. A non-positive window
// (corrupt timing) leaves the audio untouched.
func (d *Dubber) fitToWindow(workDir string, pcm []byte, sampleRate int, window time.Duration) ([]byte, bool, error) {
	if window <= 0 || len(pcm) == 0 {
		return pcm, false, nil
	}
	have := audio.Duration(pcm, sampleRate)
	if have > window {
		factor := have.Seconds() / window.Seconds()
		if d.FFmpegPath != "" {
			out, err := d.retimeFFmpeg(workDir, pcm, sampleRate, factor)
			if err == nil {
				return out, true, nil
			}
			// Keep the job alive on ffmpeg failure; quality degrades but
			// the track still lines up.
		}
		return audio.StretchLinear(pcm, factor), false, nil
	}
	if gap := window - have; gap > 0 {
		return audio.Concat(pcm, audio.Silence(sampleRate, gap)), false, nil
	}
	return pcm, false, nil
}

// retimeFFmpeg runs the atempo filter over a temp WAV. atempo only accepts
// factors in [0.5, 2] per instance, so larger factors are chained.
func (d *Dubber) retimeFFmpeg(workDir string, pcm []byte, sampleRate int, factor float64) ([]byte, error) {
	inPath := filepath.Join(workDir, "retime_in_"+shortID()+".wav")
	outPath := filepath.Join(workDir, "retime_out_"+shortID()+".wav")
	defer os.Remove(inPath)
	defer os.Remove(outPath)

	if err := audio.WriteWAVPCM16LEFile(inPath, pcm, sampleRate); err != nil {
		return nil, err
	}

	cmd := exec.Command(d.FFmpegPath, "-i", inPath, "-filter:a", atempoChain(factor), "-y", outPath)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg atempo: %w", err)
	}

	out, outRate, err := audio.ReadWAVFile(outPath)
	if err != nil {
		return nil, err
	}
	if outRate != sampleRate {
		return nil, fmt.Errorf("ffmpeg changed sample rate %d -> %d", sampleRate, outRate)
	}
	return out, nil
}

func atempoChain(factor float64) string {
	var parts []string
	for factor > 2.0 {
		parts = append(parts, "atempo=2.0")
		factor /= 2.0
	}
	for factor < 0.5 {
		parts = append(parts, "atempo=0.5")
		factor /= 0.5
	}
	parts = append(parts, fmt.Sprintf("atempo=%.4f", factor))
	return strings.Join(parts, ",")
}

func dubFileName(srtName, lang string) string {
	base := strings.TrimSuffix(filepath.Base(srtName), filepath.Ext(srtName))
	if base == "" || base == "." {
		base = "subtitle"
	}
	if strings.TrimSpace(lang) == "" {
		lang = "en"
	}
	stamp := time.Now().Format("03_04_PM")
	return fmt.Sprintf("%s_%s_%s_%s.wav", base, lang, stamp, shortID())
}

func shortID() string {
	return strings.Split(uuid.NewString(), "-")[0][:6]
}
