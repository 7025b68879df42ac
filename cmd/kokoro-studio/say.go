package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucaberton/kokoro-studio/internal/synth"
	"github.com/lucaberton/kokoro-studio/internal/voicepack"
)

func newSayCmd() *cobra.Command {
	var (
		voice  string
		lang   string
		speed  float64
		trim   bool
		keepMS int
	)
	cmd := &cobra.Command{
		Use:   "say [text...]",
		Short: "Synthesize text to a WAV file without starting the server",
		Long: `Synthesize the given text and print the output file path.

The --voice flag accepts an installed voice name or a mix formula such as
"af_bella*0.6+af_sky*0.4"; a formula is blended and saved before synthesis.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSay(cmd.Context(), strings.Join(args, " "), voice, lang, speed, trim, keepMS)
		},
	}
	cmd.Flags().StringVar(&voice, "voice", "", "voice name or mix formula (default from config)")
	cmd.Flags().StringVar(&lang, "lang", "", "language code (default from config)")
	cmd.Flags().Float64Var(&speed, "speed", 1.0, "speech speed multiplier")
	cmd.Flags().BoolVar(&trim, "trim-silence", false, "remove leading and trailing silence")
	cmd.Flags().IntVar(&keepMS, "keep-silence-ms", 0, "silence to keep at each edge when trimming")
	return cmd
}

func runSay(ctx context.Context, text, voice, lang string, speed float64, trim bool, keepMS int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}

	voice = strings.TrimSpace(voice)
	switch {
	case voice == "":
		voice = cfg.DefaultVoice
	case strings.Contains(voice, "*"):
		spec, err := voicepack.ParseFormula(voice)
		if err != nil {
			return err
		}
		mixDir := filepath.Join(cfg.WorkDir, "mixes")
		voice, err = store.SaveMix(spec, mixDir, "weighted_normalised_voices.bin")
		if err != nil {
			return err
		}
	default:
		if !store.Has(voice) {
			return fmt.Errorf("%q: %w (installed: %s)", voice, voicepack.ErrVoiceNotFound, strings.Join(store.Names(), ", "))
		}
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	orch := synth.New(eng, cfg.OutputDir, nil)
	res, err := orch.Synthesize(ctx, synth.Request{
		Text:        text,
		Voice:       voice,
		LangCode:    lang,
		Speed:       speed,
		TrimSilence: trim,
		KeepSilence: time.Duration(keepMS) * time.Millisecond,
	})
	if err != nil {
		return err
	}

	fmt.Printf("%s (%.1fs at %d Hz)\n", res.Path, res.Duration.Seconds(), res.SampleRate)
	return nil
}
