// Command kokoro-studio runs the local Kokoro TTS studio: a web UI with a
// JSON API for speech generation, voice mixing, and SRT dubbing, plus
// one-shot CLI synthesis.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucaberton/kokoro-studio/internal/config"
	"github.com/lucaberton/kokoro-studio/internal/engine"
	"github.com/lucaberton/kokoro-studio/internal/voicepack"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "kokoro-studio",
		Short:         "Local text-to-speech studio built on the Kokoro model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(newServeCmd(), newSayCmd(), newVoicesCmd())

	if err := root.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

// buildEngine starts the synthesis backend selected by the config.
func buildEngine(cfg config.Config) (engine.Engine, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Engine)) {
	case "mock":
		log.Printf("engine: mock (no real synthesis)")
		return engine.NewMock(), nil
	default:
		if err := engine.CheckPhonemizer(); err != nil {
			return nil, err
		}
		w, err := engine.StartWorker(engine.WorkerConfig{
			Python:       cfg.EnginePython,
			Script:       cfg.EngineScript,
			DefaultVoice: cfg.DefaultVoice,
			DefaultLang:  cfg.DefaultLangCode,
		})
		if err != nil {
			return nil, err
		}
		log.Printf("engine: kokoro worker ready")
		return w, nil
	}
}

// buildStore indexes the voices directory, optionally pulling the default
// voice pack first so a fresh install can speak out of the box.
func buildStore(cfg config.Config) (*voicepack.Store, error) {
	if cfg.AutoDownloadVoices && strings.TrimSpace(cfg.VoiceBaseURL) != "" {
		target := cfg.VoicesDir + string(os.PathSeparator) + cfg.DefaultVoice + ".bin"
		url := strings.TrimRight(cfg.VoiceBaseURL, "/") + "/" + cfg.DefaultVoice + ".bin"
		if err := engine.DownloadFileIfMissing(target, url); err != nil {
			log.Printf("voice download skipped: %v", err)
		}
	}
	store, err := voicepack.NewStore(cfg.VoicesDir, cfg.VoiceCacheSize)
	if err != nil {
		return nil, fmt.Errorf("index voices in %s: %w", cfg.VoicesDir, err)
	}
	if len(store.Names()) == 0 {
		log.Printf("warning: no voice packs found in %s", cfg.VoicesDir)
	}
	return store, nil
}
