package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all runtime settings for the studio service.
type Config struct {
	BindAddr         string        `yaml:"bind_addr"`
	MetricsNamespace string        `yaml:"metrics_namespace"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`

	VoicesDir string `yaml:"voices_dir"`
	ModelsDir string `yaml:"models_dir"`
	OutputDir string `yaml:"output_dir"`
	WorkDir   string `yaml:"work_dir"`

	// Engine selects the synthesis backend: "kokoro" or "mock".
	Engine       string `yaml:"engine"`
	EnginePython string `yaml:"engine_python"`
	EngineScript string `yaml:"engine_script"`

	DefaultVoice    string `yaml:"default_voice"`
	DefaultLangCode string `yaml:"default_lang_code"`

	FFmpegPath     string `yaml:"ffmpeg_path"`
	VoiceCacheSize int    `yaml:"voice_cache_size"`

	// AutoDownloadVoices fetches missing voice packs on startup.
	AutoDownloadVoices bool   `yaml:"auto_download_voices"`
	VoiceBaseURL       string `yaml:"voice_base_url"`
}

// Load reads an optional YAML file, then environment variables on top, then
// applies safe defaults. path may be empty.
func Load(path string) (Config, error) {
	cfg := Config{
		BindAddr:         ":8080",
		MetricsNamespace: "kokoro_studio",
		ShutdownTimeout:  15 * time.Second,
		VoicesDir:        "voices",
		ModelsDir:        ".models/kokoro",
		OutputDir:        "kokoro_audio",
		WorkDir:          ".kokoro_work",
		Engine:           "kokoro",
		EngineScript:     "scripts/kokoro_worker.py",
		DefaultVoice:     "af_bella",
		DefaultLangCode:  "a",
		VoiceCacheSize:   64,
	}

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.VoicesDir = envOrDefault("KOKORO_VOICES_DIR", cfg.VoicesDir)
	cfg.ModelsDir = envOrDefault("KOKORO_MODELS_DIR", cfg.ModelsDir)
	cfg.OutputDir = envOrDefault("KOKORO_OUTPUT_DIR", cfg.OutputDir)
	cfg.WorkDir = envOrDefault("KOKORO_WORK_DIR", cfg.WorkDir)
	cfg.Engine = envOrDefault("KOKORO_ENGINE", cfg.Engine)
	cfg.EnginePython = envOrDefault("KOKORO_PYTHON", cfg.EnginePython)
	cfg.EngineScript = envOrDefault("KOKORO_WORKER_SCRIPT", cfg.EngineScript)
	cfg.DefaultVoice = envOrDefault("KOKORO_DEFAULT_VOICE", cfg.DefaultVoice)
	cfg.DefaultLangCode = envOrDefault("KOKORO_LANG_CODE", cfg.DefaultLangCode)
	cfg.FFmpegPath = envOrDefault("KOKORO_FFMPEG_PATH", cfg.FFmpegPath)
	cfg.VoiceBaseURL = envOrDefault("KOKORO_VOICE_BASE_URL", cfg.VoiceBaseURL)

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.VoiceCacheSize, err = intFromEnv("KOKORO_VOICE_CACHE_SIZE", cfg.VoiceCacheSize)
	if err != nil {
		return Config{}, err
	}
	cfg.AutoDownloadVoices, err = boolFromEnv("KOKORO_AUTO_DOWNLOAD", cfg.AutoDownloadVoices)
	if err != nil {
		return Config{}, err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Engine)) {
	case "kokoro", "mock":
	default:
		return Config{}, fmt.Errorf("invalid KOKORO_ENGINE: %q (expected kokoro|mock)", cfg.Engine)
	}
	if cfg.ShutdownTimeout < time.Second {
		return Config{}, fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be at least 1s")
	}
	if cfg.VoiceCacheSize <= 0 {
		return Config{}, fmt.Errorf("KOKORO_VOICE_CACHE_SIZE must be positive")
	}
	if strings.TrimSpace(cfg.VoicesDir) == "" {
		return Config{}, fmt.Errorf("voices dir must not be empty")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s parse error: %w", key, err)
	}
	return b, nil
}

// EnsureDirs creates the writable directories the service needs.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{c.OutputDir, c.WorkDir, c.ModelsDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// CleanWorkDir removes and recreates the scratch directory so stale mix and
// cache files from a previous run never leak into new output.
func (c Config) CleanWorkDir() error {
	if strings.TrimSpace(c.WorkDir) == "" {
		return nil
	}
	if err := os.RemoveAll(c.WorkDir); err != nil {
		return err
	}
	return os.MkdirAll(c.WorkDir, 0o755)
}
