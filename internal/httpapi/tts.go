package httpapi

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lucaberton/kokoro-studio/internal/synth"
	"github.com/lucaberton/kokoro-studio/internal/voicepack"
)

type ttsRequest struct {
	Text        string  `json:"text"`
	Voice       string  `json:"voice,omitempty"`
	LangCode    string  `json:"lang_code,omitempty"`
	Speed       float64 `json:"speed,omitempty"`
	TrimSilence bool    `json:"trim_silence,omitempty"`
	KeepMS      int     `json:"keep_silence_ms,omitempty"`
}

type ttsResponse struct {
	AudioURL   string `json:"audio_url"`
	Path       string `json:"path"`
	SampleRate int    `json:"sample_rate"`
	DurationMS int64  `json:"duration_ms"`
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	voice, err := s.resolveVoiceArg(req.Voice)
	if err != nil {
		respondSynthError(w, err)
		return
	}

	res, err := s.orch.Synthesize(r.Context(), synth.Request{
		Text:        req.Text,
		Voice:       voice,
		LangCode:    s.langOrDefault(req.LangCode),
		Speed:       req.Speed,
		TrimSilence: req.TrimSilence,
		KeepSilence: time.Duration(req.KeepMS) * time.Millisecond,
	})
	if err != nil {
		respondSynthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toTTSResponse(res))
}

type ttsScriptRequest struct {
	Script       string  `json:"script"`
	DefaultVoice string  `json:"default_voice,omitempty"`
	LangCode     string  `json:"lang_code,omitempty"`
	Speed        float64 `json:"speed,omitempty"`
	PadMS        int     `json:"pad_between_ms,omitempty"`
	TrimSilence  bool    `json:"trim_silence,omitempty"`
	KeepMS       int     `json:"keep_silence_ms,omitempty"`
}

func (s *Server) handleTTSScript(w http.ResponseWriter, r *http.Request) {
	var req ttsScriptRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	defaultVoice, err := s.resolveVoiceArg(req.DefaultVoice)
	if err != nil {
		respondSynthError(w, err)
		return
	}

	// Installed-voice tags inside the script are validated here so an
	// unknown name fails fast instead of mid-generation.
	for _, line := range synth.ParseScript(req.Script, defaultVoice) {
		if line.Voice != defaultVoice && !isPackPath(line.Voice) && !s.voices.Has(line.Voice) {
			respondSynthError(w, voicepackNotFound(line.Voice))
			return
		}
	}

	res, err := s.orch.SynthesizeScript(r.Context(), synth.ScriptRequest{
		Script:       req.Script,
		DefaultVoice: defaultVoice,
		LangCode:     s.langOrDefault(req.LangCode),
		Speed:        req.Speed,
		PadBetween:   time.Duration(req.PadMS) * time.Millisecond,
		TrimSilence:  req.TrimSilence,
		KeepSilence:  time.Duration(req.KeepMS) * time.Millisecond,
	})
	if err != nil {
		respondSynthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toTTSResponse(res))
}

// handleAudio serves one produced file from the output directory. Only bare
// file names are accepted; anything that could traverse out is rejected.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		respondError(w, http.StatusBadRequest, "invalid_name", "file name must be a bare name")
		return
	}
	path := filepath.Join(s.cfg.OutputDir, name)
	http.ServeFile(w, r, path)
}

// resolveVoiceArg accepts an installed voice name, a saved mix path from
// /v1/voices/mix, or empty (the configured default). Installed names are
// checked against the index so typos fail with 404 before touching the
// engine.
func (s *Server) resolveVoiceArg(voice string) (string, error) {
	voice = strings.TrimSpace(voice)
	if voice == "" {
		return s.cfg.DefaultVoice, nil
	}
	if isPackPath(voice) {
		return voice, nil
	}
	if !s.voices.Has(voice) {
		return "", voicepackNotFound(voice)
	}
	return voice, nil
}

func (s *Server) langOrDefault(lang string) string {
	if strings.TrimSpace(lang) == "" {
		return s.cfg.DefaultLangCode
	}
	return lang
}

func isPackPath(voice string) bool {
	return strings.HasSuffix(voice, ".bin") && strings.ContainsAny(voice, "/\\")
}

func voicepackNotFound(name string) error {
	return fmt.Errorf("%q: %w", name, voicepack.ErrVoiceNotFound)
}

func toTTSResponse(res synth.Result) ttsResponse {
	return ttsResponse{
		AudioURL:   "/v1/audio/" + filepath.Base(res.Path),
		Path:       res.Path,
		SampleRate: res.SampleRate,
		DurationMS: res.Duration.Milliseconds(),
	}
}
