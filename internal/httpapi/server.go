// Package httpapi exposes the local studio UI and its JSON API.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lucaberton/kokoro-studio/internal/config"
	"github.com/lucaberton/kokoro-studio/internal/dub"
	"github.com/lucaberton/kokoro-studio/internal/observability"
	"github.com/lucaberton/kokoro-studio/internal/synth"
	"github.com/lucaberton/kokoro-studio/internal/voicepack"
)

type Server struct {
	cfg     config.Config
	voices  *voicepack.Store
	orch    *synth.Orchestrator
	dubber  *dub.Dubber
	metrics *observability.Metrics
	static  http.Handler
	dubHub  *dubHub
}

func New(cfg config.Config, voices *voicepack.Store, orch *synth.Orchestrator, dubber *dub.Dubber, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		voices:  voices,
		orch:    orch,
		dubber:  dubber,
		metrics: metrics,
		static:  newStaticHandler(),
		dubHub:  newDubHub(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/voices", s.handleListVoices)
	r.Post("/v1/voices/mix", s.handleMixVoices)
	r.Post("/v1/tts", s.handleTTS)
	r.Post("/v1/tts/script", s.handleTTSScript)
	r.Post("/v1/dub", s.handleDub)
	r.Get("/v1/dub/ws", s.handleDubWS)
	r.Get("/v1/audio/{name}", s.handleAudio)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"engine": s.cfg.Engine,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	status := "ready"
	code := http.StatusOK
	if s.orch == nil {
		status = "engine not configured"
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]any{
		"status": status,
		"voices": len(s.voices.Names()),
	})
}

// respondSynthError maps domain failures to client errors and passes engine
// failures through as a bad gateway with the message unmodified.
func respondSynthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, synth.ErrEmptyText):
		respondError(w, http.StatusBadRequest, "empty_input", err.Error())
	case errors.Is(err, voicepack.ErrVoiceNotFound):
		respondError(w, http.StatusNotFound, "voice_not_found", err.Error())
	case errors.Is(err, voicepack.ErrInvalidWeights):
		respondError(w, http.StatusBadRequest, "invalid_weights", err.Error())
	case errors.Is(err, voicepack.ErrShapeMismatch):
		respondError(w, http.StatusBadRequest, "shape_mismatch", err.Error())
	default:
		respondError(w, http.StatusBadGateway, "engine_error", err.Error())
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
