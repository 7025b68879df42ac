package httpapi

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/lucaberton/kokoro-studio/internal/voicepack"
)

type voiceSummary struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Gender   string `json:"gender,omitempty"`
	Language string `json:"language,omitempty"`
}

type listVoicesResponse struct {
	DefaultVoice string         `json:"default_voice"`
	Female       []voiceSummary `json:"female_voices"`
	Male         []voiceSummary `json:"male_voices"`
	Other        []voiceSummary `json:"other_voices"`
}

func (s *Server) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	resp := listVoicesResponse{
		DefaultVoice: s.cfg.DefaultVoice,
		Female:       []voiceSummary{},
		Male:         []voiceSummary{},
		Other:        []voiceSummary{},
	}
	for _, p := range s.voices.Profiles() {
		item := voiceSummary{
			Name:     p.Name,
			Label:    p.Label,
			Gender:   p.Gender,
			Language: p.Language,
		}
		switch p.Gender {
		case "female":
			resp.Female = append(resp.Female, item)
		case "male":
			resp.Male = append(resp.Male, item)
		default:
			resp.Other = append(resp.Other, item)
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

type mixRequest struct {
	Formula string                 `json:"formula,omitempty"`
	Entries []voicepack.BlendEntry `json:"entries,omitempty"`
}

type mixResponse struct {
	Voice  string                 `json:"voice"`
	Path   string                 `json:"path"`
	Blend  []voicepack.BlendEntry `json:"blend"`
	Length int                    `json:"embedding_length"`
}

// handleMixVoices resolves a blend, stores it as a voice-pack file under the
// work dir, and returns the path. The returned path is accepted as the
// "voice" of later /v1/tts calls.
func (s *Server) handleMixVoices(w http.ResponseWriter, r *http.Request) {
	var req mixRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	spec := voicepack.BlendSpec{Entries: req.Entries}
	if strings.TrimSpace(req.Formula) != "" {
		parsed, err := voicepack.ParseFormula(req.Formula)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_formula", err.Error())
			return
		}
		spec = parsed
	}
	if err := spec.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_blend", err.Error())
		return
	}

	emb, err := s.voices.Resolve(spec)
	if err != nil {
		respondSynthError(w, err)
		return
	}

	mixDir := filepath.Join(s.cfg.WorkDir, "mixes")
	path, err := s.voices.SaveMix(spec, mixDir, "weighted_normalised_voices.bin")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "mix_write_failed", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, mixResponse{
		Voice:  path,
		Path:   path,
		Blend:  spec.Entries,
		Length: len(emb),
	})
}
