package httpapi

import (
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lucaberton/kokoro-studio/internal/dub"
)

type dubResponse struct {
	AudioURL   string `json:"audio_url"`
	Path       string `json:"path"`
	SampleRate int    `json:"sample_rate"`
	DurationMS int64  `json:"duration_ms"`
	CueCount   int    `json:"cue_count"`
	UsedFFmpeg bool   `json:"used_ffmpeg"`
}

// handleDub accepts a multipart upload with an "srt" file plus optional
// "voice" and "lang" fields, runs the dubbing job to completion, and
// returns the produced track. Per-cue progress is broadcast on /v1/dub/ws
// while the job runs.
func (s *Server) handleDub(w http.ResponseWriter, r *http.Request) {
	if s.dubber == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "dubbing not configured")
		return
	}
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	file, header, err := r.FormFile("srt")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing_srt", "multipart field \"srt\" is required")
		return
	}
	defer file.Close()
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".srt") {
		respondError(w, http.StatusBadRequest, "invalid_srt", "only .srt subtitle files are supported")
		return
	}

	cues, err := dub.ParseSRT(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_srt", err.Error())
		return
	}

	voice, err := s.resolveVoiceArg(r.FormValue("voice"))
	if err != nil {
		respondSynthError(w, err)
		return
	}

	res, err := s.dubber.Run(r.Context(), dub.Job{
		SRTName:  header.Filename,
		Cues:     cues,
		Voice:    voice,
		LangCode: s.langOrDefault(r.FormValue("lang")),
		OnCue:    s.dubHub.broadcast,
	})
	if err != nil {
		respondSynthError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dubResponse{
		AudioURL:   "/v1/audio/" + filepath.Base(res.Path),
		Path:       res.Path,
		SampleRate: res.SampleRate,
		DurationMS: res.Duration.Milliseconds(),
		CueCount:   res.CueCount,
		UsedFFmpeg: res.UsedFFmpeg,
	})
}

var dubUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Same-origin only: the studio is a local app and nothing else
		// should watch (or guess at) dub progress.
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	},
}

// handleDubWS streams cue-by-cue progress of running dub jobs as JSON
// messages.
func (s *Server) handleDubWS(w http.ResponseWriter, r *http.Request) {
	conn, err := dubUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.dubHub.add(conn)
	defer s.dubHub.remove(conn)

	// Reads are only used to detect the peer going away.
	conn.SetReadLimit(512)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// dubHub fans progress events out to every connected websocket. Slow or
// dead connections are dropped rather than allowed to stall the job.
type dubHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

func newDubHub() *dubHub {
	return &dubHub{conns: make(map[*websocket.Conn]bool)}
}

func (h *dubHub) add(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = true
}

func (h *dubHub) remove(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
	_ = c.Close()
}

func (h *dubHub) broadcast(p dub.Progress) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		_ = c.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := c.WriteJSON(p); err != nil {
			delete(h.conns, c)
			_ = c.Close()
		}
	}
}
