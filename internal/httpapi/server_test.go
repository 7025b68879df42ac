package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/lucaberton/kokoro-studio/internal/config"
	"github.com/lucaberton/kokoro-studio/internal/dub"
	"github.com/lucaberton/kokoro-studio/internal/engine"
	"github.com/lucaberton/kokoro-studio/internal/synth"
	"github.com/lucaberton/kokoro-studio/internal/voicepack"
)

type testEnv struct {
	server *httptest.Server
	mock   *engine.Mock
	cfg    config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	voicesDir := t.TempDir()
	for name, emb := range map[string][]float32{
		"af_alpha": {1, 1},
		"af_beta":  {3, 3},
		"bm_gamma": {5, 5},
	} {
		if err := voicepack.WriteEmbedding(filepath.Join(voicesDir, name+".bin"), emb); err != nil {
			t.Fatalf("write voice: %v", err)
		}
	}
	store, err := voicepack.NewStore(voicesDir, 0)
	if err != nil {
		t.Fatalf("NewStore error = %v", err)
	}

	cfg := config.Config{
		VoicesDir:       voicesDir,
		OutputDir:       t.TempDir(),
		WorkDir:         t.TempDir(),
		Engine:          "mock",
		DefaultVoice:    "af_alpha",
		DefaultLangCode: "a",
	}
	mock := engine.NewMock()
	orch := synth.New(mock, cfg.OutputDir, nil)
	dubber := &dub.Dubber{Engine: mock, WorkDir: cfg.WorkDir, OutputDir: cfg.OutputDir}

	srv := New(cfg, store, orch, dubber, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, mock: mock, cfg: cfg}
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, _ := json.Marshal(body)
	res, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	t.Cleanup(func() { res.Body.Close() })
	var parsed map[string]any
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return res, parsed
}

func TestListVoices(t *testing.T) {
	env := newTestEnv(t)
	res, err := http.Get(env.server.URL + "/v1/voices")
	if err != nil {
		t.Fatalf("GET /v1/voices error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	var parsed struct {
		DefaultVoice string           `json:"default_voice"`
		Female       []map[string]any `json:"female_voices"`
		Male         []map[string]any `json:"male_voices"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if parsed.DefaultVoice != "af_alpha" {
		t.Fatalf("default voice = %q", parsed.DefaultVoice)
	}
	if len(parsed.Female) != 2 || len(parsed.Male) != 1 {
		t.Fatalf("grouping = %d female, %d male", len(parsed.Female), len(parsed.Male))
	}
}

func TestTTSSuccessServesAudio(t *testing.T) {
	env := newTestEnv(t)
	res, parsed := postJSON(t, env.server.URL+"/v1/tts", map[string]any{
		"text":  "hello world",
		"voice": "af_beta",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body = %v", res.StatusCode, parsed)
	}
	path, _ := parsed["path"].(string)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("output file missing: %v", err)
	}
	if sr, _ := parsed["sample_rate"].(float64); int(sr) != 24000 {
		t.Fatalf("sample_rate = %v, want mock's 24000", parsed["sample_rate"])
	}

	audioURL, _ := parsed["audio_url"].(string)
	audioRes, err := http.Get(env.server.URL + audioURL)
	if err != nil {
		t.Fatalf("GET %s error = %v", audioURL, err)
	}
	defer audioRes.Body.Close()
	if audioRes.StatusCode != http.StatusOK {
		t.Fatalf("audio status = %d", audioRes.StatusCode)
	}
}

func TestTTSEmptyTextRejectedBeforeEngine(t *testing.T) {
	env := newTestEnv(t)
	res, parsed := postJSON(t, env.server.URL+"/v1/tts", map[string]any{"text": "   "})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
	if parsed["code"] != "empty_input" {
		t.Fatalf("code = %v, want empty_input", parsed["code"])
	}
	if n := env.mock.Calls(); n != 0 {
		t.Fatalf("engine calls = %d, want 0", n)
	}
}

func TestTTSUnknownVoice404(t *testing.T) {
	env := newTestEnv(t)
	res, parsed := postJSON(t, env.server.URL+"/v1/tts", map[string]any{
		"text":  "hi",
		"voice": "af_ghost",
	})
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.StatusCode)
	}
	if parsed["code"] != "voice_not_found" {
		t.Fatalf("code = %v", parsed["code"])
	}
	if n := env.mock.Calls(); n != 0 {
		t.Fatalf("engine calls = %d, want 0", n)
	}
}

func TestTTSEngineErrorIsBadGateway(t *testing.T) {
	env := newTestEnv(t)
	env.mock.Err = errors.New("lang_code 'q' is not supported")
	res, parsed := postJSON(t, env.server.URL+"/v1/tts", map[string]any{"text": "hi"})
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", res.StatusCode)
	}
	if parsed["error"] != "lang_code 'q' is not supported" {
		t.Fatalf("engine message altered: %v", parsed["error"])
	}
}

func TestMixThenTTSWithMixedVoice(t *testing.T) {
	env := newTestEnv(t)
	res, parsed := postJSON(t, env.server.URL+"/v1/voices/mix", map[string]any{
		"entries": []map[string]any{
			{"voice": "af_alpha", "weight": 1},
			{"voice": "af_beta", "weight": 1},
		},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("mix status = %d body = %v", res.StatusCode, parsed)
	}
	mixPath, _ := parsed["voice"].(string)
	if mixPath == "" {
		t.Fatal("mix response missing voice path")
	}
	if _, err := os.Stat(mixPath); err != nil {
		t.Fatalf("mix pack missing on disk: %v", err)
	}

	ttsRes, ttsParsed := postJSON(t, env.server.URL+"/v1/tts", map[string]any{
		"text":  "mixed voice",
		"voice": mixPath,
	})
	if ttsRes.StatusCode != http.StatusOK {
		t.Fatalf("tts with mix status = %d body = %v", ttsRes.StatusCode, ttsParsed)
	}
}

func TestMixFormula(t *testing.T) {
	env := newTestEnv(t)
	res, parsed := postJSON(t, env.server.URL+"/v1/voices/mix", map[string]any{
		"formula": "af_alpha*1+af_beta*1",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body = %v", res.StatusCode, parsed)
	}
	if n, _ := parsed["embedding_length"].(float64); int(n) != 2 {
		t.Fatalf("embedding_length = %v, want 2", parsed["embedding_length"])
	}
}

func TestMixZeroWeightsRejected(t *testing.T) {
	env := newTestEnv(t)
	res, parsed := postJSON(t, env.server.URL+"/v1/voices/mix", map[string]any{
		"entries": []map[string]any{
			{"voice": "af_alpha", "weight": 0},
			{"voice": "af_beta", "weight": 0},
		},
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
	if parsed["code"] != "invalid_weights" {
		t.Fatalf("code = %v", parsed["code"])
	}
}

func TestScriptEndpoint(t *testing.T) {
	env := newTestEnv(t)
	res, parsed := postJSON(t, env.server.URL+"/v1/tts/script", map[string]any{
		"script":         "{af_alpha} one\n{bm_gamma} two",
		"pad_between_ms": 50,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body = %v", res.StatusCode, parsed)
	}
	if env.mock.Calls() != 2 {
		t.Fatalf("engine calls = %d, want 2", env.mock.Calls())
	}
}

func TestScriptUnknownTagRejected(t *testing.T) {
	env := newTestEnv(t)
	res, parsed := postJSON(t, env.server.URL+"/v1/tts/script", map[string]any{
		"script": "{af_ghost} boo",
	})
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d body = %v", res.StatusCode, parsed)
	}
	if env.mock.Calls() != 0 {
		t.Fatalf("engine calls = %d, want 0", env.mock.Calls())
	}
}

func TestDubEndpoint(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("srt", "clip.srt")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	fmt.Fprint(fw, "1\n00:00:00,000 --> 00:00:01,000\nHello.\n\n2\n00:00:02,000 --> 00:00:03,000\nWorld.\n")
	_ = mw.WriteField("voice", "af_alpha")
	_ = mw.Close()

	res, err := http.Post(env.server.URL+"/v1/dub", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST /v1/dub error = %v", err)
	}
	defer res.Body.Close()
	var parsed map[string]any
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body = %v", res.StatusCode, parsed)
	}
	if n, _ := parsed["cue_count"].(float64); int(n) != 2 {
		t.Fatalf("cue_count = %v, want 2", parsed["cue_count"])
	}
	if ms, _ := parsed["duration_ms"].(float64); ms < 2900 || ms > 3100 {
		t.Fatalf("duration_ms = %v, want ~3000", parsed["duration_ms"])
	}
}

func TestDubRejectsNonSRT(t *testing.T) {
	env := newTestEnv(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("srt", "clip.txt")
	fmt.Fprint(fw, "not a subtitle")
	_ = mw.Close()

	res, err := http.Post(env.server.URL+"/v1/dub", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
}

func TestAudioTraversalRejected(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"..%2F..%2Fetc%2Fpasswd", ".hidden.wav"} {
		res, err := http.Get(env.server.URL + "/v1/audio/" + name)
		if err != nil {
			t.Fatalf("GET error = %v", err)
		}
		res.Body.Close()
		if res.StatusCode == http.StatusOK {
			t.Fatalf("traversal name %q was served", name)
		}
	}
}

func TestHealthAndUIRedirect(t *testing.T) {
	env := newTestEnv(t)

	res, err := http.Get(env.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", res.StatusCode)
	}

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	rootRes, err := client.Get(env.server.URL + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	rootRes.Body.Close()
	if rootRes.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("root status = %d, want 307", rootRes.StatusCode)
	}
	if loc := rootRes.Header.Get("Location"); loc != "/ui/" {
		t.Fatalf("redirect location = %q, want /ui/", loc)
	}

	uiRes, err := http.Get(env.server.URL + "/ui/")
	if err != nil {
		t.Fatalf("GET /ui/ error = %v", err)
	}
	defer uiRes.Body.Close()
	if uiRes.StatusCode != http.StatusOK {
		t.Fatalf("ui status = %d", uiRes.StatusCode)
	}
	if ct := uiRes.Header.Get("Content-Type"); !bytes.Contains([]byte(ct), []byte("text/html")) {
		t.Fatalf("ui content type = %q", ct)
	}
}
