// Package engine is the boundary to the external Kokoro inference process.
// Everything past Synthesize is a black box: phonemization (eSpeak NG) and
// acoustic synthesis happen inside the worker, and its errors are surfaced
// to callers unmodified.
package engine

import "context"

// Request is one synthesis call. Voice is either the identifier of an
// installed voice or the path to a saved voice-pack file (mixer output).
type Request struct {
	Text     string
	Voice    string
	LangCode string
	Speed    float64
}

// Result carries the synthesized waveform as PCM16LE mono bytes.
type Result struct {
	PCM        []byte
	SampleRate int
}

// Engine synthesizes speech. Implementations are synchronous and blocking;
// callers own any concurrency they need.
type Engine interface {
	Synthesize(ctx context.Context, req Request) (Result, error)
	Close() error
}
