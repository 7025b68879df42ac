package engine

import (
	"context"
	"sync/atomic"
	"time"
)

// Mock is a test and development engine. It returns a short burst of
// deterministic audio, or Err when set, and counts calls so tests can assert
// that validation short-circuits before the engine is reached.
type Mock struct {
	SampleRate int
	Err        error

	calls atomic.Int64
}

// NewMock returns a mock engine producing 24 kHz audio.
func NewMock() *Mock {
	return &Mock{SampleRate: 24000}
}

func (m *Mock) Synthesize(_ context.Context, req Request) (Result, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return Result{}, m.Err
	}
	rate := m.SampleRate
	if rate <= 0 {
		rate = 24000
	}
	// Roughly 60ms of audio per 10 input characters keeps durations text
	// dependent without being slow to generate.
	chars := len(req.Text)
	if chars < 10 {
		chars = 10
	}
	d := time.Duration(chars/10) * 60 * time.Millisecond
	n := int(float64(rate) * d.Seconds())
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		// Low-amplitude square wave so outputs are audibly non-empty.
		v := int16(800)
		if (i/240)%2 == 0 {
			v = -v
		}
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}
	return Result{PCM: pcm, SampleRate: rate}, nil
}

func (m *Mock) Close() error { return nil }

// Calls reports how many times Synthesize has run.
func (m *Mock) Calls() int64 { return m.calls.Load() }
