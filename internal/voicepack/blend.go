package voicepack

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// BlendEntry pairs a voice identifier with its mixing weight.
type BlendEntry struct {
	Voice  string  `json:"voice"`
	Weight float64 `json:"weight"`
}

// BlendSpec is an ordered list of voices to mix. Weights need not sum to 1;
// the blend is normalized by the total weight.
type BlendSpec struct {
	Entries []BlendEntry `json:"entries"`
}

// Validate checks the structural invariants of the spec without touching
// disk: at least one entry, no negative weights, non-empty names.
func (b BlendSpec) Validate() error {
	if len(b.Entries) == 0 {
		return fmt.Errorf("blend spec has no entries")
	}
	for _, e := range b.Entries {
		if strings.TrimSpace(e.Voice) == "" {
			return fmt.Errorf("blend entry with empty voice name")
		}
		if e.Weight < 0 {
			return fmt.Errorf("negative weight %v for voice %q", e.Weight, e.Voice)
		}
	}
	return nil
}

// Resolve produces the embedding for a blend spec. A single-entry spec
// returns the stored embedding unchanged. Multi-entry specs return the
// weight-normalized elementwise average of the referenced embeddings.
func (s *Store) Resolve(spec BlendSpec) ([]float32, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	if len(spec.Entries) == 1 {
		return s.Load(spec.Entries[0].Voice)
	}

	// Check existence up front so a bad identifier does not leave a
	// partially warmed cache behind.
	for _, e := range spec.Entries {
		if !s.Has(e.Voice) {
			return nil, fmt.Errorf("%q: %w", e.Voice, ErrVoiceNotFound)
		}
	}

	var (
		sum   []float32
		total float64
	)
	for _, e := range spec.Entries {
		emb, err := s.Load(e.Voice)
		if err != nil {
			return nil, err
		}
		if sum == nil {
			sum = make([]float32, len(emb))
		} else if len(emb) != len(sum) {
			return nil, fmt.Errorf("voice %q has length %d, want %d: %w",
				e.Voice, len(emb), len(sum), ErrShapeMismatch)
		}
		w := float32(e.Weight)
		for i, v := range emb {
			sum[i] += w * v
		}
		total += e.Weight
	}
	if total <= 0 {
		return nil, ErrInvalidWeights
	}
	inv := float32(1 / total)
	for i := range sum {
		sum[i] *= inv
	}
	return sum, nil
}

// ParseFormula converts the mixer formula syntax, e.g.
// "af_bella*0.6+af_sky*0.4", into a BlendSpec.
func ParseFormula(formula string) (BlendSpec, error) {
	formula = strings.TrimSpace(formula)
	if formula == "" {
		return BlendSpec{}, fmt.Errorf("empty voice formula")
	}
	var spec BlendSpec
	for _, term := range strings.Split(formula, "+") {
		parts := strings.Split(term, "*")
		if len(parts) != 2 {
			return BlendSpec{}, fmt.Errorf("invalid term %q (want voice*weight)", strings.TrimSpace(term))
		}
		name := strings.TrimSpace(parts[0])
		weight, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return BlendSpec{}, fmt.Errorf("invalid weight in term %q: %w", strings.TrimSpace(term), err)
		}
		spec.Entries = append(spec.Entries, BlendEntry{Voice: name, Weight: weight})
	}
	return spec, spec.Validate()
}

// SaveMix resolves a blend and writes it as a voice-pack file under dir,
// returning the file path. The path can be passed to the engine in place of
// an installed voice name.
func (s *Store) SaveMix(spec BlendSpec, dir, filename string) (string, error) {
	emb, err := s.Resolve(spec)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if filename == "" {
		filename = "mixed_voice.bin"
	}
	path := filepath.Join(dir, filename)
	if err := WriteEmbedding(path, emb); err != nil {
		return "", err
	}
	return path, nil
}
