// Package voicepack loads and blends Kokoro voice conditioning embeddings.
//
// Each installed voice is a raw little-endian float32 vector stored as
// <name>.bin under the voices directory. An optional voices.json manifest
// carries display metadata; without it the directory is indexed once at
// startup and labels are derived from the Kokoro naming convention
// (af_* = American female, bm_* = British male, and so on).
package voicepack

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrVoiceNotFound marks lookups of identifiers with no backing file.
	ErrVoiceNotFound = errors.New("voice not found")
	// ErrInvalidWeights marks blends whose weights are all zero.
	ErrInvalidWeights = errors.New("blend weights sum to zero")
	// ErrShapeMismatch marks voice files whose vector lengths disagree.
	ErrShapeMismatch = errors.New("voice embedding shape mismatch")
)

// Profile describes one installed voice.
type Profile struct {
	Name     string `json:"name"`
	File     string `json:"file"`
	Label    string `json:"label,omitempty"`
	Gender   string `json:"gender,omitempty"`
	Language string `json:"language,omitempty"`
}

type manifest struct {
	Voices []Profile `json:"voices"`
}

// Store indexes the voices directory once and caches loaded embeddings for
// the lifetime of the process. Stored packs are never mutated.
type Store struct {
	dir   string
	index map[string]Profile
	cache *lru.Cache[string, []float32]
}

const defaultCacheSize = 64

// NewStore builds the voice index from dir. If voices.json exists it is
// authoritative; otherwise the directory is scanned once for *.bin files.
func NewStore(dir string, cacheSize int) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, err
	}
	s := &Store{
		dir:   dir,
		index: make(map[string]Profile),
		cache: cache,
	}

	manifestPath := filepath.Join(dir, "voices.json")
	if data, err := os.ReadFile(manifestPath); err == nil {
		var m manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", manifestPath, err)
		}
		for _, p := range m.Voices {
			name := strings.TrimSpace(p.Name)
			if name == "" || strings.TrimSpace(p.File) == "" {
				continue
			}
			if !filepath.IsAbs(p.File) {
				p.File = filepath.Join(dir, p.File)
			}
			if p.Label == "" {
				p.Label = labelFor(name)
			}
			if p.Gender == "" {
				p.Gender = genderFor(name)
			}
			s.index[name] = p
		}
		return s, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read voices dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".bin") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".bin")
		s.index[name] = Profile{
			Name:     name,
			File:     filepath.Join(dir, e.Name()),
			Label:    labelFor(name),
			Gender:   genderFor(name),
			Language: languageFor(name),
		}
	}
	return s, nil
}

// Names returns all installed voice identifiers, sorted.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.index))
	for name := range s.index {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Profiles returns metadata for all installed voices, sorted by name.
func (s *Store) Profiles() []Profile {
	out := make([]Profile, 0, len(s.index))
	for _, name := range s.Names() {
		out = append(out, s.index[name])
	}
	return out
}

// Has reports whether name is an installed voice.
func (s *Store) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// CacheLen reports how many embeddings are currently loaded.
func (s *Store) CacheLen() int { return s.cache.Len() }

// Load returns the embedding for name, reading the backing file on first
// access and serving the cache afterwards.
func (s *Store) Load(name string) ([]float32, error) {
	if emb, ok := s.cache.Get(name); ok {
		return emb, nil
	}
	p, ok := s.index[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrVoiceNotFound)
	}
	emb, err := readEmbedding(p.File)
	if err != nil {
		return nil, fmt.Errorf("load voice %q: %w", name, err)
	}
	s.cache.Add(name, emb)
	return emb, nil
}

func readEmbedding(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("malformed embedding file (%d bytes)", len(data))
	}
	emb := make([]float32, len(data)/4)
	for i := range emb {
		emb[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return emb, nil
}

// WriteEmbedding stores an embedding as a raw float32 voice-pack file.
func WriteEmbedding(path string, emb []float32) error {
	data := make([]byte, len(emb)*4)
	for i, v := range emb {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return os.WriteFile(path, data, 0o644)
}

func labelFor(name string) string {
	parts := strings.Split(name, "_")
	base := parts[len(parts)-1]
	if base == "" {
		return name
	}
	return strings.ToUpper(base[:1]) + base[1:]
}

func genderFor(name string) string {
	if len(name) >= 2 {
		switch name[1] {
		case 'f':
			return "female"
		case 'm':
			return "male"
		}
	}
	return ""
}

func languageFor(name string) string {
	if name == "" {
		return ""
	}
	switch name[0] {
	case 'a':
		return "American English"
	case 'b':
		return "British English"
	case 'e':
		return "Spanish"
	case 'f':
		return "French"
	case 'h':
		return "Hindi"
	case 'i':
		return "Italian"
	case 'j':
		return "Japanese"
	case 'p':
		return "Portuguese BR"
	case 'z':
		return "Mandarin Chinese"
	}
	return ""
}
