package voicepack

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTestVoice(t *testing.T, dir, name string, emb []float32) {
	t.Helper()
	if err := WriteEmbedding(filepath.Join(dir, name+".bin"), emb); err != nil {
		t.Fatalf("write voice %q: %v", name, err)
	}
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	writeTestVoice(t, dir, "af_alpha", []float32{1, 1})
	writeTestVoice(t, dir, "af_beta", []float32{3, 3})
	writeTestVoice(t, dir, "bm_gamma", []float32{5, 7})
	s, err := NewStore(dir, 0)
	if err != nil {
		t.Fatalf("NewStore error = %v", err)
	}
	return s, dir
}

func TestSingleVoiceResolveReturnsStoredEmbedding(t *testing.T) {
	s, _ := newTestStore(t)
	got, err := s.Resolve(BlendSpec{Entries: []BlendEntry{{Voice: "bm_gamma", Weight: 1}}})
	if err != nil {
		t.Fatalf("resolve error = %v", err)
	}
	want := []float32{5, 7}
	if len(got) != len(want) {
		t.Fatalf("embedding length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("embedding[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBlendIsNormalizedWeightedAverage(t *testing.T) {
	s, _ := newTestStore(t)
	// Equal weights over [1,1] and [3,3] must land exactly on [2,2].
	got, err := s.Resolve(BlendSpec{Entries: []BlendEntry{
		{Voice: "af_alpha", Weight: 1},
		{Voice: "af_beta", Weight: 1},
	}})
	if err != nil {
		t.Fatalf("resolve error = %v", err)
	}
	for i, v := range got {
		if v != 2 {
			t.Fatalf("blend[%d] = %v, want 2", i, v)
		}
	}

	// Weights that do not sum to 1 still normalize.
	got, err = s.Resolve(BlendSpec{Entries: []BlendEntry{
		{Voice: "af_alpha", Weight: 3},
		{Voice: "af_beta", Weight: 1},
	}})
	if err != nil {
		t.Fatalf("resolve error = %v", err)
	}
	if got[0] != 1.5 {
		t.Fatalf("blend[0] = %v, want 1.5", got[0])
	}
}

func TestResolveUnknownVoiceLeavesCacheUntouched(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Resolve(BlendSpec{Entries: []BlendEntry{{Voice: "af_nope", Weight: 1}}})
	if !errors.Is(err, ErrVoiceNotFound) {
		t.Fatalf("error = %v, want ErrVoiceNotFound", err)
	}
	if n := s.CacheLen(); n != 0 {
		t.Fatalf("cache length = %d after failed resolve, want 0", n)
	}

	// Same property for a blend referencing one bad name.
	_, err = s.Resolve(BlendSpec{Entries: []BlendEntry{
		{Voice: "af_alpha", Weight: 1},
		{Voice: "af_nope", Weight: 1},
	}})
	if !errors.Is(err, ErrVoiceNotFound) {
		t.Fatalf("blend error = %v, want ErrVoiceNotFound", err)
	}
	if n := s.CacheLen(); n != 0 {
		t.Fatalf("cache length = %d after failed blend, want 0", n)
	}
}

func TestResolveZeroWeightsFails(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Resolve(BlendSpec{Entries: []BlendEntry{
		{Voice: "af_alpha", Weight: 0},
		{Voice: "af_beta", Weight: 0},
	}})
	if !errors.Is(err, ErrInvalidWeights) {
		t.Fatalf("error = %v, want ErrInvalidWeights", err)
	}
}

func TestResolveShapeMismatchFails(t *testing.T) {
	s, dir := newTestStore(t)
	writeTestVoice(t, dir, "af_short", []float32{9})
	// Index was built before af_short existed; rebuild.
	s, err := NewStore(dir, 0)
	if err != nil {
		t.Fatalf("NewStore error = %v", err)
	}
	_, err = s.Resolve(BlendSpec{Entries: []BlendEntry{
		{Voice: "af_alpha", Weight: 1},
		{Voice: "af_short", Weight: 1},
	}})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("error = %v, want ErrShapeMismatch", err)
	}
}

func TestLoadCachesEmbedding(t *testing.T) {
	s, dir := newTestStore(t)
	if _, err := s.Load("af_alpha"); err != nil {
		t.Fatalf("load error = %v", err)
	}
	if n := s.CacheLen(); n != 1 {
		t.Fatalf("cache length = %d, want 1", n)
	}

	// Deleting the backing file must not break cached access.
	if err := os.Remove(filepath.Join(dir, "af_alpha.bin")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := s.Load("af_alpha"); err != nil {
		t.Fatalf("cached load error = %v", err)
	}
}

func TestManifestOverridesScan(t *testing.T) {
	dir := t.TempDir()
	writeTestVoice(t, dir, "af_listed", []float32{1})
	writeTestVoice(t, dir, "af_unlisted", []float32{2})
	manifest := `{"voices":[{"name":"af_listed","file":"af_listed.bin","label":"Listed"}]}`
	if err := os.WriteFile(filepath.Join(dir, "voices.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	s, err := NewStore(dir, 0)
	if err != nil {
		t.Fatalf("NewStore error = %v", err)
	}
	if !s.Has("af_listed") {
		t.Fatal("manifest voice missing from index")
	}
	if s.Has("af_unlisted") {
		t.Fatal("unlisted voice should not be indexed when manifest exists")
	}
	if got := s.Profiles()[0].Label; got != "Listed" {
		t.Fatalf("label = %q, want %q", got, "Listed")
	}
}

func TestParseFormula(t *testing.T) {
	tests := []struct {
		name    string
		formula string
		want    int
		wantErr bool
	}{
		{name: "two terms", formula: "af_alpha*0.6+af_beta*0.4", want: 2},
		{name: "whitespace", formula: " af_alpha * 1 + af_beta * 2 ", want: 2},
		{name: "single term", formula: "af_alpha*1", want: 1},
		{name: "empty", formula: "   ", wantErr: true},
		{name: "missing weight", formula: "af_alpha", wantErr: true},
		{name: "bad weight", formula: "af_alpha*heavy", wantErr: true},
		{name: "negative weight", formula: "af_alpha*-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := ParseFormula(tt.formula)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseFormula(%q) expected error", tt.formula)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFormula(%q) error = %v", tt.formula, err)
			}
			if len(spec.Entries) != tt.want {
				t.Fatalf("entries = %d, want %d", len(spec.Entries), tt.want)
			}
		})
	}
}

func TestSaveMixWritesLoadablePack(t *testing.T) {
	s, _ := newTestStore(t)
	dir := t.TempDir()
	path, err := s.SaveMix(BlendSpec{Entries: []BlendEntry{
		{Voice: "af_alpha", Weight: 1},
		{Voice: "af_beta", Weight: 1},
	}}, dir, "mix.bin")
	if err != nil {
		t.Fatalf("SaveMix error = %v", err)
	}
	emb, err := readEmbedding(path)
	if err != nil {
		t.Fatalf("read saved mix: %v", err)
	}
	if len(emb) != 2 || emb[0] != 2 || emb[1] != 2 {
		t.Fatalf("saved mix = %v, want [2 2]", emb)
	}
}

func TestVoiceMetadataDerivation(t *testing.T) {
	s, _ := newTestStore(t)
	for _, p := range s.Profiles() {
		switch p.Name {
		case "af_alpha":
			if p.Gender != "female" || p.Language != "American English" || p.Label != "Alpha" {
				t.Fatalf("af_alpha metadata = %+v", p)
			}
		case "bm_gamma":
			if p.Gender != "male" || p.Language != "British English" {
				t.Fatalf("bm_gamma metadata = %+v", p)
			}
		}
	}
}
