package vector

import (
	"errors"
	"testing"
)

func TestCollectionFor(t *testing.T) {
	tests := []struct {
		lang    string
		want    string
		wantErr bool
	}{
		{"en", "textbook_chunks_en", false},
		{"ur", "textbook_chunks_ur", false},
		{"fr", "", true},
		{"", "", true},
		{"EN", "", true},
	}

	for _, tt := range tests {
		t.Run("lang="+tt.lang, func(t *testing.T) {
			got, err := collectionFor(tt.lang)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownLanguage) {
					t.Errorf("collectionFor(%q) error = %v, want ErrUnknownLanguage", tt.lang, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("collectionFor(%q) error: %v", tt.lang, err)
			}
			if got != tt.want {
				t.Errorf("collectionFor(%q) = %q, want %q", tt.lang, got, tt.want)
			}
		})
	}
}

func TestSupportedLanguage(t *testing.T) {
	if !SupportedLanguage("en") || !SupportedLanguage("ur") {
		t.Error("en and ur must be supported")
	}
	if SupportedLanguage("de") || SupportedLanguage("") {
		t.Error("unexpected language reported as supported")
	}
}

func TestSearchOptions(t *testing.T) {
	o := searchOptions{topK: DefaultTopK, minScore: DefaultMinScore}
	for _, opt := range []SearchOption{WithTopK(8), WithMinScore(0.5)} {
		opt(&o)
	}
	if o.topK != 8 {
		t.Errorf("topK = %d, want 8", o.topK)
	}
	if o.minScore != 0.5 {
		t.Errorf("minScore = %v, want 0.5", o.minScore)
	}

	// Non-positive top-K keeps the default
	o = searchOptions{topK: DefaultTopK, minScore: DefaultMinScore}
	WithTopK(0)(&o)
	if o.topK != DefaultTopK {
		t.Errorf("topK = %d, want default %d", o.topK, DefaultTopK)
	}
}
