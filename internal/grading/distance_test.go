package grading_test

import (
	"math"
	"testing"

	"github.com/antzucaro/matchr"

	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/grading"
)

func TestLevenshtein(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"chat", "chat", 0},
		{"chat", "chats", 1},
		{"chat", "chien", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"été", "ete", 2},
		{"œuf", "oeuf", 2},
	}
	for _, tt := range tests {
		if got := grading.Levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("Levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

// matchr is an independent implementation; both must agree on ASCII input.
func TestLevenshtein_AgreesWithMatchr(t *testing.T) {
	t.Parallel()

	words := []string{"", "a", "chat", "chats", "chien", "bonjour", "bonsoir", "maison", "raison", "kitten", "sitting"}
	for _, a := range words {
		for _, b := range words {
			got := grading.Levenshtein(a, b)
			want := matchr.Levenshtein(a, b)
			if got != want {
				t.Errorf("Levenshtein(%q, %q) = %d, matchr says %d", a, b, got, want)
			}
		}
	}
}

func TestLevenshtein_IdentityAndSymmetry(t *testing.T) {
	t.Parallel()

	words := []string{"", "x", "chat", "l'école", "été", "anticonstitutionnellement"}
	for _, a := range words {
		if d := grading.Levenshtein(a, a); d != 0 {
			t.Errorf("Levenshtein(%q, %q) = %d, want 0", a, a, d)
		}
		for _, b := range words {
			if ab, ba := grading.Levenshtein(a, b), grading.Levenshtein(b, a); ab != ba {
				t.Errorf("Levenshtein not symmetric: (%q,%q)=%d (%q,%q)=%d", a, b, ab, b, a, ba)
			}
		}
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1.0},
		{"chat", "chat", 1.0},
		{"", "chat", 0.0},
		{"chat", "chats", 0.8},
		{"abcd", "wxyz", 0.0},
		{"maison", "raison", 1 - 1.0/6},
	}
	for _, tt := range tests {
		got := grading.Similarity(tt.a, tt.b)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Similarity(%q, %q) = %f, want %f", tt.a, tt.b, got, tt.want)
		}
	}
}

func FuzzSimilarity_Properties(f *testing.F) {
	f.Add("chat", "chats")
	f.Add("", "")
	f.Add("été", "ete")
	f.Add("bonjour le chat", "bonjourlechat")
	f.Fuzz(func(t *testing.T, a, b string) {
		s := grading.Similarity(a, b)
		if s < 0 || s > 1 {
			t.Errorf("Similarity(%q, %q) = %f, out of [0,1]", a, b, s)
		}
		if self := grading.Similarity(a, a); self != 1.0 {
			t.Errorf("Similarity(%q, %q) = %f, want 1", a, a, self)
		}
		if ab, ba := grading.Levenshtein(a, b), grading.Levenshtein(b, a); ab != ba {
			t.Errorf("Levenshtein not symmetric for %q, %q: %d vs %d", a, b, ab, ba)
		}
	})
}
