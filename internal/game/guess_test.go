package game

import (
	"testing"
)

func TestTitlesMatch(t *testing.T) {
	tests := []struct {
		name   string
		actual string
		guess  string
		want   bool
	}{
		{"exact", "Dancing Queen", "Dancing Queen", true},
		{"case insensitive", "Dancing Queen", "dancing queen", true},
		{"whitespace collapsed", "Dancing Queen", "  dancing   queen ", true},
		{"diacritics folded", "Beyoncé", "beyonce", true},
		{"parenthetical stripped from actual", "One (Remastered 2011)", "one", true},
		{"bracketed qualifier stripped", "One [Live]", "one", true},
		{"dash suffix stripped", "Heroes - 2017 Remaster", "heroes", true},
		{"feat annotation stripped", "Crazy in Love feat. Jay-Z", "crazy in love", true},
		{"both sides normalized", "One (Live)", "One - Single Version", true},
		{"wrong title", "Dancing Queen", "Waterloo", false},
		{"empty guess never matches", "Dancing Queen", "", false},
		{"empty guess vs strippable title", "(Untitled)", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TitlesMatch(tt.actual, tt.guess); got != tt.want {
				t.Errorf("TitlesMatch(%q, %q) = %v, want %v", tt.actual, tt.guess, got, tt.want)
			}
		})
	}
}

func TestArtistsMatch(t *testing.T) {
	tests := []struct {
		name   string
		actual string
		guess  string
		want   bool
	}{
		{"exact", "ABBA", "abba", true},
		{"featured artist stripped", "Beyoncé feat. Jay-Z", "beyonce", true},
		{"ft variant stripped", "Calvin Harris ft. Rihanna", "calvin harris", true},
		{"guess includes feature", "Calvin Harris", "calvin harris feat. rihanna", true},
		{"wrong artist", "ABBA", "Queen", false},
		{"parentheticals kept for artists", "(Hed) P.E.", "hed p.e.", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ArtistsMatch(tt.actual, tt.guess); got != tt.want {
				t.Errorf("ArtistsMatch(%q, %q) = %v, want %v", tt.actual, tt.guess, got, tt.want)
			}
		})
	}
}
