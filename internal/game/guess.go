package game

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Guess matching is deliberately forgiving: case, whitespace, and diacritics
// never count against the player, and the clutter labels tack onto titles
// ("(Remastered 2011)", "feat. Someone", " - Single Version") is stripped
// before comparison.

var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldText(s string) string {
	out, _, err := transform.String(deaccent, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

// stripParentheticals removes (...) and [...] qualifiers.
func stripParentheticals(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// stripFeatured drops a trailing "feat."/"featuring"/"ft." annotation.
func stripFeatured(s string) string {
	lower := strings.ToLower(s)
	for _, marker := range []string{" feat.", " feat ", " featuring ", " ft.", " ft ", " with "} {
		if i := strings.Index(lower, marker); i >= 0 {
			s = s[:i]
			lower = lower[:i]
		}
	}
	return s
}

// stripDashSuffix drops a trailing " - ..." qualifier such as
// " - Remastered" or " - Radio Edit".
func stripDashSuffix(s string) string {
	if i := strings.Index(s, " - "); i >= 0 {
		return s[:i]
	}
	return s
}

func normalizeTitle(s string) string {
	return foldText(stripFeatured(stripDashSuffix(stripParentheticals(s))))
}

func normalizeArtist(s string) string {
	return foldText(stripFeatured(s))
}

// TitlesMatch reports whether a guessed title matches the actual one after
// normalization. Empty guesses never match.
func TitlesMatch(actual, guess string) bool {
	g := normalizeTitle(guess)
	return g != "" && g == normalizeTitle(actual)
}

// ArtistsMatch reports whether a guessed artist matches the actual one after
// normalization.
func ArtistsMatch(actual, guess string) bool {
	g := normalizeArtist(guess)
	return g != "" && g == normalizeArtist(actual)
}
