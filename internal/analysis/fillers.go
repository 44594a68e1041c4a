package analysis

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/intervoxa/pkg/types"
)

// fillerPhrases are multi-word discourse markers, matched over token windows
// with longer phrases taking precedence.
var fillerPhrases = [][]string{
	{"you", "know", "what", "i", "mean"},
	{"you", "know"},
	{"i", "mean"},
	{"sort", "of"},
	{"kind", "of"},
	{"or", "something"},
}

// fillerWords are single-token discourse markers matched exactly.
var fillerWords = map[string]struct{}{
	"um": {}, "uh": {}, "er": {}, "ah": {}, "hmm": {},
	"like": {}, "actually": {}, "basically": {}, "literally": {},
}

// hesitationSounds are the non-lexical fillers whose spelling varies wildly in
// STT output ("umm", "uhhh", "errr"). Tokens are matched against these
// phonetically rather than literally.
var hesitationSounds = []string{"um", "uh", "er", "ah", "hmm"}

// variantSimilarity is the Jaro-Winkler floor for accepting a token as a
// spelling variant of a hesitation sound. Elongations score surprisingly low
// ("ummm" vs "um" is 0.87), so the floor is loose and the real gate is the
// phonetic code plus the character-set check in matchVariant.
const variantSimilarity = 0.8

// maxVariantLen bounds variant matching to short tokens; longer words that
// happen to share a phonetic code ("umbrella") must never count as fillers.
const maxVariantLen = 5

// FillerMatcher finds filler-word occurrences in a token stream. Matches are
// case-insensitive whole-word/phrase hits against a fixed lexicon, extended
// with Double Metaphone + Jaro-Winkler matching for elongated hesitation
// sounds. Every hit is recorded with its surface form; hits are deliberately
// not deduplicated, since repetition matters for scoring.
//
// The matcher is read-only after construction and safe for concurrent use.
type FillerMatcher struct {
	soundCodes map[string]string // canonical sound → primary metaphone code
}

// NewFillerMatcher creates a matcher over the built-in lexicon.
func NewFillerMatcher() *FillerMatcher {
	codes := make(map[string]string, len(hesitationSounds))
	for _, s := range hesitationSounds {
		primary, _ := matchr.DoubleMetaphone(s)
		codes[s] = primary
	}
	return &FillerMatcher{soundCodes: codes}
}

// Match scans the token stream and returns every filler hit in order.
// surfaces holds the original token forms; normalized holds the lowercased,
// punctuation-stripped forms at the same indices.
func (m *FillerMatcher) Match(surfaces, normalized []string) []types.FillerHit {
	var hits []types.FillerHit

	for i := 0; i < len(normalized); i++ {
		// Phrases first, longest wins, consuming the window.
		if phrase, n := matchPhrase(normalized[i:]); n > 0 {
			hits = append(hits, types.FillerHit{
				Surface:   strings.Join(surfaces[i:i+n], " "),
				Canonical: phrase,
			})
			i += n - 1
			continue
		}

		tok := normalized[i]
		if tok == "" {
			continue
		}
		if _, ok := fillerWords[tok]; ok {
			hits = append(hits, types.FillerHit{Surface: surfaces[i], Canonical: tok})
			continue
		}
		if canonical, ok := m.matchVariant(tok); ok {
			hits = append(hits, types.FillerHit{Surface: surfaces[i], Canonical: canonical})
		}
	}

	return hits
}

// matchPhrase tests whether tokens starts with a lexicon phrase.
// Returns the canonical phrase and its token length, or ("", 0).
func matchPhrase(tokens []string) (string, int) {
	for _, phrase := range fillerPhrases {
		if len(phrase) > len(tokens) {
			continue
		}
		match := true
		for j, w := range phrase {
			if tokens[j] != w {
				match = false
				break
			}
		}
		if match {
			return strings.Join(phrase, " "), len(phrase)
		}
	}
	return "", 0
}

// matchVariant tests whether tok is a spelling variant of a hesitation sound.
// A variant must share the sound's phonetic code and first letter, draw all
// its characters from the sound ("ummm" from "um", but not "ear" from "er"),
// and clear the Jaro-Winkler floor.
func (m *FillerMatcher) matchVariant(tok string) (string, bool) {
	if len(tok) < 2 || len(tok) > maxVariantLen {
		return "", false
	}
	primary, secondary := matchr.DoubleMetaphone(tok)
	for _, sound := range hesitationSounds {
		code := m.soundCodes[sound]
		if code == "" || (primary != code && secondary != code) {
			continue
		}
		if tok[0] != sound[0] || !drawnFrom(tok, sound) {
			continue
		}
		if matchr.JaroWinkler(tok, sound, false) >= variantSimilarity {
			return sound, true
		}
	}
	return "", false
}

// drawnFrom reports whether every character of tok occurs in alphabet.
func drawnFrom(tok, alphabet string) bool {
	for _, r := range tok {
		if !strings.ContainsRune(alphabet, r) {
			return false
		}
	}
	return true
}
