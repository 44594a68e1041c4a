package analysis

import "strings"

// keywordDisplayCap bounds the keyword list carried in snapshots. The full
// first-seen-ordered set is retained by the engine for downstream scoring.
const keywordDisplayCap = 20

// minKeywordLen excludes short function words from keyword extraction.
const minKeywordLen = 4

// stopWords are common words excluded from keyword extraction.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "that": {}, "this": {}, "with": {}, "from": {},
	"have": {}, "has": {}, "had": {}, "was": {}, "were": {}, "been": {},
	"would": {}, "could": {}, "should": {}, "will": {}, "shall": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "while": {},
	"then": {}, "than": {}, "them": {}, "they": {}, "their": {}, "there": {},
	"your": {}, "yours": {}, "about": {}, "because": {}, "into": {},
	"just": {}, "also": {}, "very": {}, "really": {}, "some": {}, "such": {},
	"more": {}, "most": {}, "other": {}, "over": {}, "after": {}, "before": {},
	"being": {}, "doing": {}, "going": {}, "things": {}, "thing": {},
	"think": {}, "know": {}, "like": {}, "want": {}, "need": {},
	"mean": {}, "kind": {}, "sort": {}, "well": {}, "yeah": {}, "okay": {},
}

// extractKeywords returns content words from the normalized token stream:
// tokens longer than three characters that are not stop words, in first-seen
// order, deduplicated.
func extractKeywords(normalized []string) []string {
	seen := make(map[string]struct{}, len(normalized))
	var out []string
	for _, tok := range normalized {
		if len(tok) < minKeywordLen {
			continue
		}
		if _, ok := stopWords[tok]; ok {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// normalizeToken lowercases tok and strips leading/trailing punctuation.
// Inner punctuation (apostrophes, hyphens) is preserved.
func normalizeToken(tok string) string {
	return strings.Trim(strings.ToLower(tok), ".,;:!?\"'()[]{}…-")
}

// tokenize splits text into surface tokens and their normalized forms.
// The two slices are index-aligned.
func tokenize(text string) (surfaces, normalized []string) {
	surfaces = strings.Fields(text)
	normalized = make([]string, len(surfaces))
	for i, s := range surfaces {
		normalized[i] = normalizeToken(s)
	}
	return surfaces, normalized
}
