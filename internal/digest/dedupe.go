package digest

import (
	"strings"
	"unicode"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// similarTitleThreshold is the Levenshtein similarity above which two
// normalized titles are treated as the same story.
const similarTitleThreshold = 0.92

// Dedupe drops entries whose title repeats an earlier one, exactly or nearly.
// Order is preserved and the first occurrence wins.
func Dedupe(entries []Entry) (kept []Entry, dropped int) {
	lev := metrics.NewLevenshtein()
	lev.CaseSensitive = false

	seen := make([]string, 0, len(entries))
	kept = make([]Entry, 0, len(entries))

next:
	for _, e := range entries {
		key := normalizeTitle(e.Title)
		for _, s := range seen {
			if key == s || strutil.Similarity(key, s, lev) >= similarTitleThreshold {
				dropped++
				continue next
			}
		}
		seen = append(seen, key)
		kept = append(kept, e)
	}
	return kept, dropped
}

// normalizeTitle lowercases and keeps only letters and digits separated by single spaces.
func normalizeTitle(s string) string {
	s = strings.ToLower(s)
	b := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b = append(b, r)
		} else {
			b = append(b, ' ')
		}
	}
	return strings.Join(strings.Fields(string(b)), " ")
}
