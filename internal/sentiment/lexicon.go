package sentiment

import "strings"

// Small finance-news lexicon. Headline scoring is deliberately blunt: the
// blended ranking only needs a directional nudge, and the provider
// boundary allows richer scorers to be swapped in.
var positiveWords = map[string]bool{
	"beat": true, "beats": true, "upgrade": true, "upgraded": true,
	"surge": true, "surges": true, "soars": true, "rally": true,
	"record": true, "profit": true, "growth": true, "wins": true,
	"approval": true, "approved": true, "buyback": true, "dividend": true,
	"raises": true, "raised": true, "strong": true, "outperform": true,
	"expands": true, "contract": true, "acquisition": true,
}

var negativeWords = map[string]bool{
	"miss": true, "misses": true, "downgrade": true, "downgraded": true,
	"plunge": true, "plunges": true, "slump": true, "slumps": true,
	"loss": true, "losses": true, "lawsuit": true, "probe": true,
	"recall": true, "halt": true, "halted": true, "warns": true,
	"warning": true, "cuts": true, "cut": true, "weak": true,
	"underperform": true, "writedown": true, "default": true,
}

// scoreHeadlines maps a headline batch to a raw score in [-1, 1]: the
// net positive-minus-negative hit count over total hits, averaged across
// headlines. Empty input scores 0.
func scoreHeadlines(headlines []string) float64 {
	if len(headlines) == 0 {
		return 0
	}

	var total float64
	scored := 0
	for _, h := range headlines {
		pos, neg := 0, 0
		for _, word := range strings.Fields(strings.ToLower(h)) {
			word = strings.Trim(word, ".,:;!?'\"()")
			if positiveWords[word] {
				pos++
			}
			if negativeWords[word] {
				neg++
			}
		}
		if pos+neg == 0 {
			continue
		}
		total += float64(pos-neg) / float64(pos+neg)
		scored++
	}

	if scored == 0 {
		return 0
	}
	return total / float64(scored)
}
