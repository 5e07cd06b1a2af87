// Package ranker scores documents by summed raw term frequency.
package ranker

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/index"
)

type ScoredDoc struct {
	DocID string `json:"doc_id"`
	Score int    `json:"score"`
}

// Rank sums the frequency of every posting in postingsPerToken into a score
// per document and sorts by descending score, ties by ascending id. Each
// element of postingsPerToken is one query token's postings, so a repeated
// token counts twice. limit <= 0 keeps every document.
func Rank(postingsPerToken [][]index.Posting, limit int) []ScoredDoc {
	scores := make(map[string]int)
	for _, postings := range postingsPerToken {
		for _, p := range postings {
			scores[p.DocID] += p.Frequency
		}
	}
	result := make([]ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		result = append(result, ScoredDoc{DocID: docID, Score: score})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return CompareIDs(result[i].DocID, result[j].DocID) < 0
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// CompareIDs orders document ids numerically when both are unsigned decimal
// integers and byte-wise otherwise. Numerically equal ids such as "7" and
// "007" fall back to byte order so the result stays total.
func CompareIDs(a, b string) int {
	if isDecimal(a) && isDecimal(b) {
		ta, tb := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(ta) != len(tb) {
			if len(ta) < len(tb) {
				return -1
			}
			return 1
		}
		if c := strings.Compare(ta, tb); c != 0 {
			return c
		}
	}
	return strings.Compare(a, b)
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
