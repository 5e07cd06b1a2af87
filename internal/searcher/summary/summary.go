// Package summary builds the short text shown under each search result.
package summary

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/index"
)

const (
	// MinWords is the word count a body paragraph must exceed to start the
	// summary; shorter leading parts are usually navigation or headings.
	MinWords = 10
	// TargetLength is the length, in code points, below which another part
	// is appended.
	TargetLength = 140
)

var partSep = regexp.MustCompile(`[\n\t]+`)

// Summarize returns meta descriptions verbatim. Body text is split into
// parts on runs of newlines and tabs; parts are skipped until the first with
// more than MinWords words, then that part and the following ones are
// appended, each with a leading space, while the summary is shorter than
// TargetLength.
func Summarize(d index.Description) string {
	if d.IsMeta() {
		return d.Text
	}
	var b strings.Builder
	length := 0
	found := false
	for _, part := range partSep.Split(d.Text, -1) {
		if !found {
			if len(strings.Fields(part)) <= MinWords {
				continue
			}
			found = true
		}
		if length >= TargetLength {
			break
		}
		b.WriteByte(' ')
		b.WriteString(part)
		length += 1 + utf8.RuneCountInString(part)
	}
	return b.String()
}
