// Package deeplink encodes and decodes search links of the form
// page#q=<query>, so a search can be bookmarked or shared.
package deeplink

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

const marker = "q="

// Parse extracts the query from a fragment ("#q=...", "q=...") or a full URL
// carrying one. Percent-escapes are decoded; "+" stays a plus sign. ok is
// false when there is no q= fragment, the escapes are malformed, or the query
// is empty.
func Parse(s string) (query string, ok bool) {
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[i+1:]
	}
	if !strings.HasPrefix(s, marker) {
		return "", false
	}
	q, err := url.PathUnescape(s[len(marker):])
	if err != nil || !utf8.ValidString(q) || q == "" {
		return "", false
	}
	return q, true
}

// Fragment returns "#q=" followed by query with every byte outside
// A-Z a-z 0-9 - _ . ! ~ * ' ( ) percent-encoded.
func Fragment(query string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.WriteString("#" + marker)
	for i := 0; i < len(query); i++ {
		c := query[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&15])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}
