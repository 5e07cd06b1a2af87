// Package tokenizer turns text into index terms. The query side and the
// index builder must produce identical terms for identical text, so the
// scheme here is frozen and versioned: lowercase, maximal runs of word
// characters (letters, numbers, underscore), stop words dropped, then one
// trailing "s" stripped.
package tokenizer

import (
	"strings"
	"unicode"
)

// Version names the tokenization scheme. Bump it together with
// testdata/conformance.json whenever the output for any input changes.
const Version = "1"

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"that": {}, "the": {}, "to": {}, "was": {}, "were": {}, "will": {},
	"with": {},
	// contraction fragments: "someone's" -> someone s, "don't" -> don t
	"s": {}, "t": {},
}

// dotted capital I lowercases to i + combining dot, which is not a word
// character and therefore splits the run.
var lowerer = strings.NewReplacer("\u0130", "i\u0307")

// Tokenize returns the terms of text in order, duplicates preserved. It never
// fails; text without word characters yields an empty slice.
func Tokenize(text string) []string {
	text = lower(text)
	tokens := make([]string, 0, len(text)/6)
	start := -1
	for i, r := range text {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = appendTerm(tokens, text[start:i])
			start = -1
		}
	}
	if start >= 0 {
		tokens = appendTerm(tokens, text[start:])
	}
	return tokens
}

// IsStopWord reports whether a lowercased word is dropped before stripping.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

func appendTerm(tokens []string, word string) []string {
	if IsStopWord(word) {
		return tokens
	}
	return append(tokens, strings.TrimSuffix(word, "s"))
}

// lower is full Unicode lowercasing, including the Final_Sigma rule: a
// capital sigma that ends a word becomes ς, any other becomes σ.
func lower(text string) string {
	if !strings.ContainsRune(text, 'Σ') {
		return strings.ToLower(lowerer.Replace(text))
	}
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	for i, r := range runes {
		if r == 'Σ' && finalSigma(runes, i) {
			r = 'ς'
		}
		b.WriteRune(r)
	}
	return strings.ToLower(lowerer.Replace(b.String()))
}

// finalSigma reports whether runes[i] is preceded by a cased letter and not
// followed by one, skipping case-ignorable runes in both directions.
func finalSigma(runes []rune, i int) bool {
	j := i - 1
	for j >= 0 && caseIgnorable(runes[j]) {
		j--
	}
	if j < 0 || !cased(runes[j]) {
		return false
	}
	j = i + 1
	for j < len(runes) && caseIgnorable(runes[j]) {
		j++
	}
	return j == len(runes) || !cased(runes[j])
}

func cased(r rune) bool {
	return unicode.In(r, unicode.Lu, unicode.Ll, unicode.Lt, unicode.Other_Lowercase, unicode.Other_Uppercase)
}

func caseIgnorable(r rune) bool {
	switch r {
	case '\'', '.', ':', '\u00b7', '\u0387', '\u05f4', '\u2018', '\u2019',
		'\u2024', '\u2027', '\ufe13', '\ufe52', '\ufe55', '\uff07', '\uff0e', '\uff1a':
		return true
	}
	return unicode.In(r, unicode.Mn, unicode.Me, unicode.Cf, unicode.Lm, unicode.Sk)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}
