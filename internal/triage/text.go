package triage

import (
	"strings"
	"unicode"
)

// tokenize case-folds text and splits it into words. Apostrophes are dropped
// inside words so contractions fold to a single token ("don't" -> "dont").
func tokenize(text string) []string {
	var (
		tokens []string
		b      strings.Builder
	)
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case r == '\'' || r == '’':
			// contraction: keep accumulating the same word
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// matchesWord reports whether token equals kw or its simple plural.
func matchesWord(token, kw string) bool {
	if token == kw {
		return true
	}
	if !strings.HasPrefix(token, kw) {
		return false
	}
	suffix := token[len(kw):]
	return suffix == "s" || suffix == "es"
}

// countPhrase counts non-overlapping occurrences of phrase in tokens. A
// single-word phrase also matches its plural.
func countPhrase(tokens, phrase []string) int {
	if len(phrase) == 0 || len(tokens) < len(phrase) {
		return 0
	}
	if len(phrase) == 1 {
		n := 0
		for _, tok := range tokens {
			if matchesWord(tok, phrase[0]) {
				n++
			}
		}
		return n
	}
	n := 0
	for i := 0; i+len(phrase) <= len(tokens); {
		if matchSeq(tokens[i:i+len(phrase)], phrase) {
			n++
			i += len(phrase)
			continue
		}
		i++
	}
	return n
}

func matchSeq(window, phrase []string) bool {
	for i := range phrase {
		if i == len(phrase)-1 {
			if !matchesWord(window[i], phrase[i]) {
				return false
			}
			continue
		}
		if window[i] != phrase[i] {
			return false
		}
	}
	return true
}

// textSignals are the surface features of the raw message used for urgency
// detection. They are computed on the original text, before case folding.
type textSignals struct {
	words        int
	exclamations int
	capsWords    int
	letterWords  int
}

func scanSignals(text string) textSignals {
	var s textSignals
	s.exclamations = strings.Count(text, "!")
	for _, w := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '’'
	}) {
		s.words++
		letters, upper := 0, 0
		for _, r := range w {
			if unicode.IsLetter(r) {
				letters++
				if unicode.IsUpper(r) {
					upper++
				}
			}
		}
		if letters < 2 {
			continue
		}
		s.letterWords++
		if upper == letters {
			s.capsWords++
		}
	}
	return s
}
