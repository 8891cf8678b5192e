package conversation

import (
	"strings"
	"unicode"
)

// words lowercases s and splits it on anything that is not a letter or a
// digit.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// phraseSet matches single words and multi-word phrases on word
// boundaries.
type phraseSet []string

// in reports whether any entry of p occurs in the word sequence.
func (p phraseSet) in(ws []string) bool {
	return len(p.matches(ws)) > 0
}

// matches returns the entries of p that occur, in declaration order.
func (p phraseSet) matches(ws []string) []string {
	joined := " " + strings.Join(ws, " ") + " "
	var out []string
	for _, phrase := range p {
		if strings.Contains(joined, " "+phrase+" ") {
			out = append(out, phrase)
		}
	}
	return out
}
