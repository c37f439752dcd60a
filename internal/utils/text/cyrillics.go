package text

import (
	"strings"
	"unicode"
)

// latinLookalikes maps Cyrillic and Greek letters to the Latin letter they imitate.
var latinLookalikes = map[rune]rune{
	'а': 'a', 'в': 'b', 'е': 'e', 'ё': 'e', 'к': 'k', 'м': 'm', 'н': 'h',
	'о': 'o', 'р': 'p', 'с': 'c', 'т': 't', 'у': 'y', 'х': 'x', 'і': 'i',
	'ј': 'j', 'ѕ': 's', 'ԁ': 'd', 'ԛ': 'q', 'ԝ': 'w',
	'α': 'a', 'ε': 'e', 'ι': 'i', 'κ': 'k', 'ν': 'v', 'ο': 'o', 'ρ': 'p',
	'τ': 't', 'υ': 'u', 'χ': 'x',
}

// HasCyrillics checks if the given string contains any Cyrillic characters
func HasCyrillics(content string) bool {
	for _, r := range content {
		if isCyrillic(r) {
			return true
		}
	}
	return false
}

// HasLatin checks if the given string contains any Latin letters
func HasLatin(content string) bool {
	for _, r := range content {
		if unicode.In(r, unicode.Latin) {
			return true
		}
	}
	return false
}

// FoldHomoglyphs replaces lookalike letters with Latin ones inside words that
// mix Latin with Cyrillic or Greek script. Single-script words are untouched,
// so genuine Cyrillic text keeps matching Cyrillic word lists.
func FoldHomoglyphs(content string) string {
	fields := strings.FieldsFunc(content, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	if len(fields) == 0 {
		return content
	}
	var changed bool
	for i, word := range fields {
		if !HasLatin(word) || !hasLookalike(word) {
			continue
		}
		fields[i] = strings.Map(func(r rune) rune {
			if latin, ok := latinLookalikes[r]; ok {
				return latin
			}
			return r
		}, word)
		changed = true
	}
	if !changed {
		return content
	}
	return strings.Join(fields, " ")
}

func hasLookalike(word string) bool {
	for _, r := range word {
		if _, ok := latinLookalikes[r]; ok {
			return true
		}
	}
	return false
}

func isCyrillic(r rune) bool {
	return r >= 0x0400 && r <= 0x04FF || r >= 0x0500 && r <= 0x052F
}
