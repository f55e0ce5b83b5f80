package classify

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// normalizeText folds compatibility forms and case so keywords typed in a
// sheet match full-width or decomposed text in a message.
func normalizeText(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToLower(norm.NFKC.String(s))
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// containsWord reports whether kw occurs in text bounded by non-word runes or
// the ends of text. Both arguments must already be normalized.
func containsWord(text, kw string) bool {
	if kw == "" {
		return false
	}
	offset := 0
	for {
		idx := strings.Index(text[offset:], kw)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(kw)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

// matchedKeywords returns the keywords that occur as whole words in text.
func matchedKeywords(keywords []string, text string) []string {
	var out []string
	for _, kw := range keywords {
		kw = normalizeText(kw)
		if containsWord(text, kw) {
			out = append(out, kw)
		}
	}
	return out
}

// senderMatches reports whether any candidate sender contains one of the
// patterns. Matching is substring based, so "@acme.com" also hits
// "john@notacme.com.org".
func senderMatches(patterns, senders []string) bool {
	for _, p := range patterns {
		for _, s := range senders {
			if strings.Contains(s, p) {
				return true
			}
		}
	}
	return false
}
