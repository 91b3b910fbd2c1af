package transcoder

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// separators lists the independent vowels and modifier signs that Encode
// turns into a single space.
const separators = "अआइईउऊऋऌएऐओऔँंः"

// consonantMap maps every grapheme of the system to its digit.
var consonantMap = map[string]int{
	"क": 1, "ख": 2, "ग": 3, "घ": 4, "ङ": 5,
	"च": 6, "छ": 7, "ज": 8, "झ": 9, "ञ": 0,
	"ट": 1, "ठ": 2, "ड": 3, "ढ": 4, "ण": 5,
	"त": 6, "थ": 7, "द": 8, "ध": 9, "न": 0,
	"प": 1, "फ": 2, "ब": 3, "भ": 4, "म": 5,
	"य": 1, "र": 2, "ल": 3, "व": 4, "श": 5,
	"ष": 6, "स": 7, "ह": 8, "ळ": 9, "क्ष": 0,
	"ज्ञ": 0,
}

// digitTable lists the graphemes that encode to each digit. The order within
// each list matters: Decode emits the first entry.
var digitTable = [10][]string{
	0: {"ञ", "न", "क्ष", "ज्ञ"},
	1: {"क", "ट", "प", "य"},
	2: {"ख", "ठ", "फ", "र"},
	3: {"ग", "ड", "ब", "ल"},
	4: {"घ", "ढ", "भ", "व"},
	5: {"ङ", "ण", "म", "श"},
	6: {"च", "त", "ष"},
	7: {"छ", "थ", "स"},
	8: {"ज", "द", "ह"},
	9: {"झ", "ध", "ळ"},
}

// clusters holds the multi-rune graphemes of consonantMap, longest first.
var clusters = multiRuneGraphemes(consonantMap)

func multiRuneGraphemes(m map[string]int) []string {
	var out []string
	for g := range m {
		if utf8.RuneCountInString(g) > 1 {
			out = append(out, g)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(out[i]), utf8.RuneCountInString(out[j])
		if li != lj {
			return li > lj
		}
		return out[i] < out[j]
	})
	return out
}

// matchCluster reports the multi-rune grapheme that prefixes s, if any.
func matchCluster(s string) (string, int, bool) {
	for _, g := range clusters {
		if strings.HasPrefix(s, g) {
			return g, consonantMap[g], true
		}
	}
	return "", 0, false
}

// Digit returns the digit assigned to a grapheme and reports whether the
// grapheme is part of the system.
func Digit(grapheme string) (int, bool) {
	d, ok := consonantMap[grapheme]
	return d, ok
}

// Candidates returns the graphemes that encode to digit, in the order Decode
// prefers them. It returns nil if digit is outside [0, 9]. The returned slice
// is a copy and may be modified by the caller.
func Candidates(digit int) []string {
	if digit < 0 || digit >= len(digitTable) {
		return nil
	}
	return append([]string(nil), digitTable[digit]...)
}

// Graphemes returns every grapheme of the system ordered by digit and then by
// candidate order.
func Graphemes() []string {
	out := make([]string, 0, len(consonantMap))
	for _, list := range digitTable {
		out = append(out, list...)
	}
	return out
}

// IsSeparator reports whether r is one of the vowels or modifier signs that
// Encode replaces with a space.
func IsSeparator(r rune) bool {
	return strings.ContainsRune(separators, r)
}
