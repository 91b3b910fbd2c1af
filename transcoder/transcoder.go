package transcoder

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultPlaceholder is emitted by Decode for a digit without candidates.
const DefaultPlaceholder = '?'

// Option configures a Transcoder.
type Option func(t *Transcoder)

// WithClusterMatching makes Encode match multi-rune graphemes such as क्ष as a
// single unit before falling back to rune by rune scanning.
func WithClusterMatching() Option {
	return func(t *Transcoder) {
		t.matchClusters = true
	}
}

// WithPlaceholder overrides the character Decode emits when the digit table
// has no candidate for a digit.
func WithPlaceholder(r rune) Option {
	return func(t *Transcoder) {
		t.placeholder = r
	}
}

// Transcoder converts text to Katapayadi digit strings and back. The zero
// value is not usable; create instances with New. A Transcoder holds no
// mutable state and can be shared between goroutines.
type Transcoder struct {
	matchClusters bool
	placeholder   rune
}

// New creates a Transcoder and applies the supplied options.
func New(options ...Option) *Transcoder {
	t := &Transcoder{
		placeholder: DefaultPlaceholder,
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// MatchesClusters reports whether the transcoder was created with
// WithClusterMatching.
func (t *Transcoder) MatchesClusters() bool {
	return t.matchClusters
}

var std = New()

// Encode converts text using a rune by rune transcoder. See Transcoder.Encode.
func Encode(text string, key int) string {
	return std.Encode(text, key)
}

// Decode converts numbers using the default transcoder. See Transcoder.Decode.
func Decode(numbers string, key int) string {
	return std.Decode(numbers, key)
}

// Encode converts text into its Katapayadi form.
//
// Every mapped consonant becomes the digit (d + key) mod 10. Decimal digits in
// the input are copied without applying the key, vowels and modifier signs
// (see IsSeparator) become a space and everything else is copied as is. The
// assembled string is trimmed and any whitespace run that sits between two
// digits is removed, so "क अ ख" encodes to "12" while "क, ख" keeps its space.
func (t *Transcoder) Encode(text string, key int) string {
	shift := Shift(key)

	var sb strings.Builder
	sb.Grow(len(text))
	for i := 0; i < len(text); {
		if t.matchClusters {
			if g, d, ok := matchCluster(text[i:]); ok {
				sb.WriteByte(digitChar(d + shift))
				i += len(g)
				continue
			}
		}

		r, size := utf8.DecodeRuneInString(text[i:])
		raw := text[i : i+size]
		i += size

		switch d, mapped := consonantMap[raw]; {
		case mapped:
			sb.WriteByte(digitChar(d + shift))
		case IsSeparator(r):
			sb.WriteByte(' ')
		default:
			// Digits and unmapped input, including invalid UTF-8 bytes, are
			// copied verbatim.
			sb.WriteString(raw)
		}
	}

	return joinDigitRuns(strings.TrimFunc(sb.String(), isSpace))
}

// Decode converts a digit string back into consonants.
//
// Every ASCII digit is shifted back by key modulo 10 and replaced with the
// first candidate for the resulting digit (see firstCandidate); any other
// character is copied unchanged. An empty input yields an empty result.
func (t *Transcoder) Decode(numbers string, key int) string {
	return decode(numbers, key, &digitTable, t.placeholder)
}

func decode(numbers string, key int, table *[10][]string, placeholder rune) string {
	if numbers == "" {
		return ""
	}

	shift := Shift(key)

	var sb strings.Builder
	sb.Grow(len(numbers) * 3)
	for i := 0; i < len(numbers); i++ {
		c := numbers[i]
		if c < '0' || c > '9' {
			sb.WriteByte(c)
			continue
		}

		d := (int(c-'0') - shift + 10) % 10
		if list := table[d]; len(list) > 0 {
			sb.WriteString(firstCandidate(list))
			continue
		}

		// Unreachable with the shipped table.
		sb.WriteRune(placeholder)
	}

	return sb.String()
}

// firstCandidate picks the grapheme Decode emits for a digit.
//
// Katapayadi assigns the same digit to up to four consonants and a digit
// string carries no trace of which one was used. Decode does not try to
// guess: it always returns the first entry of the candidate list, which makes
// decoding deterministic and lossy. A round trip only reproduces its input
// when every consonant is the first candidate of its digit.
func firstCandidate(list []string) string {
	return list[0]
}

// Shift reduces key into [0, 9] using floor modulo. Only the shift matters
// to Encode and Decode, so any int is a valid key.
func Shift(key int) int {
	k := key % 10
	if k < 0 {
		k += 10
	}
	return k
}

func digitChar(d int) byte {
	return byte('0' + d%10)
}

// isSpace reports whether r is whitespace. Besides the unicode.IsSpace set it
// accepts the information separators U+001C to U+001F.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}

// joinDigitRuns drops every whitespace run that is both preceded and
// followed by a digit. Bytes that are not valid UTF-8 are kept as is.
func joinDigitRuns(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))

	afterDigit := false
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isSpace(r) {
			sb.WriteString(s[i : i+size])
			afterDigit = unicode.IsDigit(r)
			i += size
			continue
		}

		end := i
		for end < len(s) {
			r, n := utf8.DecodeRuneInString(s[end:])
			if !isSpace(r) {
				break
			}
			end += n
		}

		next, _ := utf8.DecodeRuneInString(s[end:])
		if !afterDigit || end == len(s) || !unicode.IsDigit(next) {
			sb.WriteString(s[i:end])
			afterDigit = false
		}
		i = end
	}
	return sb.String()
}
