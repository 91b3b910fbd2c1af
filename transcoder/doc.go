// Package transcoder implements the Katapayadi system, a classical Sanskrit
// mnemonic scheme that assigns a digit to every consonant so that words can
// be used to memorize numbers.
//
// Encode walks a text one character at a time and replaces every mapped
// consonant with its digit, shifted by a key modulo 10. Decode performs the
// inverse walk and replaces every ASCII digit with a consonant after undoing
// the shift.
//
// The mapping is many-to-one: क, ट, प and य all encode to 1. Decode therefore
// cannot know which consonant produced a digit and always emits the first
// candidate listed for it (क for 1, ख for 2 and so on). This is a property of
// the Katapayadi system itself; callers that need the other spellings can
// list them with Candidates and disambiguate with their own rules.
//
// The key implements a Caesar-like offset on top of the classical mapping:
// Encode adds it and Decode subtracts it, both modulo 10, so any integer
// (including negative values) is a valid key and only key mod 10 matters.
//
// Two graphemes of the table, क्ष and ज्ञ, are conjuncts spanning three code
// points. By default the transcoder scans rune by rune, so these conjuncts are
// never matched as a whole and are transcoded as their individual letters.
// Transcoders created with WithClusterMatching match the longest grapheme
// first instead.
//
// All functions are pure and operate on immutable tables; they are safe for
// concurrent use.
package transcoder
