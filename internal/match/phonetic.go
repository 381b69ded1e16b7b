package match

import "unicode"

// soundexClass maps consonants to their Soundex digit class. Vowels, 'h',
// 'w', 'y', digits, underscores, and spaces have no class and contribute
// nothing to the code.
var soundexClass = map[rune]rune{
	'b': '1', 'f': '1', 'p': '1', 'v': '1',
	'c': '2', 'g': '2', 'j': '2', 'k': '2', 'q': '2', 's': '2', 'x': '2', 'z': '2',
	'd': '3', 't': '3',
	'l': '4',
	'm': '5', 'n': '5',
	'r': '6',
}

// PhoneticCode computes a simplified Soundex code for s: the first character
// uppercased as-is, then one digit per classed consonant with consecutive
// duplicate digits collapsed, right-padded with '0' and truncated to exactly
// four characters. The empty string encodes to "0000".
//
// Unlike textbook Soundex the code is computed over the whole normalized
// name, so multi-word names get a single whole-string code; two names are
// phonetically equal only when these whole-string codes are identical.
//
// This is deliberately hand-rolled rather than delegated to
// [github.com/antzucaro/matchr.Soundex], whose vowel-separation and H/W
// rules produce different codes for the transcription errors this engine
// needs to absorb.
func PhoneticCode(s string) string {
	norm := []rune(Normalize(s))
	if len(norm) == 0 {
		return "0000"
	}

	code := make([]rune, 0, 4)
	code = append(code, unicode.ToUpper(norm[0]))

	for _, r := range norm[1:] {
		if len(code) == 4 {
			break
		}
		d, ok := soundexClass[r]
		if !ok {
			continue
		}
		if d == code[len(code)-1] {
			continue
		}
		code = append(code, d)
	}
	for len(code) < 4 {
		code = append(code, '0')
	}
	return string(code)
}
