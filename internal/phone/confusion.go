package phone

import "strings"

// allowedChars is the alphabet a corrected candidate may consist of.
const allowedChars = "0123456789()-_"

// maxSubstitutions caps the confusion chain length. Two hops are needed for
// chains such as 's' -> 'S' -> '5'.
const maxSubstitutions = 2

// confusionTable maps a glyph to the single glyph it is most often misread
// as. The table is directional on purpose: 5 -> S and S -> 5 form a loop,
// s -> S does not have an inverse.
var confusionTable = map[rune]rune{
	's': 'S',
	'S': '5',
	'5': 'S',
	'o': 'O',
	'Q': 'O',
	'O': '0',
	'0': 'O',
	'l': 'I',
	'I': '1',
	'1': 'I',
	'B': '8',
	'8': 'B',
}

// Confusable returns the glyph r is commonly misread as, if any.
func Confusable(r rune) (rune, bool) {
	alt, ok := confusionTable[r]
	return alt, ok
}

// isAllowed reports whether r belongs to the candidate alphabet.
func isAllowed(r rune) bool {
	return strings.ContainsRune(allowedChars, r)
}

// resolve walks the confusion table for a character outside the allowed
// alphabet. It returns the final glyph and whether it is allowed.
func resolve(r rune) (rune, bool) {
	current := r
	for hops := 0; !isAllowed(current) && hops < maxSubstitutions; hops++ {
		alt, ok := confusionTable[current]
		if !ok {
			break
		}
		current = alt
	}
	return current, isAllowed(current)
}
