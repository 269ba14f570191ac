package clip

// The byte encoder maps each of the 256 byte values to a printable rune, so that any byte sequence can be
// written as a string of single-rune symbols before merges are applied.
//
// Bytes in the ranges '!'..'~', '¡'..'¬' and '®'..'ÿ' keep their own code point. The remaining 68 bytes
// (control characters, space, DEL, the C1 range, NBSP and soft hyphen) are mapped, in byte order, to
// U+0100 onwards.
//
// Symbol IDs follow rune order: the 188 printable bytes first, then the 68 remapped ones. The word-final
// variant of symbol i has ID i+numByteSymbols.

const (
	numByteSymbols = 256

	// wordBoundary is appended to the last symbol of every cluster.
	wordBoundary = "</w>"
)

var (
	// byteSymbols maps a raw byte to its base symbol ID.
	byteSymbols [256]int

	// symbolBytes maps a base symbol ID back to its raw byte.
	symbolBytes [numByteSymbols]byte

	// byteRunes maps a raw byte to the printable rune used to write it.
	byteRunes [256]rune

	// runeBytes is the inverse of byteRunes.
	runeBytes = make(map[rune]byte, 256)
)

func init() {
	id := 0
	for b := 0; b < 256; b++ {
		if keepsCodePoint(byte(b)) {
			byteSymbols[b] = id
			byteRunes[b] = rune(b)
			id++
		}
	}
	remapped := 0
	for b := 0; b < 256; b++ {
		if !keepsCodePoint(byte(b)) {
			byteSymbols[b] = id
			byteRunes[b] = rune(256 + remapped)
			id++
			remapped++
		}
	}
	for b := 0; b < 256; b++ {
		symbolBytes[byteSymbols[b]] = byte(b)
		runeBytes[byteRunes[b]] = byte(b)
	}
}

// keepsCodePoint reports whether b is written as the rune with the same value.
func keepsCodePoint(b byte) bool {
	return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE)
}

// EncodeByte returns the printable rune that stands for the byte b.
func EncodeByte(b byte) rune {
	return byteRunes[b]
}

// DecodeRune returns the byte a printable rune stands for, and false if r is not the image of any byte.
func DecodeRune(r rune) (byte, bool) {
	b, ok := runeBytes[r]
	return b, ok
}
