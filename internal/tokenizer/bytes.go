package tokenizer

// byteEncoder is the GPT-2 bytes_to_unicode bijection. Printable Latin-1
// bytes map to themselves, the rest are shifted above U+0100 so every byte
// survives as a visible symbol.
var byteEncoder = buildByteEncoder()

func buildByteEncoder() [256]rune {
	var enc [256]rune
	printable := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}

	n := 0
	for b := 0; b < 256; b++ {
		if printable(b) {
			enc[b] = rune(b)
			continue
		}
		enc[b] = rune(256 + n)
		n++
	}
	return enc
}

// encodeBytes maps the UTF-8 bytes of s through byteEncoder.
func encodeBytes(s string) []string {
	out := make([]string, 0, len(s))
	for i := 0; i < len(s); i++ {
		out = append(out, string(byteEncoder[s[i]]))
	}
	return out
}

// decodeBytes inverts encodeBytes for a merged symbol. Used by Decode.
func decodeBytes(sym string) []byte {
	out := make([]byte, 0, len(sym))
	for _, r := range sym {
		if b, ok := byteDecoder[r]; ok {
			out = append(out, b)
		}
	}
	return out
}

var byteDecoder = func() map[rune]byte {
	m := make(map[rune]byte, 256)
	for b, r := range byteEncoder {
		m[r] = byte(b)
	}
	return m
}()
