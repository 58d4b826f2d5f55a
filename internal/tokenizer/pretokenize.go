package tokenizer

import "unicode"

// contractions are matched before any other span class, in this order.
var contractions = []string{"'s", "'t", "'re", "'ve", "'m", "'ll", "'d"}

type spanClass int

const (
	classNone spanClass = iota
	classLetter
	classNumber
	classOther
)

func classify(r rune) spanClass {
	switch {
	case unicode.IsSpace(r):
		return classNone
	case unicode.IsLetter(r):
		return classLetter
	case unicode.IsNumber(r):
		return classNumber
	default:
		return classOther
	}
}

// segment splits text into the spans matched by the CLIP pre-tokenizer pattern
//
//	's|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+
//
// RE2 has no look-ahead, so the alternation is walked by hand. Every rune of
// the input lands in exactly one span.
func segment(text string) []string {
	rs := []rune(text)
	spans := make([]string, 0, len(rs)/3+1)

	for i := 0; i < len(rs); {
		if n := matchContraction(rs[i:]); n > 0 {
			spans = append(spans, string(rs[i:i+n]))
			i += n
			continue
		}

		// ` ?X+`: a single ASCII space may lead a letter, number or symbol run.
		head := i
		if rs[i] == ' ' && i+1 < len(rs) && classify(rs[i+1]) != classNone {
			head = i + 1
		}
		if cls := classify(rs[head]); cls != classNone {
			j := head + 1
			for j < len(rs) && classify(rs[j]) == cls {
				j++
			}
			spans = append(spans, string(rs[i:j]))
			i = j
			continue
		}

		// Whitespace run. `\s+(?!\S)` gives up the last rune when a word
		// follows so that rune can lead the next span; a lone rune before a
		// word falls through to `\s+`.
		j := i + 1
		for j < len(rs) && unicode.IsSpace(rs[j]) {
			j++
		}
		if j < len(rs) && j-i >= 2 {
			j--
		}
		spans = append(spans, string(rs[i:j]))
		i = j
	}
	return spans
}

func matchContraction(rs []rune) int {
	if len(rs) < 2 || rs[0] != '\'' {
		return 0
	}
	for _, c := range contractions {
		n := len(c)
		if len(rs) >= n && string(rs[:n]) == c {
			return n
		}
	}
	return 0
}
