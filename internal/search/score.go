package search

import (
	"math"
	"strings"
)

// Cosine returns the cosine similarity of a and b. It is 0 when the lengths
// differ or either vector has zero norm.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	// One square root keeps Cosine(v, v) exactly 1: sqrt(x*x) == x in
	// IEEE arithmetic, while sqrt(x)*sqrt(x) may round below x.
	c := dot / math.Sqrt(na*nb)
	return max(-1, min(1, c))
}

// lexicalMatcher scores OCR text against one query.
type lexicalMatcher struct {
	folded string
	tokens map[string]struct{}
	exact  float64
	token  float64
}

func newLexicalMatcher(query string, exact, token float64) *lexicalMatcher {
	folded := strings.ToLower(strings.TrimSpace(query))
	tokens := make(map[string]struct{})
	for _, t := range strings.Fields(folded) {
		tokens[t] = struct{}{}
	}
	return &lexicalMatcher{folded: folded, tokens: tokens, exact: exact, token: token}
}

// Score returns exact when the query is a substring of the text, token when
// any whitespace token of the query equals a token of the text, else 0.
func (m *lexicalMatcher) Score(ocrText string) float64 {
	if ocrText == "" || m.folded == "" {
		return 0
	}
	text := strings.ToLower(ocrText)
	if strings.Contains(text, m.folded) {
		return m.exact
	}
	for _, t := range strings.Fields(text) {
		if _, ok := m.tokens[t]; ok {
			return m.token
		}
	}
	return 0
}

// Lexical scores text against query with the default constants.
func Lexical(query, ocrText string) float64 {
	d := DefaultConfig()
	return newLexicalMatcher(query, d.ExactScore, d.TokenScore).Score(ocrText)
}
