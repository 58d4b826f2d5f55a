package mcp

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/memesearch/internal/search"
)

// ocrPreviewLimit caps the recognized text shown per result.
const ocrPreviewLimit = 160

// FormatSearchResults renders results as markdown for clients that only
// read text content.
func FormatSearchResults(query string, results []ImageResult, syncing bool) string {
	var sb strings.Builder
	if syncing {
		sb.WriteString("> A sync is in progress; results may be incomplete.\n\n")
	}

	if len(results) == 0 {
		fmt.Fprintf(&sb, "No images found for \"%s\"", query)
		return sb.String()
	}

	fmt.Fprintf(&sb, "## Images matching \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d image", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		fmt.Fprintf(&sb, "%d. **%s** (score %.3f)\n", i+1, filepath.Base(r.Path), r.Score)
		fmt.Fprintf(&sb, "   `%s`\n", r.Path)
		if r.OCRPreview != "" {
			fmt.Fprintf(&sb, "   Text: %s\n", truncate(r.OCRPreview, ocrPreviewLimit))
		}
		fmt.Fprintf(&sb, "   Match: %s\n", matchReason(r))
	}
	return sb.String()
}

// ToImageResult converts a search result to its MCP form.
func ToImageResult(r search.Result) ImageResult {
	return ImageResult{
		Path:         r.Path,
		Score:        r.Score,
		Semantic:     r.Semantic,
		Lexical:      r.Lexical,
		OCRPreview:   r.OCRPreview,
		MIMEType:     MimeTypeForPath(r.Path),
		ThumbnailURI: ThumbnailURI(r.Path),
	}
}

// matchReason explains which signal carried the result.
func matchReason(r ImageResult) string {
	switch {
	case r.Lexical >= 1:
		return "image text contains the query"
	case r.Lexical > 0 && r.Semantic > 0:
		return "visual similarity and matching words in the image text"
	case r.Lexical > 0:
		return "matching words in the image text"
	default:
		return "visual similarity"
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

// clampLimit returns defaultVal for non-positive limits and clamps the rest
// to [min, max].
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
