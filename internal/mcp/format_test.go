package mcp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/memesearch/internal/search"
)

func TestFormatSearchResults_Empty(t *testing.T) {
	got := FormatSearchResults("nothing", nil, false)
	assert.Equal(t, `No images found for "nothing"`, got)
}

func TestFormatSearchResults_SyncBanner(t *testing.T) {
	got := FormatSearchResults("cat", nil, true)
	assert.True(t, strings.HasPrefix(got, "> A sync is in progress"))
}

func TestFormatSearchResults_Lists(t *testing.T) {
	results := []ImageResult{
		ToImageResult(search.Result{Path: "/m/drake.png", Score: 0.9, Semantic: 0.8, Lexical: 1, OCRPreview: "no\n\nyes"}),
		ToImageResult(search.Result{Path: "/m/cat.jpg", Score: 0.5, Semantic: 0.5}),
	}
	got := FormatSearchResults("drake", results, false)

	assert.Contains(t, got, `## Images matching "drake"`)
	assert.Contains(t, got, "Found 2 images")
	assert.Contains(t, got, "1. **drake.png** (score 0.900)")
	assert.Contains(t, got, "`/m/drake.png`")
	assert.Contains(t, got, "Text: no yes")
	assert.Contains(t, got, "image text contains the query")
	assert.Contains(t, got, "2. **cat.jpg**")
	assert.Contains(t, got, "Match: visual similarity\n")
}

func TestFormatSearchResults_Singular(t *testing.T) {
	got := FormatSearchResults("x", []ImageResult{{Path: "/a.png"}}, false)
	assert.Contains(t, got, "Found 1 image\n")
}

func TestMatchReason(t *testing.T) {
	assert.Equal(t, "matching words in the image text", matchReason(ImageResult{Lexical: 0.5}))
	assert.Equal(t, "visual similarity and matching words in the image text",
		matchReason(ImageResult{Lexical: 0.5, Semantic: 0.3}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 2))
	assert.Equal(t, "日本…", truncate("日本語テキスト", 2))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 10, clampLimit(0, 10, 1, 50))
	assert.Equal(t, 10, clampLimit(-1, 10, 1, 50))
	assert.Equal(t, 50, clampLimit(99, 10, 1, 50))
	assert.Equal(t, 3, clampLimit(3, 10, 1, 50))
	assert.Equal(t, 2, clampLimit(1, 10, 2, 50))
}

func TestMimeTypeForPath(t *testing.T) {
	tests := map[string]string{
		"/a/b.PNG": "image/png",
		"x.jpeg":   "image/jpeg",
		"x.jpg":    "image/jpeg",
		"x.gif":    "image/gif",
		"x.webp":   "image/webp",
		"x.bmp":    "image/bmp",
		"x.tif":    "image/tiff",
		"x.heic":   "application/octet-stream",
		"no-ext":   "application/octet-stream",
	}
	for path, want := range tests {
		assert.Equal(t, want, MimeTypeForPath(path), path)
	}
}
