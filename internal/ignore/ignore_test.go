package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Match(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		path     string
		isDir    bool
		want     bool
	}{
		{"basename glob", []string{"*-draft.png"}, "a/b/cat-draft.png", false, true},
		{"basename glob miss", []string{"*-draft.png"}, "a/cat.png", false, false},
		{"case insensitive", []string{"thumbs.db"}, "x/Thumbs.db", false, true},
		{"question mark", []string{"img?.png"}, "img1.png", false, true},
		{"question mark needs one", []string{"img?.png"}, "img.png", false, false},
		{"char class", []string{"v[0-9].gif"}, "v3.gif", false, true},
		{"negated class", []string{"v[!0-9].gif"}, "v3.gif", false, false},
		{"dir only matches dir", []string{"drafts/"}, "drafts", true, true},
		{"dir only skips file", []string{"drafts/"}, "drafts", false, false},
		{"dir only covers children", []string{"drafts/"}, "a/drafts/x.png", false, true},
		{"rooted", []string{"/raw"}, "raw/x.png", false, true},
		{"rooted only at root", []string{"/raw"}, "a/raw/x.png", false, false},
		{"inner slash is rooted", []string{"raw/old"}, "raw/old/x.png", false, true},
		{"inner slash not floating", []string{"raw/old"}, "a/raw/old/x.png", false, false},
		{"double star prefix", []string{"**/private/**"}, "a/b/private/x.png", false, true},
		{"double star suffix", []string{"private/**"}, "private/x/y.png", false, true},
		{"double star middle", []string{"a/**/z.png"}, "a/b/c/z.png", false, true},
		{"negation", []string{"*.gif", "!keep.gif"}, "keep.gif", false, false},
		{"later rule wins", []string{"!keep.gif", "*.gif"}, "keep.gif", false, true},
		{"comment", []string{"# *.png"}, "a.png", false, false},
		{"escaped hash", []string{`\#1.png`}, "#1.png", false, true},
		{"escaped bang", []string{`\!x.png`}, "!x.png", false, true},
		{"dot is literal", []string{"a.png"}, "abpng", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.patterns...)
			assert.Equal(t, tt.want, m.Match(tt.path, tt.isDir))
		})
	}
}

func TestMatcher_ScopedToBase(t *testing.T) {
	m := New()
	m.Add("*.gif", "album")

	assert.True(t, m.Match("album/x.gif", false))
	assert.True(t, m.Match("album/sub/x.gif", false))
	assert.False(t, m.Match("x.gif", false))
	assert.False(t, m.Match("other/x.gif", false))
	assert.False(t, m.Match("album", true))
}

func TestMatcher_SkipsBlankAndComments(t *testing.T) {
	m := New("", "   ", "# note", "/", "*.png")
	assert.Equal(t, 1, m.Len())
}

func TestMatcher_LoadDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "album")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, FileName), []byte("# drafts\n*-draft.png\nscans/\n"), 0o644))

	m := New()
	loaded, err := m.LoadDir(dir, "")
	require.NoError(t, err)
	assert.False(t, loaded)

	loaded, err = m.LoadDir(sub, "album")
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, 2, m.Len())

	assert.True(t, m.Match("album/cat-draft.png", false))
	assert.True(t, m.Match("album/scans/a.png", false))
	assert.False(t, m.Match("cat-draft.png", false))
}

func TestMatcher_AddFileMissing(t *testing.T) {
	err := New().AddFile(filepath.Join(t.TempDir(), FileName), "")
	assert.Error(t, err)
}

func TestChain(t *testing.T) {
	assert.Equal(t, []string{""}, Chain("x.png"))
	assert.Equal(t, []string{"", "a", "a/b"}, Chain("a/b/c.png"))
	assert.Equal(t, []string{"", "a"}, Chain("/a/c.png/"))
}
