package ocr

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	merrors "github.com/Aman-CERP/memesearch/internal/errors"
)

func TestClean(t *testing.T) {
	assert.Equal(t, "WHEN YOU code", Clean("WHEN\n YOU \t\tcode "))
	assert.Equal(t, "", Clean(" \n\t "))
}

func TestSafe_DegradesToEmpty(t *testing.T) {
	failing := Func(func(context.Context, []byte) (string, error) {
		return "partial", errors.New("engine crashed")
	})

	text, err := Safe(context.Background(), failing, "/m/a.png", []byte("x"))

	assert.Equal(t, "", text)
	require.Error(t, err)
	assert.Equal(t, merrors.ErrCodeOCRFailed, merrors.GetCode(err))
}

func TestSafe_CleansText(t *testing.T) {
	p := Func(func(context.Context, []byte) (string, error) { return "  one\ndoes not\n simply ", nil })

	text, err := Safe(context.Background(), p, "/m/a.png", nil)

	require.NoError(t, err)
	assert.Equal(t, "one does not simply", text)

	text, err = Safe(context.Background(), nil, "/m/a.png", nil)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestNoop(t *testing.T) {
	text, err := Noop{}.ExtractText(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestCommand_PipesStdin(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	c, err := NewCommand("cat", time.Second)
	require.NoError(t, err)

	text, err := c.ExtractText(context.Background(), []byte("hello\n  world\n"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestNewCommand_Errors(t *testing.T) {
	_, err := NewCommand("   ", 0)
	assert.Error(t, err)

	_, err = NewCommand("definitely-not-an-ocr-engine-xyz", 0)
	assert.Error(t, err)
}
