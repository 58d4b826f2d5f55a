// Package ocr extracts printed text from images. The text is stored next to
// the embedding and matched lexically at query time; its quality is the
// engine's business, this package only moves bytes in and a string out.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	merrors "github.com/Aman-CERP/memesearch/internal/errors"
)

// DefaultTimeout bounds one extraction.
const DefaultTimeout = 30 * time.Second

// Provider extracts text from an encoded image.
type Provider interface {
	// ExtractText returns the recognized text collapsed onto one line.
	// Empty means no text was found.
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// Noop never finds text. Used when OCR is disabled.
type Noop struct{}

// ExtractText always returns "".
func (Noop) ExtractText(context.Context, []byte) (string, error) { return "", nil }

// Func adapts a plain function to Provider.
type Func func(ctx context.Context, data []byte) (string, error)

// ExtractText calls f.
func (f Func) ExtractText(ctx context.Context, data []byte) (string, error) { return f(ctx, data) }

// Command runs an external OCR engine that reads the image on stdin and
// prints the text on stdout, e.g. `tesseract stdin stdout`.
type Command struct {
	Path    string
	Args    []string
	Timeout time.Duration
}

// NewCommand parses a command line such as "tesseract stdin stdout -l eng".
func NewCommand(cmdline string, timeout time.Duration) (*Command, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil, fmt.Errorf("ocr command is empty")
	}
	path, err := exec.LookPath(fields[0])
	if err != nil {
		return nil, fmt.Errorf("ocr engine %q not found: %w", fields[0], err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Command{Path: path, Args: fields[1:], Timeout: timeout}, nil
}

// ExtractText pipes data through the engine.
func (c *Command) ExtractText(ctx context.Context, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return Clean(stdout.String()), nil
}

// Clean collapses all whitespace runs into single spaces and trims the ends.
func Clean(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Safe wraps p so failures degrade to empty text. The returned error is an
// OcrError for logging only; the text is always usable.
func Safe(ctx context.Context, p Provider, path string, data []byte) (string, error) {
	if p == nil {
		return "", nil
	}
	text, err := p.ExtractText(ctx, data)
	if err != nil {
		return "", merrors.OCR(path, err)
	}
	return Clean(text), nil
}
