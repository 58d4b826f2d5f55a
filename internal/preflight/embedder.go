package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/Aman-CERP/memesearch/internal/embed"
)

func (c *Checker) usesStatic() bool {
	kind := c.embedOpts.Provider
	if env := os.Getenv("MEMESEARCH_EMBEDDER"); env != "" {
		kind = embed.ProviderType(strings.ToLower(env))
	}
	return kind == embed.ProviderStatic
}

func (c *Checker) staticEmbedder() CheckResult {
	return CheckResult{
		Name:     "embedder",
		Status:   StatusWarn,
		Message:  "static embeddings (offline, no semantic ranking)",
		Details:  "Set embeddings.provider: http and start the CLIP server for semantic search",
		Required: true,
	}
}

// CheckTokenizer loads the CLIP tokenizer assets.
func (c *Checker) CheckTokenizer() CheckResult {
	result := CheckResult{
		Name:     "tokenizer",
		Required: true,
	}

	source := c.embedOpts.TokenizerPath
	if source == "" {
		source = c.embedOpts.VocabPath + ", " + c.embedOpts.MergesPath
	}
	result.Details = source

	tok, err := embed.LoadTokenizer(c.embedOpts)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d tokens", tok.VocabSize())
	return result
}

// CheckEmbedder opens the configured provider, which health-checks the
// inference server.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: true,
		Details:  c.embedOpts.Endpoint,
	}

	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	p, err := c.probe(ctx, c.embedOpts)
	if err != nil {
		result.Status = StatusFail
		result.Message = firstLine(err.Error())
		result.Details = "Start the CLIP inference server or run offline with MEMESEARCH_EMBEDDER=static"
		return result
	}
	defer func() { _ = p.Close() }()

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d dimensions)", p.ModelName(), p.Dimensions())
	if c.embedOpts.Dimensions > 0 && p.Dimensions() != c.embedOpts.Dimensions {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("server reports %d dimensions, config expects %d",
			p.Dimensions(), c.embedOpts.Dimensions)
	}
	return result
}

func lookPath(cmdline string) (string, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return "", fmt.Errorf("ocr command is empty")
	}
	path, err := exec.LookPath(fields[0])
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH", fields[0])
	}
	return absOrSelf(path), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
