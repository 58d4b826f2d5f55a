package tokenizer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	merrors "github.com/Aman-CERP/memesearch/internal/errors"
)

// Load reads a vocab.json (token -> id object) and merges.txt (one "a b"
// pair per line, rank by order; blank, comment and malformed lines skipped).
func Load(vocabPath, mergesPath string) (*Tokenizer, error) {
	vocab, err := loadVocab(vocabPath)
	if err != nil {
		return nil, err
	}
	merges, err := loadMerges(mergesPath)
	if err != nil {
		return nil, err
	}
	tok, err := New(vocab, merges)
	if err != nil {
		return nil, fmt.Errorf("tokenizer from %s: %w", vocabPath, err)
	}
	return tok, nil
}

// hfTokenizer is the subset of a HuggingFace tokenizer.json we need.
type hfTokenizer struct {
	Model struct {
		Vocab  map[string]int64  `json:"vocab"`
		Merges []json.RawMessage `json:"merges"`
	} `json:"model"`
}

// LoadJSON reads a HuggingFace tokenizer.json. Merges may be encoded either
// as "a b" strings or as ["a", "b"] arrays.
func LoadJSON(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, merrors.AssetLoad(path, err)
	}

	var doc hfTokenizer
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, merrors.AssetLoad(path, fmt.Errorf("invalid tokenizer json: %w", err))
	}

	merges := make([][2]string, 0, len(doc.Model.Merges))
	for i, raw := range doc.Model.Merges {
		m, err := parseJSONMerge(raw)
		if err != nil {
			return nil, merrors.AssetLoad(path, fmt.Errorf("merge %d: %w", i, err))
		}
		merges = append(merges, m)
	}

	tok, err := New(doc.Model.Vocab, merges)
	if err != nil {
		return nil, merrors.AssetLoad(path, err)
	}
	return tok, nil
}

func parseJSONMerge(raw json.RawMessage) ([2]string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		parts := strings.Split(s, " ")
		if len(parts) != 2 {
			return [2]string{}, fmt.Errorf("expected two symbols, got %q", s)
		}
		return [2]string{parts[0], parts[1]}, nil
	}

	var arr []string
	if err := json.Unmarshal(raw, &arr); err != nil {
		return [2]string{}, fmt.Errorf("unsupported merge encoding: %s", string(raw))
	}
	if len(arr) != 2 {
		return [2]string{}, fmt.Errorf("expected two symbols, got %d", len(arr))
	}
	return [2]string{arr[0], arr[1]}, nil
}

func loadVocab(path string) (map[string]int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, merrors.AssetLoad(path, err)
	}
	var vocab map[string]int64
	if err := json.Unmarshal(data, &vocab); err != nil {
		return nil, merrors.AssetLoad(path, fmt.Errorf("invalid vocabulary json: %w", err))
	}
	if len(vocab) == 0 {
		return nil, merrors.AssetLoad(path, fmt.Errorf("vocabulary is empty"))
	}
	return vocab, nil
}

func loadMerges(path string) ([][2]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, merrors.AssetLoad(path, err)
	}
	defer f.Close()

	var merges [][2]string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, " ")
		if len(parts) != 2 {
			continue
		}
		merges = append(merges, [2]string{parts[0], parts[1]})
	}
	if err := sc.Err(); err != nil {
		return nil, merrors.AssetLoad(path, err)
	}
	if len(merges) == 0 {
		return nil, merrors.AssetLoad(path, fmt.Errorf("no merge rules found"))
	}
	return merges, nil
}
