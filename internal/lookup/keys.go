package lookup

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nao1215/harvest/internal/model"
)

// LoadKeys reads the references bank at path. See ReadKeys for the format.
func LoadKeys(path string) ([]model.LookupKey, error) {
	f, err := os.Open(path) //nolint:gosec // path is user supplied by design of the CLI
	if err != nil {
		return nil, fmt.Errorf("failed to open references bank: %w", err)
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // read-only file
	}()
	return ReadKeys(f)
}

// ReadKeys decodes a references bank into ordered lookup keys.
//
// Two layouts are accepted:
//
//	[{"hash": "...", "citation": "..."}, ...]
//	{"<hash>": {"References": ["...", ...]}, ...}
//
// The second is the layout written by the extraction stage; its order is
// the order of the file. Empty citations are dropped.
func ReadKeys(r io.Reader) ([]model.LookupKey, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyBank, err)
	}

	dec := json.NewDecoder(br)
	switch first {
	case '[':
		var raw []model.LookupKey
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKeyBank, err)
		}
		keys := make([]model.LookupKey, 0, len(raw))
		for _, k := range raw {
			if strings.TrimSpace(k.Citation) == "" {
				continue
			}
			keys = append(keys, k)
		}
		return keys, nil
	case '{':
		return readBankObject(dec)
	default:
		return nil, fmt.Errorf("%w: unexpected %q", ErrInvalidKeyBank, first)
	}
}

// bankEntry is one listing in the extraction stage's bank layout.
type bankEntry struct {
	References []json.RawMessage `json:"References"`
}

func readBankObject(dec *json.Decoder) ([]model.LookupKey, error) {
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyBank, err)
	}

	keys := make([]model.LookupKey, 0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKeyBank, err)
		}
		hash, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: non-string key %v", ErrInvalidKeyBank, tok)
		}
		var entry bankEntry
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("%w: listing %s: %w", ErrInvalidKeyBank, hash, err)
		}
		for _, raw := range entry.References {
			citation := citationText(raw)
			if citation == "" {
				continue
			}
			keys = append(keys, model.LookupKey{ListingHash: hash, Citation: citation})
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyBank, err)
	}
	return keys, nil
}

// citationText returns a reference as text. Non-string references keep
// their JSON form.
func citationText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	return string(trimmed)
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case 0xEF:
			// UTF-8 byte order mark.
			if _, err := br.Discard(2); err != nil {
				return 0, err
			}
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}
