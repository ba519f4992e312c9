package docstore

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"

	"boardsync/domain"
)

// The document travels as UTF-8 text wrapped in base64. Decoding must go
// base64 -> raw bytes -> UTF-8 text before JSON parsing; treating the base64
// output as text directly corrupts multi-byte characters. EncodeTransport
// and DecodeTransport are exact inverses of each other.

const transportLineWidth = 60

// EncodeTransport wraps UTF-8 content in newline-folded base64, the shape
// the GitHub contents API produces.
func EncodeTransport(content []byte) string {
	raw := base64.StdEncoding.EncodeToString(content)
	var b strings.Builder
	b.Grow(len(raw) + len(raw)/transportLineWidth + 1)
	for len(raw) > transportLineWidth {
		b.WriteString(raw[:transportLineWidth])
		b.WriteByte('\n')
		raw = raw[transportLineWidth:]
	}
	b.WriteString(raw)
	b.WriteByte('\n')
	return b.String()
}

// DecodeTransport unwraps newline-folded base64 into raw bytes and verifies
// they are valid UTF-8.
func DecodeTransport(wrapped string) ([]byte, error) {
	stripped := strings.ReplaceAll(wrapped, "\n", "")
	content, err := base64.StdEncoding.DecodeString(stripped)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %v: %w", err, domain.ErrParse)
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("document is not valid UTF-8: %w", domain.ErrParse)
	}
	return content, nil
}

func parseDocument(content []byte) (*domain.Document, error) {
	var doc domain.Document
	if err := sonic.ConfigStd.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("document json: %v: %w", err, domain.ErrParse)
	}
	return &doc, nil
}

// MarshalDocument renders the document as indented JSON, matching the
// formatting the board has always committed.
func MarshalDocument(doc *domain.Document) ([]byte, error) {
	return sonic.ConfigStd.MarshalIndent(doc, "", "  ")
}
