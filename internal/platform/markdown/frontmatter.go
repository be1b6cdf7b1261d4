package markdown

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	fence      = "---\n"
	closeFence = "\n---\n"
)

// ErrNoFrontmatter is returned by Decode for documents that do not open with a fence.
var ErrNoFrontmatter = errors.New("document has no frontmatter")

// Render writes meta as a YAML header above body. meta is any yaml-taggable value; struct
// fields keep their declared order.
func Render(meta any, body string) ([]byte, error) {
	raw, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(fence)
	buf.Write(raw)
	buf.WriteString(fence)
	if !strings.HasPrefix(body, "\n") {
		buf.WriteByte('\n')
	}
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// Decode fills meta from the YAML header of content and returns the remaining body.
func Decode(content []byte, meta any) (string, error) {
	text := string(content)
	if !strings.HasPrefix(text, fence) {
		return text, ErrNoFrontmatter
	}
	rest := text[len(fence):]
	idx := strings.Index(rest, closeFence)
	if idx < 0 {
		return "", fmt.Errorf("frontmatter is not closed")
	}
	if err := yaml.Unmarshal([]byte(rest[:idx]), meta); err != nil {
		return "", fmt.Errorf("unmarshal frontmatter: %w", err)
	}
	return rest[idx+len(closeFence):], nil
}
