package ops

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
)

// renderMarkdown converts markdown comment text to the HTML the tracking
// API's comment endpoint expects. Plain text passes through wrapped in a
// paragraph.
func renderMarkdown(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
