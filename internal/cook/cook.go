package cook

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer turns raw message content into its display form.
type Renderer struct {
	md goldmark.Markdown
}

func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Strikethrough),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

// Cook renders raw markdown to HTML.
func (r *Renderer) Cook(raw string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(raw), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

var (
	tagPattern     = regexp.MustCompile(`<[^>]*>`)
	spacePattern   = regexp.MustCompile(`\s+`)
	mentionPattern = regexp.MustCompile(`(?:^|\s)@([a-zA-Z0-9_.-]+)`)
)

// Excerpt derives a plain-text preview from cooked content, truncated to
// maxLen runes on a rune boundary.
func Excerpt(cooked string, maxLen int) string {
	text := tagPattern.ReplaceAllString(cooked, " ")
	text = strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxLen])) + "…"
}

// Mentions extracts @handles from raw content, deduplicated in order of
// first appearance.
func Mentions(raw string) []string {
	matches := mentionPattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var handles []string
	for _, m := range matches {
		handle := m[1]
		if !seen[handle] {
			seen[handle] = true
			handles = append(handles, handle)
		}
	}
	return handles
}
