// Package wiki renders wiki pages from markdown to sanitized HTML.
package wiki

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"unicode"

	"github.com/hugh/taskeasy/internal/web"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

var (
	md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)
	policy = bluemonday.UGCPolicy()

	layouts = template.Must(web.LoadTemplates())
)

// Render converts markdown to HTML and strips anything unsafe.
func Render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return policy.Sanitize(buf.String()), nil
}

// Document wraps a rendered body as a standalone HTML file.
func Document(title, body string) ([]byte, error) {
	var buf bytes.Buffer
	err := layouts.ExecuteTemplate(&buf, web.WikiPage, struct {
		Title string
		Body  template.HTML
	}{
		Title: title,
		Body:  template.HTML(body),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Slugify turns a page title into a lowercase, dash separated slug.
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "page"
	}
	return slug
}
