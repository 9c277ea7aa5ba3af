package wiki_test

import (
	"testing"

	"github.com/hugh/taskeasy/internal/wiki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	t.Run("markdown basics", func(t *testing.T) {
		out, err := wiki.Render("# Release notes\n\nSome **bold** and ~~old~~ text.")
		require.NoError(t, err)
		assert.Contains(t, out, "Release notes</h1>")
		assert.Contains(t, out, "<strong>bold</strong>")
		assert.Contains(t, out, "<del>old</del>")
	})

	t.Run("tables", func(t *testing.T) {
		out, err := wiki.Render("| a | b |\n|---|---|\n| 1 | 2 |\n")
		require.NoError(t, err)
		assert.Contains(t, out, "<table>")
		assert.Contains(t, out, "<td>1</td>")
	})

	t.Run("links get nofollow", func(t *testing.T) {
		out, err := wiki.Render("[docs](https://example.com/docs)")
		require.NoError(t, err)
		assert.Contains(t, out, `href="https://example.com/docs"`)
		assert.Contains(t, out, `nofollow`)
	})

	t.Run("strips scripts and handlers", func(t *testing.T) {
		out, err := wiki.Render("hello\n\n<script>alert('xss')</script>\n\n<img src=x onerror=alert(1)>")
		require.NoError(t, err)
		assert.Contains(t, out, "hello")
		assert.NotContains(t, out, "<script")
		assert.NotContains(t, out, "onerror")
	})

	t.Run("strips javascript urls", func(t *testing.T) {
		out, err := wiki.Render("[click](javascript:alert(1))")
		require.NoError(t, err)
		assert.NotContains(t, out, "javascript:")
	})

	t.Run("empty", func(t *testing.T) {
		out, err := wiki.Render("")
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestDocument(t *testing.T) {
	doc, err := wiki.Document(`Tom & "Jerry"`, "<p>body</p>")
	require.NoError(t, err)

	s := string(doc)
	assert.Contains(t, s, "<!DOCTYPE html>")
	assert.Contains(t, s, "<title>Tom &amp; &#34;Jerry&#34;</title>")
	assert.Contains(t, s, "<p>body</p>")
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Getting Started":       "getting-started",
		"  API -- v2 / Notes  ": "api-v2-notes",
		"!!!":                   "page",
		"Café 2026":             "café-2026",
	}
	for in, want := range tests {
		assert.Equal(t, want, wiki.Slugify(in), in)
	}
}
