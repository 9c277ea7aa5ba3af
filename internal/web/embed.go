// Package web holds the HTML layouts used for published documents.
package web

import (
	"embed"
	"html/template"
)

//go:embed templates
var TemplatesFS embed.FS

// WikiPage is the name of the standalone wiki document layout.
const WikiPage = "wiki_page.html"

// LoadTemplates parses every layout under templates/. Templates are keyed by
// file name.
func LoadTemplates() (*template.Template, error) {
	return template.ParseFS(TemplatesFS, "templates/*.html")
}
