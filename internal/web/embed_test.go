package web

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTemplates(t *testing.T) {
	tmpl, err := LoadTemplates()
	require.NoError(t, err)
	require.NotNil(t, tmpl.Lookup(WikiPage))

	var buf bytes.Buffer
	err = tmpl.ExecuteTemplate(&buf, WikiPage, map[string]string{"Title": "<b>Docs</b>", "Body": "plain"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "<title>&lt;b&gt;Docs&lt;/b&gt;</title>")
}
