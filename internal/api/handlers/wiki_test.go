package handlers_test

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hugh/taskeasy/internal/api/dto"
	"github.com/hugh/taskeasy/internal/database/models"
	"github.com/hugh/taskeasy/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createPage(t *testing.T, env *testEnv, body map[string]interface{}) models.WikiPage {
	t.Helper()
	rr := env.do(t, http.MethodPost, env.path("/wiki"), body, env.Token)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	var p models.WikiPage
	testutil.ParseJSONResponse(t, rr, &p)
	return p
}

func storedPage(t *testing.T, env *testEnv, id string) models.WikiPage {
	t.Helper()
	var p models.WikiPage
	require.NoError(t, env.DB.First(&p, "id = ?", id).Error)
	return p
}

func (e *testEnv) readBlob(t *testing.T, key string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.store.Root(), filepath.FromSlash(key)))
	require.NoError(t, err)
	return string(data)
}

func TestWikiHandler_CreatePublishesSanitizedHTML(t *testing.T) {
	env := newTestEnv(t)

	p := createPage(t, env, map[string]interface{}{
		"title":   "Getting Started",
		"content": "Some **bold** text\n\n<script>alert(1)</script>",
	})
	assert.Equal(t, "getting-started", p.Slug)
	assert.True(t, strings.HasPrefix(p.HTMLURL, "/uploads/wiki/"+env.Project.ID.String()+"/"+p.ID.String()+"/"), p.HTMLURL)

	stored := storedPage(t, env, p.ID.String())
	html := env.readBlob(t, stored.HTMLKey)
	assert.Contains(t, html, "<title>Getting Started</title>")
	assert.Contains(t, html, "<strong>bold</strong>")
	assert.NotContains(t, html, "<script>")
}

func TestWikiHandler_UniqueSlugs(t *testing.T) {
	env := newTestEnv(t)

	first := createPage(t, env, map[string]interface{}{"title": "Notes"})
	second := createPage(t, env, map[string]interface{}{"title": "Notes"})
	third := createPage(t, env, map[string]interface{}{"title": "Other", "slug": "notes"})

	assert.Equal(t, "notes", first.Slug)
	assert.Equal(t, "notes-2", second.Slug)
	assert.Equal(t, "notes-3", third.Slug)

	var list page[models.WikiPage]
	rr := env.do(t, http.MethodGet, env.path("/wiki?slug=notes-2"), nil, env.Token)
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.ParseJSONResponse(t, rr, &list)
	require.Len(t, list.Data, 1)
	assert.Equal(t, second.ID, list.Data[0].ID)
}

func TestWikiHandler_UpdateRepublishes(t *testing.T) {
	env := newTestEnv(t)
	p := createPage(t, env, map[string]interface{}{"title": "Runbook", "content": "v1"})
	oldKey := storedPage(t, env, p.ID.String()).HTMLKey

	rr := env.do(t, http.MethodPut, env.path("/wiki/"+p.ID.String()), map[string]string{"content": "# Version two"}, env.Token)
	testutil.AssertStatus(t, rr, http.StatusOK)

	newKey := storedPage(t, env, p.ID.String()).HTMLKey
	assert.NotEqual(t, oldKey, newKey)
	assert.False(t, env.blobExists(oldKey))
	assert.Contains(t, env.readBlob(t, newKey), "Version two")
}

func TestWikiHandler_Parents(t *testing.T) {
	env := newTestEnv(t)
	root := createPage(t, env, map[string]interface{}{"title": "Root"})
	child := createPage(t, env, map[string]interface{}{"title": "Child", "parentId": root.ID.String()})
	require.NotNil(t, child.ParentID)

	var list page[models.WikiPage]
	rr := env.do(t, http.MethodGet, env.path("/wiki?parentId=none"), nil, env.Token)
	testutil.ParseJSONResponse(t, rr, &list)
	require.Len(t, list.Data, 1)
	assert.Equal(t, root.ID, list.Data[0].ID)

	// Moving root under its own child would create a cycle.
	rr = env.do(t, http.MethodPut, env.path("/wiki/"+root.ID.String()), map[string]string{"parentId": child.ID.String()}, env.Token)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)

	stranger, _ := env.Outsider(t)
	foreignProject := testutil.CreateTestProject(t, env.DB, stranger)
	foreign := models.WikiPage{ProjectID: foreignProject.ID, Title: "theirs", Slug: "theirs", CreatedBy: stranger.ID}
	require.NoError(t, env.DB.Create(&foreign).Error)

	rr = env.do(t, http.MethodPost, env.path("/wiki"), map[string]string{"title": "Sneaky", "parentId": foreign.ID.String()}, env.Token)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	var resp dto.ErrorResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.Equal(t, "Parent page not found", resp.Details["parentId"])
}

func TestWikiHandler_DeleteOrphansChildren(t *testing.T) {
	env := newTestEnv(t)
	root := createPage(t, env, map[string]interface{}{"title": "Root"})
	child := createPage(t, env, map[string]interface{}{"title": "Child", "parentId": root.ID.String()})
	rootKey := storedPage(t, env, root.ID.String()).HTMLKey

	rr := env.do(t, http.MethodDelete, env.path("/wiki/"+root.ID.String()), nil, env.Token)
	testutil.AssertStatus(t, rr, http.StatusOK)

	assert.False(t, env.blobExists(rootKey))
	assert.Nil(t, storedPage(t, env, child.ID.String()).ParentID)
	testutil.AssertStatus(t, env.do(t, http.MethodGet, env.path("/wiki/"+root.ID.String()), nil, env.Token), http.StatusNotFound)
}
