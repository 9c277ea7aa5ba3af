package handlers_test

import (
	"net/http"
	"testing"

	"github.com/hugh/taskeasy/internal/api/handlers"
	"github.com/hugh/taskeasy/internal/database/models"
	"github.com/hugh/taskeasy/internal/testutil"
	"github.com/hugh/taskeasy/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createPipeline(t *testing.T, env *testEnv) handlers.PipelineResponse {
	t.Helper()
	body := map[string]interface{}{
		"name":       "build",
		"repository": "https://github.com/acme/app.git",
		"stages": []map[string]interface{}{
			{"name": "test", "commands": []string{"go test ./...", "  "}},
		},
		"variables": []map[string]interface{}{
			{"name": "GOFLAGS", "value": "-mod=mod"},
			{"name": "DEPLOY_TOKEN", "value": "s3cr3t", "secret": true},
		},
	}
	rr := env.do(t, http.MethodPost, env.path("/pipelines"), body, env.Token)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	var p handlers.PipelineResponse
	testutil.ParseJSONResponse(t, rr, &p)
	return p
}

func storedVariable(t *testing.T, env *testEnv, id, name string) models.PipelineVariable {
	t.Helper()
	var p models.Pipeline
	require.NoError(t, env.DB.First(&p, "id = ?", id).Error)
	for _, v := range p.Variables {
		if v.Name == name {
			return v
		}
	}
	t.Fatalf("variable %s not stored", name)
	return models.PipelineVariable{}
}

func TestPipelineHandler_CreateMasksSecrets(t *testing.T) {
	env := newTestEnv(t)
	p := createPipeline(t, env)

	assert.Equal(t, "main", p.Branch)
	assert.Equal(t, models.PipelineStatusIdle, p.Status)
	require.Len(t, p.Stages, 1)
	assert.Equal(t, []string{"go test ./..."}, p.Stages[0].Commands)

	require.Len(t, p.Variables, 2)
	assert.Equal(t, "-mod=mod", p.Variables[0].Value)
	assert.Equal(t, handlers.SecretMask, p.Variables[1].Value)
	assert.True(t, p.Variables[1].Secret)

	stored := storedVariable(t, env, p.ID.String(), "DEPLOY_TOKEN")
	assert.True(t, crypto.IsSealed(stored.Value))
	plain, err := env.encryptor.Open(stored.Value)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", plain)

	rr := env.do(t, http.MethodGet, env.path("/pipelines/detail/"+p.ID.String()), nil, env.Token)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.NotContains(t, rr.Body.String(), "s3cr3t")
	assert.NotContains(t, rr.Body.String(), stored.Value)
}

func TestPipelineHandler_UpdateKeepsMaskedSecret(t *testing.T) {
	env := newTestEnv(t)
	p := createPipeline(t, env)
	before := storedVariable(t, env, p.ID.String(), "DEPLOY_TOKEN")
	path := env.path("/pipelines/" + p.ID.String())

	// The client echoes back what it was given.
	rr := env.do(t, http.MethodPut, path, map[string]interface{}{"variables": p.Variables}, env.Token)
	testutil.AssertStatus(t, rr, http.StatusOK)
	after := storedVariable(t, env, p.ID.String(), "DEPLOY_TOKEN")
	assert.Equal(t, before.Value, after.Value)

	rr = env.do(t, http.MethodPut, path, map[string]interface{}{
		"variables": []map[string]interface{}{{"name": "NEW_SECRET", "value": handlers.SecretMask, "secret": true}},
	}, env.Token)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)

	rr = env.do(t, http.MethodPut, path, map[string]interface{}{
		"variables": []map[string]interface{}{{"name": "DEPLOY_TOKEN", "value": handlers.SecretMask}},
	}, env.Token)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)

	rr = env.do(t, http.MethodPut, path, map[string]interface{}{
		"variables": []map[string]interface{}{{"name": "DEPLOY_TOKEN", "value": "rotated", "secret": true}},
	}, env.Token)
	testutil.AssertStatus(t, rr, http.StatusOK)
	rotated := storedVariable(t, env, p.ID.String(), "DEPLOY_TOKEN")
	plain, err := env.encryptor.Open(rotated.Value)
	require.NoError(t, err)
	assert.Equal(t, "rotated", plain)
}

func TestPipelineHandler_UpdateStatus(t *testing.T) {
	env := newTestEnv(t)
	p := createPipeline(t, env)
	path := env.path("/pipelines/" + p.ID.String())

	var updated handlers.PipelineResponse
	rr := env.do(t, http.MethodPut, path, map[string]string{"status": "running"}, env.Token)
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.ParseJSONResponse(t, rr, &updated)
	assert.Equal(t, models.PipelineStatusRunning, updated.Status)
	assert.NotNil(t, updated.LastRunAt)

	rr = env.do(t, http.MethodPut, path, map[string]string{"status": "exploded"}, env.Token)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)

	var list page[handlers.PipelineResponse]
	rr = env.do(t, http.MethodGet, env.path("/pipelines?status=running"), nil, env.Token)
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.ParseJSONResponse(t, rr, &list)
	require.Len(t, list.Data, 1)

	rr = env.do(t, http.MethodGet, env.path("/pipelines?status=idle"), nil, env.Token)
	testutil.ParseJSONResponse(t, rr, &list)
	assert.Empty(t, list.Data)
}

func TestPipelineHandler_Validation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"bad repository", map[string]interface{}{"name": "x", "repository": "not a url"}},
		{"bad branch", map[string]interface{}{"name": "x", "branch": "feature..x"}},
		{"bad variable name", map[string]interface{}{"name": "x", "variables": []map[string]string{{"name": "1BAD", "value": "v"}}}},
		{"duplicate variable", map[string]interface{}{"name": "x", "variables": []map[string]string{{"name": "A", "value": "1"}, {"name": "A", "value": "2"}}}},
		{"empty secret", map[string]interface{}{"name": "x", "variables": []map[string]interface{}{{"name": "S", "value": "", "secret": true}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, env.path("/pipelines"), tc.body, env.Token)
			testutil.AssertStatus(t, rr, http.StatusBadRequest)
		})
	}
}

func TestPipelineHandler_Delete(t *testing.T) {
	env := newTestEnv(t)
	p := createPipeline(t, env)
	path := env.path("/pipelines/" + p.ID.String())

	testutil.AssertStatus(t, env.do(t, http.MethodDelete, path, nil, env.Token), http.StatusOK)
	testutil.AssertStatus(t, env.do(t, http.MethodDelete, path, nil, env.Token), http.StatusNotFound)
	testutil.AssertStatus(t, env.do(t, http.MethodGet, env.path("/pipelines/detail/"+p.ID.String()), nil, env.Token), http.StatusNotFound)
}
