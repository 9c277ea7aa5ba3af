package tenant_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/taskeasy/internal/database/models"
	"github.com/hugh/taskeasy/internal/tenant"
	"github.com/hugh/taskeasy/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resolved struct {
	scope *tenant.Scope
	err   error
	body  string
}

// serve routes req through a chi router so path params are populated.
func serve(t *testing.T, res *tenant.Resolver, caller uuid.UUID, req *http.Request) resolved {
	t.Helper()

	var out resolved
	h := func(w http.ResponseWriter, r *http.Request) {
		out.scope, out.err = res.Resolve(r, caller)
		b, _ := io.ReadAll(r.Body)
		out.body = string(b)
	}

	r := chi.NewRouter()
	r.Post("/projects/{projectId}/items", h)
	r.Post("/items", h)
	r.ServeHTTP(httptest.NewRecorder(), req)
	return out
}

func TestResolve(t *testing.T) {
	db := testutil.SetupTestDB(t)
	res := tenant.NewResolver(db)

	alice := testutil.CreateTestUser(t, db, "alice")
	bob := testutil.CreateTestUser(t, db, "bob")
	carol := testutil.CreateTestUser(t, db, "carol")
	project := testutil.CreateTestProject(t, db, alice, carol)
	pid := project.ID.String()

	t.Run("path parameter", func(t *testing.T) {
		got := serve(t, res, alice.ID, httptest.NewRequest(http.MethodPost, "/projects/"+pid+"/items", nil))
		require.NoError(t, got.err)
		assert.Equal(t, project.ID, got.scope.ProjectID())
		assert.Equal(t, alice.ID, got.scope.CallerID())
		assert.True(t, got.scope.IsCreator())
	})

	t.Run("member is allowed but is not creator", func(t *testing.T) {
		got := serve(t, res, carol.ID, httptest.NewRequest(http.MethodPost, "/projects/"+pid+"/items", nil))
		require.NoError(t, got.err)
		assert.False(t, got.scope.IsCreator())
	})

	t.Run("outsider is forbidden", func(t *testing.T) {
		got := serve(t, res, bob.ID, httptest.NewRequest(http.MethodPost, "/projects/"+pid+"/items", nil))
		assert.ErrorIs(t, got.err, tenant.ErrForbidden)
		assert.Nil(t, got.scope)
	})

	t.Run("header fallback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/items", nil)
		req.Header.Set("x-project-id", pid)
		got := serve(t, res, alice.ID, req)
		require.NoError(t, got.err)
		assert.Equal(t, project.ID, got.scope.ProjectID())
	})

	t.Run("query fallback", func(t *testing.T) {
		got := serve(t, res, alice.ID, httptest.NewRequest(http.MethodPost, "/items?projectId="+pid, nil))
		require.NoError(t, got.err)
		assert.Equal(t, project.ID, got.scope.ProjectID())
	})

	t.Run("body fallback keeps body readable", func(t *testing.T) {
		payload, _ := json.Marshal(map[string]string{"projectId": pid, "title": "x"})
		req := httptest.NewRequest(http.MethodPost, "/items", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		got := serve(t, res, alice.ID, req)
		require.NoError(t, got.err)
		assert.Equal(t, project.ID, got.scope.ProjectID())
		assert.JSONEq(t, string(payload), got.body)
	})

	t.Run("path wins over header", func(t *testing.T) {
		other := testutil.CreateTestProject(t, db, bob)
		req := httptest.NewRequest(http.MethodPost, "/projects/"+pid+"/items", nil)
		req.Header.Set("x-project-id", other.ID.String())
		got := serve(t, res, alice.ID, req)
		require.NoError(t, got.err)
		assert.Equal(t, project.ID, got.scope.ProjectID())
	})

	t.Run("missing id", func(t *testing.T) {
		got := serve(t, res, alice.ID, httptest.NewRequest(http.MethodPost, "/items", nil))
		assert.ErrorIs(t, got.err, tenant.ErrMissingProjectID)
	})

	t.Run("malformed id", func(t *testing.T) {
		got := serve(t, res, alice.ID, httptest.NewRequest(http.MethodPost, "/projects/not-an-id/items", nil))
		assert.ErrorIs(t, got.err, tenant.ErrInvalidProjectID)
	})

	t.Run("numeric body id is invalid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/items", bytes.NewBufferString(`{"projectId": 42}`))
		req.Header.Set("Content-Type", "application/json")
		got := serve(t, res, alice.ID, req)
		assert.ErrorIs(t, got.err, tenant.ErrInvalidProjectID)
	})

	t.Run("unknown project", func(t *testing.T) {
		got := serve(t, res, alice.ID, httptest.NewRequest(http.MethodPost, "/projects/"+uuid.NewString()+"/items", nil))
		assert.ErrorIs(t, got.err, tenant.ErrProjectNotFound)
	})

	t.Run("no caller", func(t *testing.T) {
		got := serve(t, res, uuid.Nil, httptest.NewRequest(http.MethodPost, "/projects/"+pid+"/items", nil))
		assert.ErrorIs(t, got.err, tenant.ErrUnauthenticated)
	})
}

func TestScope_Where(t *testing.T) {
	db := testutil.SetupTestDB(t)
	alice := testutil.CreateTestUser(t, db, "alice")
	mine := testutil.CreateTestProject(t, db, alice)
	theirs := testutil.CreateTestProject(t, db, testutil.CreateTestUser(t, db, "bob"))

	testutil.CreateTestWorkItem(t, db, mine, "mine")
	testutil.CreateTestWorkItem(t, db, theirs, "theirs")

	got := serve(t, tenant.NewResolver(db), alice.ID,
		httptest.NewRequest(http.MethodPost, "/projects/"+mine.ID.String()+"/items", nil))
	require.NoError(t, got.err)

	var items []models.WorkItem
	require.NoError(t, got.scope.Where(db).Find(&items).Error)
	require.Len(t, items, 1)
	assert.Equal(t, "mine", items[0].Title)
}

func TestStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, tenant.Status(tenant.ErrUnauthenticated))
	assert.Equal(t, http.StatusBadRequest, tenant.Status(tenant.ErrMissingProjectID))
	assert.Equal(t, http.StatusBadRequest, tenant.Status(tenant.ErrInvalidProjectID))
	assert.Equal(t, http.StatusNotFound, tenant.Status(tenant.ErrProjectNotFound))
	assert.Equal(t, http.StatusForbidden, tenant.Status(tenant.ErrForbidden))
	assert.Equal(t, http.StatusForbidden, tenant.Status(tenant.ErrNotCreator))
	assert.Equal(t, http.StatusInternalServerError, tenant.Status(assert.AnError))
}

func TestContextRoundTrip(t *testing.T) {
	assert.Nil(t, tenant.FromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
