package handlers_test

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/taskeasy/internal/api/handlers"
	"github.com/hugh/taskeasy/internal/api/middleware"
	"github.com/hugh/taskeasy/internal/auth"
	"github.com/hugh/taskeasy/internal/storage"
	"github.com/hugh/taskeasy/internal/tasks"
	"github.com/hugh/taskeasy/internal/tenant"
	"github.com/hugh/taskeasy/internal/testutil"
	"github.com/hugh/taskeasy/pkg/crypto"
	"github.com/stretchr/testify/require"
)

const testMaxUpload = 1 << 20

// testEnv is a router with every project handler mounted behind Auth and
// Tenant, backed by an in-memory database and a temporary blob store.
type testEnv struct {
	*testutil.TestSetup
	router    *chi.Mux
	store     *storage.LocalStore
	encryptor *crypto.Encryptor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tc := testutil.NewTestContext(t)

	store, err := storage.NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)
	encryptor, err := crypto.NewEncryptor("")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	blobs := tasks.NewBlobCleaner(nil, store, logger)
	authService := auth.NewService(tc.DB, tc.JWTService)

	projects := handlers.NewProjectHandler(tc.DB, authService, store, blobs, testMaxUpload)
	items := handlers.NewWorkItemHandler(tc.DB, store, blobs, testMaxUpload)
	boards := handlers.NewBoardHandler(tc.DB)
	sprints := handlers.NewSprintHandler(tc.DB)
	plans := handlers.NewDeliveryPlanHandler(tc.DB)
	pipelines := handlers.NewPipelineHandler(tc.DB, encryptor)
	wiki := handlers.NewWikiHandler(tc.DB, store, blobs)

	r := chi.NewRouter()
	r.Use(middleware.Auth(tc.JWTService))
	r.Get("/projects", projects.List)
	r.Post("/projects", projects.Create)
	r.Route("/projects/{projectId}", func(r chi.Router) {
		r.Use(middleware.Tenant(tenant.NewResolver(tc.DB), logger))

		r.Get("/", projects.Get)
		r.Put("/", projects.Update)
		r.With(middleware.RequireCreator).Delete("/", projects.Delete)
		r.Post("/members", projects.AddMember)
		r.With(middleware.RequireCreator).Delete("/members/{userId}", projects.RemoveMember)

		r.Get("/workitems", items.List)
		r.Post("/workitems", items.Create)
		r.Post("/workitems/bulk-update", items.BulkUpdate)
		r.Get("/workitems/{itemId}", items.Get)
		r.Patch("/workitems/{itemId}", items.Update)
		r.Delete("/workitems/{itemId}", items.Delete)
		r.Post("/workitems/{itemId}/time", items.LogTime)
		r.Post("/workitems/{itemId}/attachments", items.AddAttachment)
		r.Delete("/workitems/{itemId}/attachments/{attachmentId}", items.DeleteAttachment)
		r.Get("/time-log-summary", items.TimeLogSummary)

		r.Get("/boards", boards.List)
		r.Post("/boards", boards.Create)
		r.Get("/boards/{boardId}", boards.Get)
		r.Patch("/boards/{boardId}", boards.Update)
		r.Delete("/boards/{boardId}", boards.Delete)

		r.Get("/sprints", sprints.List)
		r.Post("/sprints", sprints.Create)
		r.Get("/sprints/{sprintId}", sprints.Get)
		r.Patch("/sprints/{sprintId}", sprints.Update)
		r.Delete("/sprints/{sprintId}", sprints.Delete)

		r.Get("/delivery-plans", plans.List)
		r.Post("/delivery-plans", plans.Create)
		r.Get("/delivery-plans/{planId}", plans.Get)
		r.Patch("/delivery-plans/{planId}", plans.Update)
		r.Delete("/delivery-plans/{planId}", plans.Delete)

		r.Get("/pipelines", pipelines.List)
		r.Post("/pipelines", pipelines.Create)
		r.Get("/pipelines/detail/{pipelineId}", pipelines.Get)
		r.Put("/pipelines/{pipelineId}", pipelines.Update)
		r.Delete("/pipelines/{pipelineId}", pipelines.Delete)

		r.Get("/wiki", wiki.List)
		r.Post("/wiki", wiki.Create)
		r.Get("/wiki/{pageId}", wiki.Get)
		r.Put("/wiki/{pageId}", wiki.Update)
		r.Delete("/wiki/{pageId}", wiki.Delete)
	})

	return &testEnv{
		TestSetup: tc,
		router:    r,
		store:     store,
		encryptor: encryptor,
	}
}

// do sends a JSON request as the holder of token.
func (e *testEnv) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.AuthenticatedRequest(t, method, path, body, token)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// path returns a route under the test project.
func (e *testEnv) path(suffix string) string {
	return "/projects/" + e.Project.ID.String() + suffix
}

// blobExists reports whether key is present in the local store.
func (e *testEnv) blobExists(key string) bool {
	_, err := os.Stat(filepath.Join(e.store.Root(), filepath.FromSlash(key)))
	return err == nil
}

type page[T any] struct {
	Data  []T   `json:"data"`
	Total int64 `json:"total"`
}
