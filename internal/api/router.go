package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hugh/taskeasy/internal/api/handlers"
	"github.com/hugh/taskeasy/internal/api/middleware"
	"github.com/hugh/taskeasy/internal/auth"
	"github.com/hugh/taskeasy/internal/storage"
	"github.com/hugh/taskeasy/internal/tenant"
	"github.com/hugh/taskeasy/pkg/crypto"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// BasePath prefixes every API route.
const BasePath = "/api"

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB             *gorm.DB
	Redis          *redis.Client
	Logger         *slog.Logger
	JWTService     *auth.JWTService
	AuthService    *auth.Service
	Store          storage.Store
	Blobs          handlers.BlobRemover
	Encryptor      *crypto.Encryptor
	AllowedOrigins []string // CORS allowed origins
	RateLimitReqs  int      // Rate limit requests per window
	RateLimitSecs  int      // Rate limit window in seconds
	ImportKey      string   // shared secret for POST /auth/import; empty disables it
	MaxUpload      int64    // largest accepted upload in bytes
}

// scopedHandlers are the routers whose every query is constrained by the
// resolved project.
type scopedHandlers struct {
	workItems *handlers.WorkItemHandler
	boards    *handlers.BoardHandler
	sprints   *handlers.SprintHandler
	plans     *handlers.DeliveryPlanHandler
	pipelines *handlers.PipelineHandler
	wiki      *handlers.WikiHandler
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	// CORS - restrict to configured origins
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", tenant.HeaderName, handlers.ImportKeyHeader},
		ExposedHeaders: []string{
			middleware.RequestIDHeader,
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
		},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	resolver := tenant.NewResolver(cfg.DB)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService, cfg.ImportKey)
	projectHandler := handlers.NewProjectHandler(cfg.DB, cfg.AuthService, cfg.Store, cfg.Blobs, cfg.MaxUpload)
	scoped := scopedHandlers{
		workItems: handlers.NewWorkItemHandler(cfg.DB, cfg.Store, cfg.Blobs, cfg.MaxUpload),
		boards:    handlers.NewBoardHandler(cfg.DB),
		sprints:   handlers.NewSprintHandler(cfg.DB),
		plans:     handlers.NewDeliveryPlanHandler(cfg.DB),
		pipelines: handlers.NewPipelineHandler(cfg.DB, cfg.Encryptor),
		wiki:      handlers.NewWikiHandler(cfg.DB, cfg.Store, cfg.Blobs),
	}

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Route(BasePath, func(r chi.Router) {
		// Public auth endpoints, limited per client IP
		r.Group(func(r chi.Router) {
			if cfg.RateLimitReqs > 0 {
				r.Use(middleware.RateLimit(cfg.RateLimitReqs, cfg.RateLimitSecs))
			}
			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/import", authHandler.Import)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTService))
			if cfg.RateLimitReqs > 0 {
				r.Use(middleware.RateLimitByUser(cfg.RateLimitReqs, cfg.RateLimitSecs))
			}

			r.Get("/me", authHandler.Me)
			r.Patch("/me", authHandler.UpdateMe)

			r.Get("/projects", projectHandler.List)
			r.Post("/projects", projectHandler.Create)

			r.Route("/projects/{"+tenant.ParamName+"}", func(r chi.Router) {
				r.Use(middleware.Tenant(resolver, cfg.Logger))

				r.Get("/", projectHandler.Get)
				r.Put("/", projectHandler.Update)
				r.With(middleware.RequireCreator).Delete("/", projectHandler.Delete)
				r.Post("/members", projectHandler.AddMember)
				r.With(middleware.RequireCreator).Delete("/members/{userId}", projectHandler.RemoveMember)

				scoped.mount(r)
			})

			// The same routers without the path parameter; the project
			// comes from the X-Project-ID header, ?projectId or the body.
			r.Group(func(r chi.Router) {
				r.Use(middleware.Tenant(resolver, cfg.Logger))
				scoped.mount(r)
			})
		})
	})

	// Uploaded blobs on local disk
	if local, ok := cfg.Store.(*storage.LocalStore); ok {
		public := "/" + strings.Trim(local.PublicPath(), "/")
		fileServer := http.FileServer(http.Dir(local.Root()))
		// Wiki documents are sanitized on publish and may render inline.
		blobs := middleware.BlobHeaders(handlers.WikiBlobPrefix)(fileServer)
		r.Handle(public+"/*", http.StripPrefix(public+"/", blobs))
	}

	return &Router{r}
}

func (h scopedHandlers) mount(r chi.Router) {
	r.Route("/workitems", func(r chi.Router) {
		r.Get("/", h.workItems.List)
		r.Post("/", h.workItems.Create)
		r.Post("/bulk-update", h.workItems.BulkUpdate)
		r.Get("/{itemId}", h.workItems.Get)
		r.Patch("/{itemId}", h.workItems.Update)
		r.Delete("/{itemId}", h.workItems.Delete)
		r.Post("/{itemId}/time", h.workItems.LogTime)
		r.Post("/{itemId}/attachments", h.workItems.AddAttachment)
		r.Delete("/{itemId}/attachments/{attachmentId}", h.workItems.DeleteAttachment)
	})
	r.Get("/time-log-summary", h.workItems.TimeLogSummary)

	r.Route("/boards", func(r chi.Router) {
		r.Get("/", h.boards.List)
		r.Post("/", h.boards.Create)
		r.Get("/{boardId}", h.boards.Get)
		r.Patch("/{boardId}", h.boards.Update)
		r.Delete("/{boardId}", h.boards.Delete)
	})

	r.Route("/sprints", func(r chi.Router) {
		r.Get("/", h.sprints.List)
		r.Post("/", h.sprints.Create)
		r.Get("/{sprintId}", h.sprints.Get)
		r.Patch("/{sprintId}", h.sprints.Update)
		r.Delete("/{sprintId}", h.sprints.Delete)
	})

	r.Route("/delivery-plans", func(r chi.Router) {
		r.Get("/", h.plans.List)
		r.Post("/", h.plans.Create)
		r.Get("/{planId}", h.plans.Get)
		r.Patch("/{planId}", h.plans.Update)
		r.Delete("/{planId}", h.plans.Delete)
	})

	r.Route("/pipelines", func(r chi.Router) {
		r.Get("/", h.pipelines.List)
		r.Post("/", h.pipelines.Create)
		r.Get("/detail/{pipelineId}", h.pipelines.Get)
		r.Put("/{pipelineId}", h.pipelines.Update)
		r.Delete("/{pipelineId}", h.pipelines.Delete)
	})

	r.Route("/wiki", func(r chi.Router) {
		r.Get("/", h.wiki.List)
		r.Post("/", h.wiki.Create)
		r.Get("/{pageId}", h.wiki.Get)
		r.Put("/{pageId}", h.wiki.Update)
		r.Delete("/{pageId}", h.wiki.Delete)
	})
}
