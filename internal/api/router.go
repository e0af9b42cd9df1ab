package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	apihandler "github.com/maraichr/pictor/internal/api/handler"
	apimw "github.com/maraichr/pictor/internal/api/middleware"
	"github.com/maraichr/pictor/internal/auth"
	"github.com/maraichr/pictor/internal/caption"
	"github.com/maraichr/pictor/internal/config"
	"github.com/maraichr/pictor/internal/progress"
	"github.com/maraichr/pictor/internal/store"
	minioclient "github.com/maraichr/pictor/internal/store/minio"
	"github.com/maraichr/pictor/internal/uploader"
)

// RouterDeps holds optional dependencies for the router. Nil fields
// degrade the corresponding endpoints rather than fail startup.
type RouterDeps struct {
	MinIO     *minioclient.Client
	Captioner caption.Captioner
	Cache     *caption.Cache
	Registry  *progress.Registry
	Uploads   *uploader.Service
	Verifier  *auth.Verifier
	Bulk      config.BulkConfig
}

func NewRouter(logger *slog.Logger, s *store.Store, deps *RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(apimw.Logger(logger))
	r.Use(apimw.CORS)
	r.Use(chimw.Recoverer)

	// Health checks
	health := apihandler.NewHealthHandler(s.Pool())
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	if deps == nil {
		deps = &RouterDeps{}
	}

	// Keep the interface nil when MinIO is absent so handlers can
	// distinguish "no blob store" from a dead client.
	var blobs apihandler.BlobStore
	if deps.MinIO != nil {
		blobs = deps.MinIO
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if deps.Verifier != nil {
			r.Use(auth.RequireAuth(deps.Verifier, logger))
		} else {
			r.Use(auth.DevModeMiddleware(logger))
		}

		images := apihandler.NewImageHandler(logger, s, blobs, deps.Captioner, deps.Cache)
		r.Route("/images", func(r chi.Router) {
			r.Get("/", images.List)

			bulk := apihandler.NewBulkHandler(logger, s, blobs, deps.Captioner, deps.Cache, deps.Bulk)
			r.Patch("/bulk", bulk.Update)
			r.Post("/bulk/delete", bulk.Delete)
			r.Post("/bulk/recaption", bulk.Recaption)

			// Uploads (require MinIO)
			if deps.Uploads != nil {
				upload := apihandler.NewUploadHandler(logger, deps.Uploads, deps.Bulk)
				r.Post("/uploads", upload.Start)
			}
			if deps.Registry != nil {
				prog := apihandler.NewProgressHandler(logger, deps.Registry)
				r.Get("/uploads/{sessionID}/progress", prog.Subscribe)
			}

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", images.Get)
				r.Patch("/", images.Update)
				r.Delete("/", images.Delete)
				r.Post("/recaption", images.Recaption)
			})
		})
	})

	return r
}
