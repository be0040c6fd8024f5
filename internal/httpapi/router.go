package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"thumbnailer/internal/httpapi/handlers"
	"thumbnailer/internal/pkg/logger"
	"thumbnailer/internal/pkg/middleware"
)

type Deps struct {
	Handlers       handlers.Deps
	AllowedOrigins []string
	Log            *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           600,
	}).Handler)

	if d.Handlers.Log == nil {
		d.Handlers.Log = log
	}
	h := handlers.New(d.Handlers)

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	// ---- THUMBNAILS ----
	generate := middleware.WrapHandler(log, h.GenerateThumbnails)
	r.Post("/api/thumbnails", generate)
	r.Post("/api/GenerateThumbnails", generate)

	// ---- JOBS ----
	if h.AsyncEnabled() {
		r.Post("/jobs", middleware.WrapHandler(log, h.PostJob))
		r.Get("/jobs/{jobId}", middleware.WrapHandler(log, h.GetJob))
	}

	return r
}
