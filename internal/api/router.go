package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds settings for the API router.
// Passed from main.go so the router can configure CORS and auth from env vars.
type RouterConfig struct {
	// BackendAPIKey is the key that must be provided in X-API-Key or Authorization: Bearer <key>.
	// If empty, auth middleware is skipped (development mode).
	BackendAPIKey string

	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (development mode).
	CorsAllowedOrigins string
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (applied to all routes including /health)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// CORS: restrict origins when configured, otherwise allow all (dev mode)
	allowedOrigins := []string{"*"}
	if cfg.CorsAllowedOrigins != "" {
		origins := strings.Split(cfg.CorsAllowedOrigins, ",")
		trimmed := make([]string, 0, len(origins))
		for _, o := range origins {
			if s := strings.TrimSpace(o); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			allowedOrigins = trimmed
		}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check — public, no auth required
	r.Get("/health", h.Health)

	// API routes — protected by API key auth
	r.Route("/v1", func(r chi.Router) {
		// Apply auth middleware only to /v1 routes
		if cfg.BackendAPIKey != "" {
			r.Use(APIKeyAuth(cfg.BackendAPIKey))
		}

		// Finished podcasts — global, not tied to one workflow
		r.Get("/history", h.ListHistory)
		r.Delete("/history/{entryId}", h.DeleteHistory)

		r.Route("/workflows", func(r chi.Router) {
			r.Post("/", h.CreateWorkflow)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetWorkflow)
				r.Delete("/", h.DeleteWorkflow)

				// Stepper
				r.Post("/step/next", h.StepNext)
				r.Post("/step/prev", h.StepPrev)
				r.Post("/step/goto", h.StepGoTo)

				// Resources
				r.Get("/resources", h.ListResources)
				r.Post("/resources", h.AddResource)
				r.Post("/resources/upload", h.UploadResource)
				r.Put("/resources/{resourceId}", h.UpdateResource)
				r.Delete("/resources/{resourceId}", h.DeleteResource)
				r.Post("/resources/{resourceId}/move", h.MoveResource)

				// Resource draft
				r.Put("/draft", h.SaveDraft)
				r.Get("/draft", h.GetDraft)
				r.Delete("/draft", h.DeleteDraft)

				// Search and ingestion
				r.Post("/search", h.SearchWeb)
				r.Post("/keywords", h.GenerateKeywords)
				r.Post("/ingest", h.Ingest)
				r.Get("/ingest/progress", h.IngestProgress)

				// Script
				r.Get("/dialogues", h.ListDialogues)
				r.Post("/dialogues", h.AddDialogue)
				r.Post("/dialogues/generate", h.GenerateDialogue)
				r.Post("/dialogues/generate/cancel", h.CancelDialogue)
				r.Get("/dialogues/status", h.DialogueStatus)
				r.Put("/dialogues/{itemId}", h.UpdateDialogue)
				r.Delete("/dialogues/{itemId}", h.DeleteDialogue)
				r.Post("/dialogues/{itemId}/move", h.MoveDialogue)

				// Batch optimization
				r.Post("/optimize", h.Optimize)
				r.Get("/optimize/preview", h.OptimizePreview)
				r.Post("/optimize/apply", h.OptimizeApply)
				r.Post("/optimize/cancel", h.OptimizeCancel)

				// Audio settings
				r.Get("/voices", h.ListVoices)
				r.Put("/settings", h.UpdateSettings)
				r.Put("/speakers/{slot}", h.UpdateSpeaker)

				// Generation
				r.Post("/generate", h.Generate)
				r.Post("/generate/cancel", h.GenerateCancel)
				r.Get("/generate/status", h.GenerateStatus)
				r.Get("/generate/events", h.GenerateEvents)

				// Background error notices
				r.Get("/notices", h.Notices)
			})
		})
	})

	return r
}
