package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/podforge/podforge/internal/api"
	"github.com/podforge/podforge/internal/config"
	"github.com/podforge/podforge/internal/history"
	"github.com/podforge/podforge/internal/services"
	"github.com/podforge/podforge/internal/session"
	"github.com/podforge/podforge/internal/workflow"
)

func main() {
	log.Println("Starting PodForge API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to the history database
	store, err := history.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()
	log.Println("Connected to database")

	// Session store: Redis when configured, in-memory otherwise (dev mode;
	// workflows do not survive a restart without Redis)
	var sessions session.Store
	if cfg.RedisURL != "" {
		redisStore, err := session.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisStore.Close()
		sessions = redisStore
		log.Println("Connected to Redis session store")
	} else {
		sessions = session.NewMemory()
		log.Println("WARNING: No REDIS_URL set — sessions are in-memory only (dev mode)")
	}

	// Gateway-backed services: synthesis, script generation, reader, search, voices
	podcastClient := services.NewPodcastClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey)
	reader := services.NewReader(cfg.GatewayBaseURL, cfg.GatewayAPIKey)
	searcher := services.NewSearchService(cfg.GatewayBaseURL, cfg.GatewayAPIKey)

	// Direct provider services
	transformer := services.NewTransformer(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OptimizeModel)
	keywords := services.NewKeywordService(cfg.GeminiKey, cfg.KeywordModel)
	uploads := services.NewFileStore(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
	log.Println("Initialized Supabase storage")

	transport := workflow.TransportPoll
	if cfg.TransportMode == "stream" {
		transport = workflow.TransportStream
	}
	log.Printf("Generation transport: %s", cfg.TransportMode)

	// Create API handler
	handler := api.NewHandler(api.Deps{
		Sessions:         sessions,
		History:          store,
		Reader:           reader,
		Searcher:         searcher,
		Keywords:         keywords,
		Transformer:      transformer,
		Backend:          podcastClient,
		Voices:           podcastClient,
		Uploads:          uploads,
		Transport:        transport,
		SearchMaxResults: cfg.SearchMaxResults,
		DefaultLang:      cfg.DefaultLang,
		DefaultModelName: cfg.DefaultModelName,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop background task tracking; remote jobs keep running and are
	// resumed from their persisted session records on the next start
	handler.Shutdown()

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
