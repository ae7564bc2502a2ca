package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis (session persistence; empty = in-memory sessions, dev mode)
	RedisURL string

	// Gateway (podcast synthesis, script generation, web reader, search, voices)
	GatewayBaseURL string
	GatewayAPIKey  string

	// Generation transport: "poll" or "stream"
	TransportMode string

	// OpenAI (used for dialogue optimization)
	OpenAIKey     string
	OpenAIBaseURL string // Optional OpenAI-compatible endpoint override
	OptimizeModel string

	// Gemini (used for search keyword expansion)
	GeminiKey    string
	KeywordModel string

	// Supabase (uploaded source files)
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// Defaults applied to fresh workflows
	DefaultLang      string
	DefaultModelName string

	// Search result cap per query
	SearchMaxResults int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		GatewayBaseURL:        getEnv("GATEWAY_BASE_URL", ""),
		GatewayAPIKey:         getEnv("GATEWAY_API_KEY", ""),
		TransportMode:         getEnv("GENERATION_TRANSPORT", "poll"),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", ""),
		OptimizeModel:         getEnv("OPTIMIZE_MODEL", "gpt-5-mini"),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		KeywordModel:          getEnv("KEYWORD_MODEL", "gemini-2.0-flash"),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "podcast-sources"),
		DefaultLang:           getEnv("DEFAULT_LANG", "en"),
		DefaultModelName:      getEnv("DEFAULT_MODEL_NAME", ""),
		SearchMaxResults:      getEnvInt("SEARCH_MAX_RESULTS", 10),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.GatewayBaseURL == "" {
		return nil, fmt.Errorf("GATEWAY_BASE_URL is required")
	}

	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	if cfg.GeminiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	if cfg.TransportMode != "poll" && cfg.TransportMode != "stream" {
		return nil, fmt.Errorf("GENERATION_TRANSPORT must be poll or stream, got %q", cfg.TransportMode)
	}

	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
