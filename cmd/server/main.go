package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/invoyisi/resolution-service/api"
	"github.com/invoyisi/resolution-service/internal/ai"
	"github.com/invoyisi/resolution-service/internal/auth"
	"github.com/invoyisi/resolution-service/internal/db"
	"github.com/invoyisi/resolution-service/internal/logger"
	"github.com/invoyisi/resolution-service/internal/models"
	"github.com/invoyisi/resolution-service/internal/storage"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	config, err := loadConfig("config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Setup(config.Log); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	if err := auth.Init(); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize auth")
	}
	log.Info().Msg("JWT authentication initialized")

	// Without a database the service still previews extractions, but every
	// commit is refused
	if err := db.Init(); err != nil {
		log.Warn().Err(err).Msg("database not available, commits disabled")
	} else {
		defer db.Close()
	}

	if err := storage.Init(); err != nil {
		log.Warn().Err(err).Msg("storage not available, documents will not be kept")
	} else {
		log.Info().Msg("MinIO storage initialized")
	}

	provider, err := ai.NewProvider(config.AI)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create AI provider")
	}

	store := db.NewStore(db.Pool)
	extractor := ai.NewExtractor(provider, log.Logger)
	handler := api.NewHandler(config, store, extractor, log.Logger)
	router := handler.SetupRoutes()

	router.HandleFunc("/api/login", auth.LoginHandler).Methods("POST")

	// JWT middleware skips /health and /api/login
	protectedRouter := auth.JWTMiddleware(router)

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	log.Info().
		Str("addr", addr).
		Str("ai_provider", provider.Name()).
		Bool("database", db.Pool != nil).
		Bool("storage", storage.Client != nil).
		Msg("starting resolution service")

	if err := http.ListenAndServe(addr, protectedRouter); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func loadConfig(path string) (*models.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config models.Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Environment variables override the file
	if port := os.Getenv("PORT"); port != "" {
		fmt.Sscanf(port, "%d", &config.Port)
	}
	if host := os.Getenv("HOST"); host != "" {
		config.Host = host
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.AI.OpenAI.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.AI.OpenAI.BaseURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		config.AI.OpenAI.Model = model
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.AI.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		config.AI.Gemini.Model = model
	}
	if provider := os.Getenv("AI_PROVIDER"); provider != "" {
		config.AI.DefaultProvider = provider
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}

	if config.Port == 0 {
		config.Port = 8080
	}

	return &config, nil
}
