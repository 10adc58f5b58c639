package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/acheong08/avtag/internal/config"
	"github.com/acheong08/avtag/internal/server"
)

// Config holds all environment configuration
type Config struct {
	// Server
	Port string

	// Rules, loaded once and shared by every run
	Rules config.Options
}

func loadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	opts, err := config.Load(os.Getenv("AVTAG_CONFIG"))
	if err != nil {
		return nil, err
	}
	if opts.MaltaggedThreshold < 0 {
		return nil, fmt.Errorf("AVTAG_MALTAGGED_THRESHOLD must not be negative")
	}

	return &Config{
		Port:  getEnv("PORT", "8080"),
		Rules: *opts,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	rs, err := cfg.Rules.LoadRules()
	if err != nil {
		log.Fatalf("Failed to load rules: %v", err)
	}
	for _, problem := range rs.Problems() {
		log.Printf("[WARN] %s", problem)
	}

	engine, err := server.NewEngine(rs, cfg.Rules.MaltaggedThreshold, cfg.Rules.CacheSize, server.NewMetrics())
	if err != nil {
		log.Fatalf("Failed to create labeling engine: %v", err)
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	server.SetupRoutes(router, engine)

	log.Printf("[INFO] Server starting on port %s (taxonomy: %d tags, tagging: %d rules, expansion: %d rules)",
		cfg.Port, rs.Taxonomy.Len(), rs.Tagging.Len(), rs.Expansion.Len())
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
