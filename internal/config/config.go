package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database: a postgres URL, or sqlite://path for the embedded backend
	DatabaseURL string

	// Redis; empty disables caching, live events and background titles
	RedisURL string

	// JWT
	JWTSecret        string
	ChatAuthRequired bool

	// LLM oracle
	LLMProvider       string
	LLMModel          string
	GeminiAPIKey      string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	LLMRequestsPerMin int
	LLMConcurrentReqs int

	// Tutoring engine
	HintWindow    int
	JudgeWindow   int
	SyllabusPath  string
	TopicCacheTTL time.Duration
	TitleWorkers  int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFileOverlay(path); err != nil {
			panic(fmt.Sprintf("failed to load config file %s: %v", path, err))
		}
	}

	cfg := &Config{
		Port:              getEnvOrDefault("PORT", "8080"),
		Env:               getEnvOrDefault("ENV", "development"),
		DatabaseURL:       mustGetEnv("DATABASE_URL"),
		RedisURL:          getEnvOrDefault("REDIS_URL", ""),
		JWTSecret:         mustGetEnv("JWT_SECRET"),
		ChatAuthRequired:  getEnvAsBoolOrDefault("CHAT_AUTH_REQUIRED", true),
		LLMProvider:       strings.ToLower(getEnvOrDefault("LLM_PROVIDER", "gemini")),
		LLMModel:          getEnvOrDefault("LLM_MODEL", ""),
		OpenAIBaseURL:     getEnvOrDefault("OPENAI_BASE_URL", ""),
		LLMRequestsPerMin: getEnvAsIntOrDefault("LLM_REQUESTS_PER_MINUTE", 60),
		LLMConcurrentReqs: getEnvAsIntOrDefault("LLM_CONCURRENT_REQUESTS", 5),
		HintWindow:        getEnvAsIntOrDefault("HINT_WINDOW", 6),
		JudgeWindow:       getEnvAsIntOrDefault("JUDGE_WINDOW", 10),
		SyllabusPath:      getEnvOrDefault("SYLLABUS_PATH", "./syllabus/topics.json"),
		TopicCacheTTL:     getEnvAsDurationOrDefault("TOPIC_CACHE_TTL", time.Hour),
		TitleWorkers:      getEnvAsIntOrDefault("TITLE_WORKERS", 2),
		FrontendURL:       getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	switch cfg.LLMProvider {
	case "openai":
		cfg.OpenAIAPIKey = mustGetEnv("OPENAI_API_KEY")
	default:
		cfg.LLMProvider = "gemini"
		cfg.GeminiAPIKey = mustGetEnv("GEMINI_API_KEY")
	}

	return cfg
}

// applyFileOverlay reads a flat TOML table (port = "8080", hint_window = 6)
// and exports each key as its upper-cased environment variable unless the
// environment already sets it.
func applyFileOverlay(path string) error {
	values := map[string]interface{}{}
	if _, err := toml.DecodeFile(path, &values); err != nil {
		return err
	}

	for key, val := range values {
		name := strings.ToUpper(key)
		if os.Getenv(name) != "" {
			continue
		}
		switch val.(type) {
		case map[string]interface{}, []interface{}, []map[string]interface{}:
			return fmt.Errorf("key %q: nested values are not supported", key)
		}
		if err := os.Setenv(name, fmt.Sprint(val)); err != nil {
			return err
		}
	}
	return nil
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
