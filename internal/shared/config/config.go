package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory    = "memory"
	StorePostgres  = "postgres"
	StoreFirestore = "firestore"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string

	JobStore            string
	DatabaseURL         string
	FirestoreProjectID  string
	FirestoreCollection string

	DemoMode              bool
	DeepSeekAPIKey        string
	DeepSeekBaseURL       string
	DeepSeekModel         string
	DeepSeekTimeout       time.Duration
	GeminiProjectID       string
	VertexRegion          string
	GeminiModel           string
	GoogleCredentialsFile string

	DefaultProviders     []string
	FrameworkConcurrency int

	JWTSecret           string
	PollInterval        time.Duration
	SubmitRatePerMinute int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")
	store := normalizeStoreType(getEnv("JOB_STORE", ""), dbURL)

	if env == "production" && store == StoreMemory {
		log.Printf("JOB_STORE=memory in production; jobs will not survive restarts")
	}
	if env == "production" && os.Getenv("JWT_SECRET") == "" {
		log.Printf("JWT_SECRET is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),

		JobStore:            store,
		DatabaseURL:         dbURL,
		FirestoreProjectID:  getEnv("FIRESTORE_PROJECT_ID", os.Getenv("GOOGLE_CLOUD_PROJECT")),
		FirestoreCollection: getEnv("FIRESTORE_COLLECTION", "business_analyses"),

		DemoMode:              getBool("DEMO_MODE", false),
		DeepSeekAPIKey:        getEnv("DEEPSEEK_API_KEY", ""),
		DeepSeekBaseURL:       getEnv("DEEPSEEK_BASE_URL", "https://api.deepseek.com"),
		DeepSeekModel:         getEnv("DEEPSEEK_MODEL", "deepseek-chat"),
		DeepSeekTimeout:       time.Duration(getInt("DEEPSEEK_TIMEOUT_SECONDS", 60)) * time.Second,
		GeminiProjectID:       getEnv("GEMINI_PROJECT_ID", os.Getenv("GOOGLE_CLOUD_PROJECT")),
		VertexRegion:          getEnv("VERTEX_AI_REGION", "us-central1"),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-1.5-pro"),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),

		DefaultProviders:     splitAndTrim(getEnv("DEFAULT_PROVIDERS", "deepseek,gemini")),
		FrameworkConcurrency: getInt("FRAMEWORK_CONCURRENCY", 4),

		JWTSecret:           getEnv("JWT_SECRET", ""),
		PollInterval:        time.Duration(getInt("POLL_INTERVAL_MS", 2000)) * time.Millisecond,
		SubmitRatePerMinute: getInt("SUBMIT_RATE_PER_MINUTE", 10),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("ignoring invalid %s=%q", key, raw)
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw, dbURL string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "pg":
		return StorePostgres
	case "firestore":
		return StoreFirestore
	case "memory":
		return StoreMemory
	}
	if dbURL != "" {
		return StorePostgres
	}
	return StoreMemory
}
