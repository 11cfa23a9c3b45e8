package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// RunPod inference
	RunPodAPIKey       string
	RunPodLLMEndpoint  string
	RunPodModel        string
	RunPodASREndpoint  string
	RunPodMaxTokens    int
	RunPodPollInterval int // milliseconds
	RunPodTimeout      int // milliseconds, per-call ceiling

	// Generation
	GuidedJSON          bool
	GenerationBudget    int // milliseconds of wall clock per generation run
	GenerationBatchSize int // 0 = full requested count in one batch
	MaxSourceChars      int
	MaxQuestionChars    int
	MaxAnswerChars      int
	DailyGenerationCap  int
	CaptionCacheTTL     int // hours
	WorkerCount         int

	// Storage
	StoragePath   string
	PublicBaseURL string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		Env:         getEnvOrDefault("ENV", "development"),
		DatabaseURL: mustGetEnv("DATABASE_URL"),
		RedisURL:    mustGetEnv("REDIS_URL"),
		JWTSecret:   mustGetEnv("JWT_SECRET"),

		// The RunPod values are intentionally NOT mustGetEnv: an unconfigured
		// backend degrades to the explicit sentence-chunk path instead of
		// refusing to boot.
		RunPodAPIKey:       getEnvOrDefault("RUNPOD_API_KEY", ""),
		RunPodLLMEndpoint:  getEnvOrDefault("RUNPOD_LLM_ENDPOINT", ""),
		RunPodModel:        getEnvOrDefault("RUNPOD_MODEL", "default"),
		RunPodASREndpoint:  getEnvOrDefault("RUNPOD_ASR_ENDPOINT", ""),
		RunPodMaxTokens:    getEnvAsIntOrDefault("RUNPOD_MAX_TOKENS", 3072),
		RunPodPollInterval: getEnvAsIntOrDefault("RUNPOD_POLL_INTERVAL_MS", 1500),
		RunPodTimeout:      getEnvAsIntOrDefault("RUNPOD_TIMEOUT_MS", 120000),

		GuidedJSON:          getEnvAsBoolOrDefault("GUIDED_JSON", true),
		GenerationBudget:    getEnvAsIntOrDefault("GENERATION_BUDGET_MS", 55000),
		GenerationBatchSize: getEnvAsIntOrDefault("GENERATION_BATCH_SIZE", 0),
		MaxSourceChars:      getEnvAsIntOrDefault("MAX_SOURCE_CHARS", 48000),
		MaxQuestionChars:    getEnvAsIntOrDefault("MAX_QUESTION_CHARS", 300),
		MaxAnswerChars:      getEnvAsIntOrDefault("MAX_ANSWER_CHARS", 1000),
		DailyGenerationCap:  getEnvAsIntOrDefault("DAILY_GENERATION_LIMIT", 50),
		CaptionCacheTTL:     getEnvAsIntOrDefault("CAPTION_CACHE_TTL_HOURS", 24),
		WorkerCount:         getEnvAsIntOrDefault("WORKER_COUNT", 5),

		StoragePath:   getEnvOrDefault("STORAGE_PATH", "./uploads"),
		PublicBaseURL: getEnvOrDefault("PUBLIC_BASE_URL", ""),
		FrontendURL:   getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
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
