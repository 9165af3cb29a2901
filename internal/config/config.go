package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Gemini AI (optional, used for score feedback)
	GeminiAPIKey         string
	GeminiConcurrentReqs int

	// Session lifecycle
	LiveSessionDuration time.Duration
	StatusTickInterval  time.Duration
	LessonFetchTimeout  time.Duration
	DefaultExamMaxScore float64

	// Workers
	EffectWorkers int

	// Captions
	CaptionPrimaryLanguage   string
	CaptionSecondaryLanguage string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                     getEnvOrDefault("PORT", "8080"),
		Env:                      getEnvOrDefault("ENV", "development"),
		LogLevel:                 getEnvOrDefault("LOG_LEVEL", "info"),
		DatabaseURL:              mustGetEnv("DATABASE_URL"),
		RedisURL:                 mustGetEnv("REDIS_URL"),
		JWTSecret:                mustGetEnv("JWT_SECRET"),
		GeminiAPIKey:             getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiConcurrentReqs:     getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 2),
		LiveSessionDuration:      time.Duration(getEnvAsIntOrDefault("LIVE_SESSION_DURATION_MINUTES", 90)) * time.Minute,
		StatusTickInterval:       time.Duration(getEnvAsIntOrDefault("STATUS_TICK_INTERVAL_SECONDS", 60)) * time.Second,
		LessonFetchTimeout:       time.Duration(getEnvAsIntOrDefault("LESSON_FETCH_TIMEOUT_SECONDS", 10)) * time.Second,
		DefaultExamMaxScore:      getEnvAsFloatOrDefault("DEFAULT_EXAM_MAX_SCORE", 10),
		EffectWorkers:            getEnvAsIntOrDefault("EFFECT_WORKERS", 3),
		CaptionPrimaryLanguage:   getEnvOrDefault("CAPTION_PRIMARY_LANGUAGE", "en"),
		CaptionSecondaryLanguage: getEnvOrDefault("CAPTION_SECONDARY_LANGUAGE", ""),
		FrontendURL:              getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
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

func getEnvAsFloatOrDefault(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f <= 0 {
		return defaultVal
	}
	return f
}
