package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress  string
	AuthPassword string

	LLMProvider     string
	CerebrasKey     string
	CerebrasModelID string
	GeminiKey       string
	GeminiModelID   string
	LLMTimeout      time.Duration

	SupabaseURL            string
	SupabaseServiceRoleKey string
	DocsDir                string

	PersistDriver string
	SQLitePath    string
	RedisURL      string

	PageMaxChars     int
	DisplayDuration  time.Duration
	AutoAdvance      bool
	ConversationCap  int
	EventLogCapacity int
	ContextMaxChars  int
}

// Load reads .env (if present) and environment variables and returns Config
// with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it: %v", err)
	}
	return FromEnv()
}

// FromEnv builds Config from the current environment only.
func FromEnv() Config {
	cfg := Config{
		HTTPAddress:  getEnv("HTTP_ADDRESS", ":8080"),
		AuthPassword: os.Getenv("AUTH_PASSWORD"),

		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", "cerebras")),
		CerebrasKey:     os.Getenv("CEREBRAS_API_KEY"),
		CerebrasModelID: getEnv("CEREBRAS_MODEL_ID", "gpt-oss-120b"),
		GeminiKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModelID:   getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		LLMTimeout:      time.Duration(getInt("LLM_TIMEOUT_MS", 20000)) * time.Millisecond,

		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		DocsDir:                os.Getenv("DOCS_DIR"),

		PersistDriver: strings.ToLower(getEnv("PERSIST_DRIVER", "none")),
		SQLitePath:    getEnv("SQLITE_PATH", "glass-bridge.db"),
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),

		PageMaxChars:     getInt("PAGE_MAX_CHARS", 150),
		DisplayDuration:  time.Duration(getInt("DISPLAY_DURATION_MS", 5000)) * time.Millisecond,
		AutoAdvance:      getBool("AUTO_ADVANCE", true),
		ConversationCap:  getInt("CONVERSATION_CAP", 100),
		EventLogCapacity: getInt("EVENT_LOG_CAPACITY", 1000),
		ContextMaxChars:  getInt("CONTEXT_MAX_CHARS", 4000),
	}

	switch cfg.LLMProvider {
	case "gemini":
		if cfg.GeminiKey == "" {
			log.Println("Warning: GEMINI_API_KEY not set - responses will fall back")
		}
	default:
		if cfg.CerebrasKey == "" {
			log.Println("Warning: CEREBRAS_API_KEY not set - responses will fall back")
		}
	}
	if cfg.DisplayDuration < 500*time.Millisecond || cfg.DisplayDuration > 60*time.Second {
		log.Printf("Warning: DISPLAY_DURATION_MS=%d out of range; using 5000", cfg.DisplayDuration.Milliseconds())
		cfg.DisplayDuration = 5 * time.Second
	}

	log.Printf("config: HTTP_ADDRESS=%s LLM_PROVIDER=%s PERSIST_DRIVER=%s", cfg.HTTPAddress, cfg.LLMProvider, cfg.PersistDriver)
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		log.Printf("Warning: %s=%q is not a positive integer; using %d", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		log.Printf("Warning: %s=%q is not a boolean; using %t", key, raw, defaultValue)
		return defaultValue
	}
	return v
}
