package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-driven knob for the broadcasting engine.
// It is loaded once at startup and passed down by value where components
// only need a handful of fields.
type Config struct {
	Host string
	Port string

	LogLevel string

	JWTSecret  string
	DJUsername string
	DJPassword string

	DataDir      string
	MusicLibRoot string

	SourceBaseURL  string
	SourceUsername string
	SourcePassword string
	SourceClientID string

	LLMAPIKey string
	LLMModel  string

	EmbeddingModelPath  string
	EmbeddingWorkers    int
	EmbeddingDimensions int

	TargetSegmentSeconds float64
	WindowSize           int
	OutputSampleRate     int
	OutputBitrateKbps    int
	SkipBarrier          time.Duration
	IdleGrace            time.Duration

	ListenerLeaseTTL time.Duration

	MaxClients int
}

// Load reads configuration from the environment, first attempting to load a
// local .env file (ignored silently when absent, matching godotenv's own
// convention for optional local overrides in development).
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Host: getEnv("HOST", "0.0.0.0"),
		Port: getEnv("PORT", "8000"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		JWTSecret:  getEnv("JWT_SECRET", "change-me-in-production-please"),
		DJUsername: getEnv("DJ_USERNAME", "admin"),
		DJPassword: getEnv("DJ_PASSWORD", "change-me"),

		DataDir:      getEnv("DATA_DIR", "./data"),
		MusicLibRoot: getEnv("MUSIC_LIB_ROOT", ""),

		SourceBaseURL:  getEnv("SOURCE_URL", ""),
		SourceUsername: getEnv("SOURCE_USER", ""),
		SourcePassword: getEnv("SOURCE_PASSWORD", ""),
		SourceClientID: getEnv("SOURCE_CLIENT_ID", "stationcast"),

		LLMAPIKey: getEnv("LLM_API_KEY", ""),
		LLMModel:  getEnv("LLM_MODEL", "gpt-4o-mini"),

		EmbeddingModelPath:  getEnv("EMBEDDING_MODEL_PATH", ""),
		EmbeddingWorkers:    getEnvAsInt("EMBEDDING_WORKERS", 4),
		EmbeddingDimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 100),

		TargetSegmentSeconds: getEnvAsFloat("TARGET_SEGMENT_SECONDS", 2.0),
		WindowSize:           getEnvAsInt("WINDOW_SIZE", 6),
		OutputSampleRate:     getEnvAsInt("OUTPUT_SAMPLE_RATE", 44100),
		OutputBitrateKbps:    getEnvAsInt("OUTPUT_BITRATE_KBPS", 192),
		SkipBarrier:          getEnvAsDuration("SKIP_BARRIER_MS", 2500*time.Millisecond),
		IdleGrace:            getEnvAsDuration("IDLE_GRACE_SECONDS", 60*time.Second),

		ListenerLeaseTTL: getEnvAsDuration("LISTENER_LEASE_TTL_SECONDS", 30*time.Second),

		MaxClients: getEnvAsInt("MAX_CLIENTS", 10000),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultVal int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultVal
}

func getEnvAsFloat(name string, defaultVal float64) float64 {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return value
		}
	}
	return defaultVal
}

// getEnvAsDuration reads a raw millisecond or second count (per the
// variable's own suffix) and falls back to defaultVal on absence or parse
// failure. Values are plain integers; the unit is encoded in the env var
// name (e.g. _MS vs _SECONDS) rather than a duration-suffixed string, to
// stay consistent with the rest of this file's plain getEnv* helpers.
func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(name)
	if !exists {
		return defaultVal
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultVal
	}
	unit := time.Second
	if len(name) > 3 && name[len(name)-3:] == "_MS" {
		unit = time.Millisecond
	}
	return time.Duration(value) * unit
}
