package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Load reads the .env file named by JUST_MEMORY_ENV (or .env by default),
// then its .secret sidecar if present. Variables already set in the
// environment win. All config is flat env vars read through the accessors below.
func Load() error {
	envFile := os.Getenv("JUST_MEMORY_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func getFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return v
}

func getDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// StoreDriver is sqlite (default) or postgres.
func StoreDriver() string {
	return getString("STORE_DRIVER", "sqlite")
}

// DatabasePath is the sqlite file. Empty means ~/.just-memory/memories.db.
func DatabasePath() string {
	return getString("DATABASE_PATH", "")
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// StoreDSN returns the DSN for the configured driver.
func StoreDSN() string {
	if StoreDriver() == "postgres" {
		return DatabaseURL()
	}
	return DatabasePath()
}

func ServerPort() int {
	return getInt("SERVER_PORT", 8080)
}

// APIKey, when set, is required as a bearer token on every /v1 request.
func APIKey() string {
	return os.Getenv("API_KEY")
}

func CORSAllowedOrigins() []string {
	raw := getString("CORS_ALLOWED_ORIGINS", "*")
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func RateLimitRPS() float64 {
	return getFloat("RATE_LIMIT_RPS", 100)
}

func RateLimitBurst() int {
	return getInt("RATE_LIMIT_BURST", 20)
}

// EmbeddingProvider is none (default), openai or mock.
func EmbeddingProvider() string {
	return getString("EMBEDDING_PROVIDER", "none")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func EmbeddingModel() string {
	return getString("EMBEDDING_MODEL", "text-embedding-3-small")
}

func DefaultProject() string {
	return getString("DEFAULT_PROJECT", "global")
}

func LogLevel() zapcore.Level {
	lvl, err := zapcore.ParseLevel(getString("LOG_LEVEL", "info"))
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// NewLogger builds the production JSON logger at LOG_LEVEL.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(LogLevel())
	return cfg.Build()
}

func DecayConstant() float64        { return getFloat("DECAY_CONSTANT", 0.5) }
func RecentAccessBoost() float64    { return getFloat("RECENT_ACCESS_BOOST", 0.05) }
func DecayPerDay() float64          { return getFloat("DECAY_PER_DAY", 0.01) }
func ConfirmationBoost() float64    { return getFloat("CONFIRMATION_BOOST", 0.15) }
func ContradictionPenalty() float64 { return getFloat("CONTRADICTION_PENALTY", 0.2) }
func HighImportanceBoost() float64  { return getFloat("HIGH_IMPORTANCE_BOOST", 0.1) }
func RetentionFloor() float64       { return getFloat("RETENTION_FLOOR", 0.1) }

func IdleSweepInterval() time.Duration {
	return getDuration("IDLE_SWEEP_INTERVAL", 24*time.Hour)
}

func IdleThresholdDays() int {
	return getInt("IDLE_THRESHOLD_DAYS", 30)
}

func IdleStrengthFactor() float64 {
	return getFloat("IDLE_STRENGTH_FACTOR", 0.9)
}

func ActivationMaxHops() int           { return getInt("ACTIVATION_MAX_HOPS", 2) }
func ActivationDecay() float64         { return getFloat("ACTIVATION_DECAY", 0.5) }
func ActivationInhibition() float64    { return getFloat("ACTIVATION_INHIBITION", 1.0) }
func ActivationMinActivation() float64 { return getFloat("ACTIVATION_MIN", 0.1) }
func ActivationMaxNodes() int          { return getInt("ACTIVATION_MAX_NODES", 1000) }
