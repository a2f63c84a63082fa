package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	DBDriver    string
	DatabaseURL string

	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	GoogleClientID        string
	GoogleClientSecret    string
	GoogleProjectID       string
	GooglePubSubTopic     string
	GoogleCredentialsFile string
	FirebaseCredentials   string
	TokenEncryptionKey    string

	GeminiAPIKey string
	GeminiModels []string
	HFToken      string
	HFBaseURL    string
	HFModels     []string
	AITimeout    time.Duration

	ChromaAPIKey   string
	ChromaTenant   string
	ChromaDatabase string

	RedisURL          string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	DriveRootFolder string
	SyncInterval    time.Duration

	QuotaTimezone       string
	FreeSummariesPerDay int
	FreeRepliesPerDay   int
	FreeSearchesPerDay  int
	TrialDuration       time.Duration

	MpesaBaseURL        string
	MpesaConsumerKey    string
	MpesaConsumerSecret string
	MpesaShortCode      string
	MpesaPasskey        string
	MpesaCallbackURL    string
	MpesaAmount         int
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DBDriver:    getEnv("DB_DRIVER", "postgres"),
		DatabaseURL: getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=fileflow port=5432 sslmode=disable"),

		JWTSecret:        getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTAccessExpiry:  getDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		JWTRefreshExpiry: getDuration("JWT_REFRESH_EXPIRY", 168*time.Hour), // 7 days

		GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleProjectID:       getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:     getEnv("GOOGLE_PUBSUB_TOPIC", ""),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		FirebaseCredentials:   getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		TokenEncryptionKey:    getEnv("TOKEN_ENCRYPTION_KEY", ""),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModels: getList("GEMINI_MODELS", []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-1.5-flash"}),
		HFToken:      getEnv("HF_TOKEN", ""),
		HFBaseURL:    getEnv("HF_BASE_URL", "https://router.huggingface.co/v1"),
		HFModels:     getList("HF_MODELS", []string{"meta-llama/Llama-3.1-8B-Instruct", "mistralai/Mistral-7B-Instruct-v0.3"}),
		AITimeout:    getDuration("AI_TIMEOUT", 30*time.Second),

		ChromaAPIKey:   getEnv("CHROMA_API_KEY", ""),
		ChromaTenant:   getEnv("CHROMA_TENANT", ""),
		ChromaDatabase: getEnv("CHROMA_DATABASE", ""),

		RedisURL:          getEnv("REDIS_URL", ""),
		RateLimitRequests: getInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   getDuration("RATE_LIMIT_WINDOW", 15*time.Minute),

		DriveRootFolder: getEnv("DRIVE_ROOT_FOLDER", "FileFlow"),
		SyncInterval:    getDuration("SYNC_INTERVAL", 15*time.Minute),

		QuotaTimezone:       getEnv("QUOTA_TIMEZONE", "UTC"),
		FreeSummariesPerDay: getInt("FREE_SUMMARIES_PER_DAY", 5),
		FreeRepliesPerDay:   getInt("FREE_REPLIES_PER_DAY", 5),
		FreeSearchesPerDay:  getInt("FREE_SEARCHES_PER_DAY", 10),
		TrialDuration:       getDuration("TRIAL_DURATION", 7*24*time.Hour),

		MpesaBaseURL:        getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
		MpesaConsumerKey:    getEnv("MPESA_CONSUMER_KEY", ""),
		MpesaConsumerSecret: getEnv("MPESA_CONSUMER_SECRET", ""),
		MpesaShortCode:      getEnv("MPESA_SHORTCODE", "174379"),
		MpesaPasskey:        getEnv("MPESA_PASSKEY", ""),
		MpesaCallbackURL:    getEnv("MPESA_CALLBACK_URL", ""),
		MpesaAmount:         getInt("MPESA_AMOUNT", 500),
	}
}

// IsPlaceholder reports whether a configured value is missing or left at a template default.
func IsPlaceholder(value string) bool {
	v := strings.TrimSpace(strings.ToLower(value))
	if v == "" || v == "changeme" {
		return true
	}
	return strings.HasPrefix(v, "your-") || strings.HasPrefix(v, "your_") || strings.Contains(v, "placeholder")
}

// Location returns the timezone used for daily quota resets.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.QuotaTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
