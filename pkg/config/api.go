package config

import (
	"log/slog"
	"time"
)

// Store drivers understood by the API.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"
)

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment string
	Addr        string
	LogLevel    slog.Level

	StoreDriver     string
	DatabaseURL     string
	MongoURI        string
	MongoDatabase   string
	StoreTimeout    time.Duration
	PublicBaseURL   string
	JWTSecret       string
	SessionTTL      time.Duration
	VerificationTTL time.Duration

	SMTPHost       string
	SMTPUser       string
	SMTPPassword   string
	MailFrom       string
	SMTPSkipVerify bool
	MailLogBody    bool

	SuggestAPIURL  string
	SuggestAPIKey  string
	SuggestModel   string
	SuggestTimeout time.Duration

	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
	RevocationRedis    bool

	OAuthRedirectBase  string
	GitHubClientID     string
	GitHubClientSecret string
	GoogleClientID     string
	GoogleClientSecret string
	StateCookieKey     string
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment: GetString("APP_ENV", "development"),
		Addr:        GetString("API_ADDR", ":4000"),
		LogLevel:    GetLevel("LOG_LEVEL", slog.LevelInfo),

		StoreDriver:     GetString("STORE_DRIVER", StoreDriverPostgres),
		DatabaseURL:     GetString("DATABASE_URL", "postgres://anonify:anonify@db:5432/anonify?sslmode=disable"),
		MongoURI:        GetString("MONGODB_URI", "mongodb://mongo:27017"),
		MongoDatabase:   GetString("MONGODB_DATABASE", "anonify"),
		StoreTimeout:    GetDuration("STORE_TIMEOUT", 10*time.Second),
		PublicBaseURL:   GetString("PUBLIC_BASE_URL", "http://localhost:3000"),
		JWTSecret:       GetString("JWT_SECRET", "supersecuresecret"),
		SessionTTL:      time.Duration(GetInt("SESSION_TTL_HOURS", 720)) * time.Hour,
		VerificationTTL: time.Duration(GetInt("VERIFICATION_CODE_TTL_MIN", 60)) * time.Minute,

		SMTPHost:       GetString("SMTP_HOST", ""),
		SMTPUser:       GetString("SMTP_USER", ""),
		SMTPPassword:   GetString("SMTP_PASSWORD", ""),
		MailFrom:       GetString("MAIL_FROM", "Anonify <noreply@anonify.local>"),
		SMTPSkipVerify: GetBool("SMTP_SKIP_VERIFY", false),
		MailLogBody:    GetBool("MAIL_LOG_BODY", false),

		SuggestAPIURL:  GetString("SUGGEST_API_URL", "https://api-inference.huggingface.co/models"),
		SuggestAPIKey:  GetString("SUGGEST_API_KEY", ""),
		SuggestModel:   GetString("SUGGEST_MODEL", "mistralai/Mistral-7B-Instruct-v0.2"),
		SuggestTimeout: GetDuration("SUGGEST_TIMEOUT", 15*time.Second),

		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
		RevocationRedis:    GetBool("REVOCATION_REDIS", true),

		OAuthRedirectBase:  GetString("OAUTH_REDIRECT_BASE", "http://localhost:4000"),
		GitHubClientID:     GetString("GITHUB_ID", ""),
		GitHubClientSecret: GetString("GITHUB_SECRET", ""),
		GoogleClientID:     GetString("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: GetString("GOOGLE_CLIENT_SECRET", ""),
		StateCookieKey:     GetString("STATE_COOKIE_KEY", "supersecurestatekey"),
	}
}
