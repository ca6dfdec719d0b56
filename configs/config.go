package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

// Enabled reports whether object storage credentials are configured.
func (r R2) Enabled() bool {
	return r.AccountID != "" && r.AccessKey != "" && r.SecretKey != "" && r.BucketName != ""
}

type LinkedIn struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	APIBaseURL   string
	RatePerSec   float64
}

type Scheduler struct {
	Workers       int
	RetryCap      int
	RetryBackoff  time.Duration
	DispatchRetry time.Duration
	Queue         string
}

type Config struct {
	AppEnv           string
	LogLevel         string
	HTTPAddr         string
	PostgresURI      string
	RedisURI         string
	FrontendURL      string
	SecretKey        string
	CookieName       string
	UploadDir        string
	MaxUploadBytes   int64
	LinkedIn         LinkedIn
	R2               R2
	Scheduler        Scheduler
	ReconcileSpec    string
	TokenRefreshSpec string
}

func LoadConfig() *Config {
	return &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":3000"),
		PostgresURI:    getEnv("POSTGRES_URI", ""),
		RedisURI:       getEnv("REDIS_URI", ""),
		FrontendURL:    getEnv("FRONTEND_URL", "http://localhost:5173"),
		SecretKey:      getEnv("SECRET_KEY", ""),
		CookieName:     getEnv("COOKIE_NAME", "session"),
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 16*1024*1024)),
		LinkedIn: LinkedIn{
			ClientID:     getEnv("LINKEDIN_CLIENT_ID", ""),
			ClientSecret: getEnv("LINKEDIN_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("LINKEDIN_REDIRECT_URI", "http://localhost:3000/auth/linkedin/callback"),
			APIBaseURL:   getEnv("LINKEDIN_API_BASE_URL", "https://api.linkedin.com/v2"),
			RatePerSec:   getEnvFloat("LINKEDIN_RATE_PER_SEC", 5),
		},
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},
		Scheduler: Scheduler{
			Workers:       getEnvInt("SCHEDULER_WORKERS", 20),
			RetryCap:      getEnvInt("SCHEDULER_RETRY_CAP", 3),
			RetryBackoff:  getEnvDuration("SCHEDULER_RETRY_BACKOFF", 30*time.Minute),
			DispatchRetry: getEnvDuration("SCHEDULER_DISPATCH_RETRY", time.Minute),
			Queue:         getEnv("SCHEDULER_QUEUE", "posts"),
		},
		ReconcileSpec:    getEnv("RECONCILE_SPEC", "@every 5m"),
		TokenRefreshSpec: getEnv("TOKEN_REFRESH_SPEC", "@every 10m"),
	}
}

func (c *Config) Production() bool {
	return c.AppEnv == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}
