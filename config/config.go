package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Nicepay    NicepayConfig
	Encryption EncryptionConfig
	Internal   InternalConfig
	URLs       URLConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

// NicepayConfig holds gateway credentials. When ClientID is empty the server
// falls back to the stub client (local development).
type NicepayConfig struct {
	ClientID  string
	SecretKey string
	APIURL    string
	Timeout   time.Duration
}

type EncryptionConfig struct {
	MasterKey string // vault master secret; SHA-256 of this is the AES key
}

// InternalConfig gates the cron endpoints and the workflow-automation webhook.
type InternalConfig struct {
	APIKey string
}

type URLConfig struct {
	BackendURL  string // base for the gateway return URL
	FrontendURL string // base for post-payment redirects
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getenv("PORT", "8080"),
			Env:          getenv("APP_ENV", "development"),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:             getenv("DATABASE_URL", "host=localhost user=taxly password=taxly dbname=taxly port=5432 sslmode=disable"),
			MaxIdleConns:    getenvInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getenvInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: time.Hour,
		},
		JWT: JWTConfig{
			AccessSecret:  getenv("JWT_ACCESS_SECRET", "change-me-in-production"),
			RefreshSecret: getenv("JWT_REFRESH_SECRET", "change-me-refresh"),
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 168 * time.Hour,
			Issuer:        "taxly",
		},
		Nicepay: NicepayConfig{
			ClientID:  os.Getenv("NICEPAY_CLIENT_ID"),
			SecretKey: os.Getenv("NICEPAY_SECRET_KEY"),
			APIURL:    getenv("NICEPAY_API_URL", "https://api.nicepay.co.kr"),
			Timeout:   10 * time.Second,
		},
		Encryption: EncryptionConfig{
			MasterKey: getenv("ENCRYPTION_KEY", "dev-only-master-key"),
		},
		Internal: InternalConfig{
			APIKey: getenv("INTERNAL_API_KEY", "dev-internal-key"),
		},
		URLs: URLConfig{
			BackendURL:  getenv("BACKEND_URL", "http://localhost:8080"),
			FrontendURL: getenv("FRONTEND_URL", "http://localhost:5173"),
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
