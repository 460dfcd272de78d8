package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv   string
	LogLevel string
	Port     string

	DatabaseURL string
	DBMaxConns  int
	DBMinConns  int

	RedisAddr     string
	RedisPassword string

	// Blob storage. Driver is "s3" or "filesystem".
	StorageDriver  string
	StoragePath    string
	StorageBaseURL string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3UseSSL       bool
	S3PublicURL    string

	// External providers.
	PredictionsBaseURL string
	PredictionsAPIKey  string
	ImageSynthBaseURL  string
	ImageSynthAPIKey   string
	DTFBaseURL         string
	DTFAPIKey          string
	Model3DBaseURL     string
	Model3DAPIKey      string

	// Dispatcher.
	PollInterval time.Duration
	BatchSize    int

	// Token costs for the 3D pipeline.
	CostConcept     int
	CostAngles      int
	CostReconstruct int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. A .env file is read first when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", ""),
		Port:     getEnv("PORT", "8080"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns:  getEnvInt("DB_MIN_CONNS", 1),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		StorageDriver:  getEnv("STORAGE_DRIVER", "filesystem"),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),
		S3Endpoint:     os.Getenv("S3_ENDPOINT"),
		S3AccessKey:    os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:    os.Getenv("S3_SECRET_KEY"),
		S3Bucket:       os.Getenv("S3_BUCKET"),
		S3UseSSL:       getEnvBool("S3_USE_SSL", false),
		S3PublicURL:    os.Getenv("S3_PUBLIC_URL"),

		PredictionsBaseURL: getEnv("PREDICTIONS_BASE_URL", "https://api.predictions.dev"),
		PredictionsAPIKey:  os.Getenv("PREDICTIONS_API_KEY"),
		ImageSynthBaseURL:  getEnv("IMAGESYNTH_BASE_URL", "https://api.predictions.dev"),
		ImageSynthAPIKey:   os.Getenv("IMAGESYNTH_API_KEY"),
		DTFBaseURL:         os.Getenv("DTF_BASE_URL"),
		DTFAPIKey:          os.Getenv("DTF_API_KEY"),
		Model3DBaseURL:     getEnv("MODEL3D_BASE_URL", "https://api.predictions.dev"),
		Model3DAPIKey:      os.Getenv("MODEL3D_API_KEY"),

		PollInterval: time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 5)),
		BatchSize:    getEnvInt("DISPATCH_BATCH_SIZE", 10),

		CostConcept:     getEnvInt("COST_MODEL3D_CONCEPT", 10),
		CostAngles:      getEnvInt("COST_MODEL3D_ANGLES", 30),
		CostReconstruct: getEnvInt("COST_MODEL3D_RECONSTRUCT", 40),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.StorageDriver == "s3" && (cfg.S3Endpoint == "" || cfg.S3Bucket == "") {
		return nil, fmt.Errorf("S3_ENDPOINT and S3_BUCKET are required when STORAGE_DRIVER=s3")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
