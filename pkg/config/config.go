package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	FacePP    FacePPConfig
	Pixcheese PixcheeseConfig
	FindMe    FindMeConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Name string
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

type JWTConfig struct {
	Secret string
}

type FacePPConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
}

type PixcheeseConfig struct {
	BaseURL             string
	AppID               string
	AppVersion          string
	Language            string
	MaxPhotos           int
	PageSize            int
	DownloadConcurrency int
}

// FindMeConfig holds the face-match pipeline parameters
type FindMeConfig struct {
	DetectionConcurrency   int     // max simultaneous detect calls
	DetectionRPS           int     // detect calls per rolling second
	DetectionMaxRetries    int     // attempts after a concurrency-limit error
	DetectionRetryDelayMs  int     // linear backoff base delay
	FaceSetTokenCapacity   int     // max tokens per remote faceset
	SearchReturnCount      int     // hits requested per search call
	MatchThresholdTarget   string  // thresholds key, a false-positive rate
	MatchThresholdFallback float64 // used when the boundary omits thresholds
	MaxUploadBytes         int64
	CacheTTLHours          int
}

type RateLimitConfig struct {
	Enabled       bool
	MaxRequests   int
	WindowSeconds int
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists (optional for production)
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	config := &Config{
		App: AppConfig{
			Name: getEnv("APP_NAME", "FindMe API"),
			Port: getEnv("APP_PORT", "3000"),
			Env:  getEnv("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "findme"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
			Enabled:  getEnv("REDIS_ENABLED", "true") == "true",
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key"),
		},
		FacePP: FacePPConfig{
			BaseURL:   getEnv("FACEPP_BASE_URL", "https://api-us.faceplusplus.com/facepp/v3"),
			APIKey:    getEnv("FACEPP_API_KEY", ""),
			APISecret: getEnv("FACEPP_API_SECRET", ""),
		},
		Pixcheese: PixcheeseConfig{
			BaseURL:             getEnv("PIXCHEESE_BASE_URL", "https://preview-api.pixcheese.com"),
			AppID:               getEnv("PIXCHEESE_APP_ID", "8"),
			AppVersion:          getEnv("PIXCHEESE_APP_VERSION", "25.11.112"),
			Language:            getEnv("PIXCHEESE_LANGUAGE", "zh-CN"),
			MaxPhotos:           getEnvInt("FINDME_PIXCHEESE_MAX_PHOTOS", 700),
			PageSize:            getEnvInt("FINDME_PIXCHEESE_PAGE_SIZE", 50),
			DownloadConcurrency: getEnvInt("FINDME_PIXCHEESE_DOWNLOAD_CONCURRENCY", 4),
		},
		FindMe: FindMeConfig{
			DetectionConcurrency:   getEnvInt("FINDME_DETECTION_CONCURRENCY", 3),
			DetectionRPS:           getEnvInt("FINDME_DETECTION_RPS", 3),
			DetectionMaxRetries:    getEnvInt("FINDME_DETECTION_MAX_RETRIES", 3),
			DetectionRetryDelayMs:  getEnvInt("FINDME_DETECTION_RETRY_DELAY_MS", 1100),
			FaceSetTokenCapacity:   getEnvInt("FINDME_FACESET_TOKEN_CAPACITY", 1000),
			SearchReturnCount:      getEnvInt("FINDME_SEARCH_RETURN_COUNT", 5),
			MatchThresholdTarget:   getEnv("FINDME_MATCH_THRESHOLD_TARGET", "1e-5"),
			MatchThresholdFallback: getEnvFloat("FINDME_MATCH_THRESHOLD_FALLBACK", 70),
			MaxUploadBytes:         int64(getEnvInt("FINDME_MAX_UPLOAD_BYTES", 2*1024*1024)),
			CacheTTLHours:          getEnvInt("FINDME_CACHE_TTL_HOURS", 720),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnv("RATE_LIMIT_ENABLED", "true") == "true",
			MaxRequests:   getEnvInt("RATE_LIMIT_MAX_REQUESTS", 10),
			WindowSeconds: getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}
