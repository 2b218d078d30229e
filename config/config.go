package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"leadflow/models"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// MetaConfig holds everything needed to talk to the ads platform.
type MetaConfig struct {
	BaseURL        string `json:"base_url"`
	AccessToken    string `json:"-"`
	PageID         string `json:"page_id"`
	VerifyToken    string `json:"-"`
	AppSecret      string `json:"-"`
	RequestTimeout int    `json:"request_timeout_seconds"`
	RequestsPerSec int    `json:"requests_per_sec"`
}

type Config struct {
	Environment    string      `json:"environment"`
	ServerPort     string      `json:"server_port"`
	DBHost         string      `json:"db_host"`
	DBPort         string      `json:"db_port"`
	DBUser         string      `json:"db_user"`
	DBPassword     string      `json:"-"`
	DBName         string      `json:"db_name"`
	DBSSLMode      string      `json:"db_ssl_mode"`
	DBMaxIdleConns int         `json:"db_max_idle_conns"`
	DBMaxOpenConns int         `json:"db_max_open_conns"`
	Meta           MetaConfig  `json:"meta"`
	Redis          RedisConfig `json:"redis"`
	SentryDSN      string      `json:"-"`
	OperatorAPIKey string      `json:"-"`

	// Background worker knobs
	RetrySweepMinutes   int `json:"retry_sweep_minutes"`
	BackfillEveryHours  int `json:"backfill_every_hours"`
	BackfillLookbackHrs int `json:"backfill_lookback_hours"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "leadflow"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		Meta: MetaConfig{
			BaseURL:        getEnv("META_BASE_URL", "https://graph.facebook.com/v19.0"),
			AccessToken:    getEnv("META_ACCESS_TOKEN", ""),
			PageID:         getEnv("META_PAGE_ID", ""),
			VerifyToken:    getEnv("META_VERIFY_TOKEN", ""),
			AppSecret:      getEnv("META_APP_SECRET", ""),
			RequestTimeout: getEnvAsInt("META_REQUEST_TIMEOUT_SECONDS", 30),
			RequestsPerSec: getEnvAsInt("META_REQUESTS_PER_SEC", 10),
		},

		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "false") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		SentryDSN:      getEnv("SENTRY_DSN", ""),
		OperatorAPIKey: getEnv("OPERATOR_API_KEY", ""),

		RetrySweepMinutes:   getEnvAsInt("RETRY_SWEEP_MINUTES", 15),
		BackfillEveryHours:  getEnvAsInt("BACKFILL_EVERY_HOURS", 6),
		BackfillLookbackHrs: getEnvAsInt("BACKFILL_LOOKBACK_HOURS", 24),
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.Meta.AccessToken == "" {
		return fmt.Errorf("META_ACCESS_TOKEN is required to fetch lead details")
	}
	if AppConfig.Meta.VerifyToken == "" {
		return fmt.Errorf("META_VERIFY_TOKEN is required for webhook subscription handshakes")
	}
	if AppConfig.Meta.AppSecret == "" {
		log.Println("⚠️ META_APP_SECRET not set - webhook payload signatures will NOT be verified")
	}
	if AppConfig.Environment == "production" {
		if AppConfig.OperatorAPIKey == "" {
			return fmt.Errorf("OPERATOR_API_KEY is required in production")
		}
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	// TranslateError maps driver duplicate-key failures to
	// gorm.ErrDuplicatedKey, which the pipeline relies on to resolve
	// concurrent inserts of the same external lead
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := models.Migrate(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Meta: page(%s) token(%t) app_secret(%t) redis_cache(%t)",
		AppConfig.Meta.PageID,
		AppConfig.Meta.AccessToken != "",
		AppConfig.Meta.AppSecret != "",
		AppConfig.Redis.Enabled)
}
