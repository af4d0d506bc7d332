package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration
type Config struct {
	MySQL     MySQLConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Migrate   bool
	HTTPAddr  string
	CSVRoot   string
	Scheduler SchedulerConfig
	Applier   ApplierConfig
	Commit    CommitConfig
	LMS       LMSConfig
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
}

// SchedulerConfig holds roster scheduler configuration
type SchedulerConfig struct {
	Enabled     bool
	IntervalSec int
	Consumers   int
}

// ApplierConfig holds apply stage configuration
type ApplierConfig struct {
	ParallelMultiplier int
	BatchSize          int
}

// CommitConfig holds chunked commit configuration
type CommitConfig struct {
	ChunkSize int
}

// LMSConfig holds outbound LMS client configuration
type LMSConfig struct {
	TimeoutSec int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getEnv("MYSQL_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASS", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:        os.Getenv("JWT_SECRET"),
			ExpireMinutes: getEnvInt("JWT_EXPIRE_MINUTES", 1440),
			Issuer:        getEnv("JWT_ISSUER", "rostersync"),
		},
		Migrate:  getEnv("MIGRATE", "0") == "1",
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		CSVRoot:  getEnv("CSV_ROOT", "/var/lib/rostersync/csv"),
		Scheduler: SchedulerConfig{
			Enabled:     getEnv("SCHEDULER_ENABLED", "1") == "1",
			IntervalSec: getEnvInt("SCHEDULER_INTERVAL_SEC", 5),
			Consumers:   getEnvInt("SCHEDULER_CONSUMERS", 1),
		},
		Applier: ApplierConfig{
			ParallelMultiplier: getEnvInt("APPLIER_PARALLEL_MULTIPLIER", 5),
			BatchSize:          getEnvInt("APPLIER_BATCH_SIZE", 50),
		},
		Commit: CommitConfig{
			ChunkSize: getEnvInt("COMMIT_CHUNK_SIZE", 50),
		},
		LMS: LMSConfig{
			TimeoutSec: getEnvInt("LMS_TIMEOUT_SEC", 60),
		},
	}

	// Validate required fields
	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// LoadFromINI loads configuration from INI file with environment variable override
func LoadFromINI(iniPath string) (*Config, error) {
	// Load INI file
	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	// Helper function: get value with priority: ENV > INI > default
	getValue := func(envKey, iniSection, iniKey, defaultValue string) string {
		// Priority 1: Environment variable
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		// Priority 2: INI file
		if value := cfgFile.Section(iniSection).Key(iniKey).String(); value != "" {
			return value
		}
		// Priority 3: Default value
		return defaultValue
	}

	getValueInt := func(envKey, iniSection, iniKey string, defaultValue int) int {
		// Priority 1: Environment variable
		if value := os.Getenv(envKey); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		// Priority 2: INI file
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Int(); err == nil {
				return value
			}
		}
		// Priority 3: Default value
		return defaultValue
	}

	getValueBool := func(envKey, iniSection, iniKey string, defaultValue bool) bool {
		// Priority 1: Environment variable
		if value := os.Getenv(envKey); value != "" {
			return value == "1" || value == "true"
		}
		// Priority 2: INI file
		if value, err := cfgFile.Section(iniSection).Key(iniKey).Bool(); err == nil {
			return value
		}
		// Priority 3: Default value
		return defaultValue
	}

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getValue("MYSQL_DSN", "mysql", "dsn", ""),
		},
		Redis: RedisConfig{
			Addr:     getValue("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: getValue("REDIS_PASS", "redis", "pass", ""),
			DB:       getValueInt("REDIS_DB", "redis", "db", 0),
		},
		JWT: JWTConfig{
			Secret:        getValue("JWT_SECRET", "jwt", "secret", ""),
			ExpireMinutes: getValueInt("JWT_EXPIRE_MINUTES", "jwt", "expire_minutes", 1440),
			Issuer:        getValue("JWT_ISSUER", "jwt", "issuer", "rostersync"),
		},
		Migrate:  getValueBool("MIGRATE", "app", "migrate", false),
		HTTPAddr: getValue("HTTP_ADDR", "http", "addr", ":8080"),
		CSVRoot:  getValue("CSV_ROOT", "app", "csv_root", "/var/lib/rostersync/csv"),
		Scheduler: SchedulerConfig{
			Enabled:     getValueBool("SCHEDULER_ENABLED", "scheduler", "enabled", true),
			IntervalSec: getValueInt("SCHEDULER_INTERVAL_SEC", "scheduler", "interval_sec", 5),
			Consumers:   getValueInt("SCHEDULER_CONSUMERS", "scheduler", "consumers", 1),
		},
		Applier: ApplierConfig{
			ParallelMultiplier: getValueInt("APPLIER_PARALLEL_MULTIPLIER", "applier", "parallel_multiplier", 5),
			BatchSize:          getValueInt("APPLIER_BATCH_SIZE", "applier", "batch_size", 50),
		},
		Commit: CommitConfig{
			ChunkSize: getValueInt("COMMIT_CHUNK_SIZE", "commit", "chunk_size", 50),
		},
		LMS: LMSConfig{
			TimeoutSec: getValueInt("LMS_TIMEOUT_SEC", "lms", "timeout_sec", 60),
		},
	}

	// Validate required fields
	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}
