package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	// Set required environment variables
	os.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/test")
	os.Setenv("JWT_SECRET", "test-secret")
	defer func() {
		os.Unsetenv("MYSQL_DSN")
		os.Unsetenv("JWT_SECRET")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.MySQL.DSN == "" {
		t.Error("MySQL DSN should not be empty")
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("Expected HTTPAddr :8080, got %s", cfg.HTTPAddr)
	}

	if cfg.Scheduler.IntervalSec != 5 {
		t.Errorf("Expected scheduler interval 5, got %d", cfg.Scheduler.IntervalSec)
	}

	if cfg.Applier.ParallelMultiplier != 5 {
		t.Errorf("Expected applier parallel multiplier 5, got %d", cfg.Applier.ParallelMultiplier)
	}

	if cfg.Commit.ChunkSize != 50 {
		t.Errorf("Expected commit chunk size 50, got %d", cfg.Commit.ChunkSize)
	}
}

func TestLoad_MissingMySQLDSN(t *testing.T) {
	// Ensure MYSQL_DSN is not set
	os.Unsetenv("MYSQL_DSN")
	os.Setenv("JWT_SECRET", "test-secret")
	defer os.Unsetenv("JWT_SECRET")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when MYSQL_DSN is missing")
	}
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	os.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/test")
	os.Unsetenv("JWT_SECRET")
	defer os.Unsetenv("MYSQL_DSN")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when JWT_SECRET is missing")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("MYSQL_DSN", "custom:dsn@tcp(localhost:3306)/custom")
	os.Setenv("JWT_SECRET", "test-secret")
	os.Setenv("REDIS_ADDR", "redis.example.com:6379")
	os.Setenv("SCHEDULER_INTERVAL_SEC", "30")
	os.Setenv("APPLIER_BATCH_SIZE", "100")
	os.Setenv("CSV_ROOT", "/data/feeds")

	defer func() {
		os.Unsetenv("MYSQL_DSN")
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("REDIS_ADDR")
		os.Unsetenv("SCHEDULER_INTERVAL_SEC")
		os.Unsetenv("APPLIER_BATCH_SIZE")
		os.Unsetenv("CSV_ROOT")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.MySQL.DSN != "custom:dsn@tcp(localhost:3306)/custom" {
		t.Errorf("Expected custom MySQL DSN, got %s", cfg.MySQL.DSN)
	}

	if cfg.Redis.Addr != "redis.example.com:6379" {
		t.Errorf("Expected custom Redis addr, got %s", cfg.Redis.Addr)
	}

	if cfg.Scheduler.IntervalSec != 30 {
		t.Errorf("Expected scheduler interval 30, got %d", cfg.Scheduler.IntervalSec)
	}

	if cfg.Applier.BatchSize != 100 {
		t.Errorf("Expected applier batch size 100, got %d", cfg.Applier.BatchSize)
	}

	if cfg.CSVRoot != "/data/feeds" {
		t.Errorf("Expected CSV root /data/feeds, got %s", cfg.CSVRoot)
	}
}
