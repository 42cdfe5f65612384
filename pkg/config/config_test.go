package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	os.Unsetenv("DATABASE_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check defaults
	if cfg.Port != "8089" {
		t.Errorf("Expected Port to be 8089, got %s", cfg.Port)
	}

	if cfg.Env != "development" {
		t.Errorf("Expected Env to be development, got %s", cfg.Env)
	}

	if cfg.Database.Enabled() {
		t.Error("Expected database to be disabled without DATABASE_URL")
	}

	if cfg.Pipeline.Workers < 1 {
		t.Errorf("Expected at least one worker, got %d", cfg.Pipeline.Workers)
	}
}

func TestLoadWithCustomValues(t *testing.T) {
	os.Setenv("PORT", "9000")
	os.Setenv("ENV", "production")
	os.Setenv("DATA_DIR", "/srv/nse")
	os.Setenv("MIN_LIQUIDITY", "250000")
	os.Setenv("TOP_N", "20")
	os.Setenv("LOG_LEVEL", "debug")

	defer func() {
		os.Unsetenv("PORT")
		os.Unsetenv("ENV")
		os.Unsetenv("DATA_DIR")
		os.Unsetenv("MIN_LIQUIDITY")
		os.Unsetenv("TOP_N")
		os.Unsetenv("LOG_LEVEL")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "9000" {
		t.Errorf("Expected Port to be 9000, got %s", cfg.Port)
	}

	if cfg.Env != "production" {
		t.Errorf("Expected Env to be production, got %s", cfg.Env)
	}

	if cfg.Pipeline.MinLiquidity != 250000 {
		t.Errorf("Expected MinLiquidity to be 250000, got %v", cfg.Pipeline.MinLiquidity)
	}

	if cfg.Pipeline.TopN != 20 {
		t.Errorf("Expected TopN to be 20, got %d", cfg.Pipeline.TopN)
	}

	if got := cfg.Pipeline.ModelDir(); got != filepath.Join("/srv/nse", "models") {
		t.Errorf("Expected model dir under DATA_DIR, got %s", got)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("Expected LogLevel to be debug, got %s", cfg.LogLevel)
	}
}

func TestValidateInvalidEnv(t *testing.T) {
	os.Setenv("ENV", "invalid")
	defer os.Unsetenv("ENV")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when ENV is invalid, got nil")
	}
}

func TestValidateDeliveryPctOutOfRange(t *testing.T) {
	os.Setenv("MIN_DELIVERY_PCT", "130")
	defer os.Unsetenv("MIN_DELIVERY_PCT")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when MIN_DELIVERY_PCT > 100, got nil")
	}
}

func TestSchedulerDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Scheduler.TrainSchedule != "0 30 19 * * 1-5" {
		t.Errorf("Unexpected train schedule %q", cfg.Scheduler.TrainSchedule)
	}

	if cfg.Scheduler.Timezone != "Asia/Kolkata" {
		t.Errorf("Expected Asia/Kolkata, got %s", cfg.Scheduler.Timezone)
	}

	if cfg.API.RateLimit != 10 || cfg.API.Burst != 20 {
		t.Errorf("Unexpected API limits %v/%d", cfg.API.RateLimit, cfg.API.Burst)
	}
}

func TestValidateInvalidTimezone(t *testing.T) {
	os.Setenv("SCHEDULER_TZ", "Mars/Olympus")
	defer os.Unsetenv("SCHEDULER_TZ")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when SCHEDULER_TZ is unknown, got nil")
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	os.Setenv("TEST_DURATION", "2h")
	defer os.Unsetenv("TEST_DURATION")

	duration := getEnvAsDuration("TEST_DURATION", "1h")
	expected := 2 * time.Hour

	if duration != expected {
		t.Errorf("Expected duration to be %v, got %v", expected, duration)
	}
}

func TestGetEnvAsFloat(t *testing.T) {
	os.Setenv("TEST_FLOAT", "30.5")
	defer os.Unsetenv("TEST_FLOAT")

	value := getEnvAsFloat("TEST_FLOAT", 1)
	if value != 30.5 {
		t.Errorf("Expected value to be 30.5, got %v", value)
	}

	if got := getEnvAsFloat("TEST_FLOAT_MISSING", 7); got != 7 {
		t.Errorf("Expected default 7, got %v", got)
	}
}

func TestGetEnvAsBool(t *testing.T) {
	os.Setenv("TEST_BOOL", "true")
	defer os.Unsetenv("TEST_BOOL")

	value := getEnvAsBool("TEST_BOOL", false)
	if value != true {
		t.Errorf("Expected value to be true, got %v", value)
	}
}
