package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	result := GetEnv("TEST_NONEXISTENT_VAR", "default")
	if result != "default" {
		t.Errorf("Expected 'default', got %q", result)
	}

	os.Setenv("TEST_GET_ENV", "custom")
	defer os.Unsetenv("TEST_GET_ENV")

	result = GetEnv("TEST_GET_ENV", "default")
	if result != "custom" {
		t.Errorf("Expected 'custom', got %q", result)
	}
}

func TestGetIntEnv(t *testing.T) {
	result := GetIntEnv("TEST_NONEXISTENT_INT", 1800)
	if result != 1800 {
		t.Errorf("Expected 1800, got %d", result)
	}

	os.Setenv("TEST_INT_ENV", "123")
	defer os.Unsetenv("TEST_INT_ENV")

	result = GetIntEnv("TEST_INT_ENV", 1800)
	if result != 123 {
		t.Errorf("Expected 123, got %d", result)
	}

	os.Setenv("TEST_INVALID_INT", "not-a-number")
	defer os.Unsetenv("TEST_INVALID_INT")

	result = GetIntEnv("TEST_INVALID_INT", 1800)
	if result != 1800 {
		t.Errorf("Expected 1800 for invalid int, got %d", result)
	}
}

func TestGetDurationEnv(t *testing.T) {
	defaultDuration := 5 * time.Second

	result := GetDurationEnv("TEST_NONEXISTENT_DURATION", defaultDuration)
	if result != defaultDuration {
		t.Errorf("Expected %v, got %v", defaultDuration, result)
	}

	os.Setenv("TEST_DURATION_ENV", "30s")
	defer os.Unsetenv("TEST_DURATION_ENV")

	result = GetDurationEnv("TEST_DURATION_ENV", defaultDuration)
	if result != 30*time.Second {
		t.Errorf("Expected 30s, got %v", result)
	}

	os.Setenv("TEST_INVALID_DURATION", "not-a-duration")
	defer os.Unsetenv("TEST_INVALID_DURATION")

	result = GetDurationEnv("TEST_INVALID_DURATION", defaultDuration)
	if result != defaultDuration {
		t.Errorf("Expected default for invalid duration, got %v", result)
	}
}

func TestGetSecretFile(t *testing.T) {
	if got := GetSecretFile(""); got != "" {
		t.Errorf("Expected empty string for empty path, got %q", got)
	}

	if got := GetSecretFile("/nonexistent/secret"); got != "" {
		t.Errorf("Expected empty string for missing file, got %q", got)
	}

	path := filepath.Join(t.TempDir(), "api_key")
	if err := os.WriteFile(path, []byte("  s3cret\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := GetSecretFile(path); got != "s3cret" {
		t.Errorf("Expected trimmed secret, got %q", got)
	}
}

func TestLoadServiceConfig(t *testing.T) {
	os.Setenv("PORT", "8050")
	defer os.Unsetenv("PORT")

	cfg := LoadServiceConfig()
	if cfg.Port != "8050" {
		t.Errorf("Expected port 8050, got %q", cfg.Port)
	}
	if cfg.MetricsPort != "9090" {
		t.Errorf("Expected default metrics port 9090, got %q", cfg.MetricsPort)
	}
	if cfg.DefaultUsername != "admin" {
		t.Errorf("Expected default username admin, got %q", cfg.DefaultUsername)
	}
}
