package config

import (
	"strings"
	"testing"
)

func setPostgresEnv(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_DB", "measurements")
	t.Setenv("POSTGRES_USER", "app")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_HOST", "localhost")
}

func TestLoadConfigDefaults(t *testing.T) {
	setPostgresEnv(t)

	cfg, err := LoadConfig([]string{"power", "flow"})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPPort != "8080" {
		t.Fatalf("HTTPPort = %q, want 8080", cfg.HTTPPort)
	}
	if cfg.PostgresPort != "5432" {
		t.Fatalf("PostgresPort = %q, want 5432", cfg.PostgresPort)
	}
	if cfg.StorageDriver != DriverPostgres {
		t.Fatalf("StorageDriver = %q, want postgres", cfg.StorageDriver)
	}
	if cfg.StorageReset {
		t.Fatal("StorageReset defaults to true, want false")
	}
	if cfg.MaxConns != 4 {
		t.Fatalf("MaxConns = %d, want kinds+2 = 4", cfg.MaxConns)
	}
	if len(cfg.Kinds) != 2 {
		t.Fatalf("Kinds = %v, want the two arguments", cfg.Kinds)
	}
}

func TestLoadConfigRequiresKinds(t *testing.T) {
	setPostgresEnv(t)

	if _, err := LoadConfig(nil); err == nil {
		t.Fatal("LoadConfig accepted an empty kind list")
	}
}

func TestLoadConfigRequiresPostgresEnv(t *testing.T) {
	setPostgresEnv(t)
	t.Setenv("POSTGRES_PASSWORD", "")

	_, err := LoadConfig([]string{"power"})
	if err == nil {
		t.Fatal("LoadConfig accepted an incomplete postgres configuration")
	}
	if !strings.Contains(err.Error(), "POSTGRES_PASSWORD") {
		t.Fatalf("error %q does not name the missing variables", err)
	}
}

func TestLoadConfigMemoryDriverSkipsPostgresEnv(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := LoadConfig([]string{"power"})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.StorageDriver != DriverMemory {
		t.Fatalf("StorageDriver = %q, want memory", cfg.StorageDriver)
	}
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	setPostgresEnv(t)
	t.Setenv("STORAGE_DRIVER", "sqlite")

	if _, err := LoadConfig([]string{"power"}); err == nil {
		t.Fatal("LoadConfig accepted an unsupported driver")
	}
}

func TestLoadConfigMaxConnsOverride(t *testing.T) {
	setPostgresEnv(t)
	t.Setenv("POSTGRES_MAX_CONNS", "10")

	cfg, err := LoadConfig([]string{"power"})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MaxConns != 10 {
		t.Fatalf("MaxConns = %d, want 10", cfg.MaxConns)
	}

	t.Setenv("POSTGRES_MAX_CONNS", "zero")
	if _, err := LoadConfig([]string{"power"}); err == nil {
		t.Fatal("LoadConfig accepted a non-numeric POSTGRES_MAX_CONNS")
	}
}

func TestLoadConfigStorageReset(t *testing.T) {
	setPostgresEnv(t)
	t.Setenv("STORAGE_RESET", "true")

	cfg, err := LoadConfig([]string{"power"})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.StorageReset {
		t.Fatal("StorageReset = false with STORAGE_RESET=true")
	}

	t.Setenv("STORAGE_RESET", "banana")
	if _, err := LoadConfig([]string{"power"}); err == nil {
		t.Fatal("LoadConfig accepted a non-boolean STORAGE_RESET")
	}
}

func TestDSN(t *testing.T) {
	setPostgresEnv(t)

	cfg, err := LoadConfig([]string{"power"})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	dsn := cfg.DSN()
	for _, want := range []string{"host=localhost", "dbname=measurements", "user=app", "sslmode=disable"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("DSN %q missing %q", dsn, want)
		}
	}
}

func TestCORSOriginsList(t *testing.T) {
	setPostgresEnv(t)
	t.Setenv("CORS_ORIGINS", "http://localhost:5173, https://dash.example.com")

	cfg, err := LoadConfig([]string{"power"})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://dash.example.com" {
		t.Fatalf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}
