package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORAGE_DRIVER", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.StorageDriver != DriverMemory {
		t.Fatalf("expected memory driver, got %s", cfg.StorageDriver)
	}
	if cfg.TickInterval != 200*time.Millisecond {
		t.Fatalf("unexpected tick interval: %s", cfg.TickInterval)
	}
	if cfg.MinUploadTime != 1500*time.Millisecond {
		t.Fatalf("unexpected min upload time: %s", cfg.MinUploadTime)
	}
	if cfg.MaxIncrement != 15 {
		t.Fatalf("unexpected max increment: %v", cfg.MaxIncrement)
	}
	if cfg.IDSuffixLength != 9 {
		t.Fatalf("unexpected id suffix length: %d", cfg.IDSuffixLength)
	}
	if cfg.MaxUploadSize != 10<<20 {
		t.Fatalf("unexpected max upload size: %d", cfg.MaxUploadSize)
	}
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORAGE_DRIVER", "floppy")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestLoad_CreatesStorageDirForLocalDriver(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	t.Chdir(t.TempDir())
	t.Setenv("STORAGE_DRIVER", "LOCAL")
	t.Setenv("STORAGE_DIR", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.StorageDriver != DriverLocal {
		t.Fatalf("expected local driver, got %s", cfg.StorageDriver)
	}
	if err := ensureDir(dir); err != nil {
		t.Fatalf("storage dir was not created: %v", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PROGRESS_TICK_INTERVAL", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("ID_SUFFIX_LENGTH=12\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	// godotenv 不覆盖已存在的变量，这里先注册恢复再移除
	t.Setenv("ID_SUFFIX_LENGTH", "")
	os.Unsetenv("ID_SUFFIX_LENGTH")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.IDSuffixLength != 12 {
		t.Fatalf("expected suffix length from .env, got %d", cfg.IDSuffixLength)
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "db", DBPort: 5432, DBName: "filehub", DBSSLMode: "disable"}
	want := "postgres://u:p@db:5432/filehub?sslmode=disable"
	if got := cfg.PostgresDSN(); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
