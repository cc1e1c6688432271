package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("WAVE_API_KEY", "")
	if _, err := Load(""); err == nil {
		t.Error("Load() should fail without WAVE_API_KEY")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WAVE_API_KEY", "Basic dGVzdDp0ZXN0")
	t.Setenv("WAVE_API_URL", "")
	t.Setenv("CONSOLE_PASSWORD", "")
	t.Setenv("PORT", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WaveURL != defaultWaveURL {
		t.Errorf("WaveURL = %q, want default", cfg.WaveURL)
	}
	if cfg.WaveAuthorization != "Basic dGVzdDp0ZXN0" {
		t.Errorf("WaveAuthorization = %q", cfg.WaveAuthorization)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.ConsolePassword != "" {
		t.Errorf("ConsolePassword = %q, want empty", cfg.ConsolePassword)
	}
}

func TestLoadEnvFile(t *testing.T) {
	// godotenv never overrides variables already present in the
	// environment, so these must be truly unset. t.Setenv registers the
	// restore before the unset.
	for _, key := range []string{"WAVE_API_KEY", "PORT"} {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatal(err)
		}
	}

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	contents := "WAVE_API_KEY=file-key\nPORT=9090\n"
	if err := os.WriteFile(envFile, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(envFile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WaveAuthorization != "file-key" {
		t.Errorf("WaveAuthorization = %q, want file-key", cfg.WaveAuthorization)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
}

func TestLoadMissingEnvFileIsTolerated(t *testing.T) {
	t.Setenv("WAVE_API_KEY", "env-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	if err != nil {
		t.Fatalf("Load() error = %v, want missing file tolerated", err)
	}
	if cfg.WaveAuthorization != "env-key" {
		t.Errorf("WaveAuthorization = %q", cfg.WaveAuthorization)
	}
}
