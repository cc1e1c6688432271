package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefault(t *testing.T) {
	p, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p != Default() {
		t.Errorf("Load(\"\") = %+v, want built-in default", p)
	}
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := "time_zone: Europe/Berlin\npreferred_app: com.example.player\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.TimeZone != "Europe/Berlin" {
		t.Errorf("TimeZone = %q", p.TimeZone)
	}
	if p.PreferredApp != "com.example.player" {
		t.Errorf("PreferredApp = %q", p.PreferredApp)
	}
	// Unset fields keep their defaults.
	if p.AcceptableSource != "CUSTOM" || p.ExpectedPower != "ON" {
		t.Errorf("Defaults not preserved: %+v", p)
	}
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(":\n\t- nope"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected error for malformed policy file")
	}
}

func TestCheckSelectorAny(t *testing.T) {
	if (CheckSelector{}).Any() {
		t.Error("Empty selector should not report Any")
	}
	if !(CheckSelector{PowerSettings: true}).Any() {
		t.Error("Selector with a check should report Any")
	}
	if !All().Any() {
		t.Error("All() should report Any")
	}
}
