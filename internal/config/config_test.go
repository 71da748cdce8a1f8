package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	content := `
project_base = "./src"
paths = ["./src/pkg"]
docformat = "ReStructuredText en"
privacy = ["pkg.internal.*:HIDDEN"]
inventories = ["python:https://docs.python.org/3/objects.inv"]

[branches."pkg.*"]
TYPE_CHECKING = false

[exclude]
dirs = [".git"]
files = ["*.log"]

[watch]
debounce = "1s"

[output]
model = "model.json"
inventory = "objects.inv"
`
	tmpfile, err := os.CreateTemp("", "config*.toml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ProjectBase != "./src" {
		t.Errorf("Expected ProjectBase ./src, got %s", cfg.ProjectBase)
	}
	if len(cfg.Paths) != 1 || cfg.Paths[0] != "./src/pkg" {
		t.Errorf("Unexpected Paths: %v", cfg.Paths)
	}
	if cfg.DocFormat != "restructuredtext" {
		t.Errorf("Expected normalized docformat, got %s", cfg.DocFormat)
	}
	if cfg.Watch.Debounce != time.Second {
		t.Errorf("Expected debounce 1s, got %v", cfg.Watch.Debounce)
	}
	if cfg.Output.Model != "model.json" {
		t.Errorf("Expected model output model.json, got %s", cfg.Output.Model)
	}
	if v, ok := cfg.Branches["pkg.*"]["TYPE_CHECKING"]; !ok || v {
		t.Errorf("Unexpected branch override: %v", cfg.Branches)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `docformat = ""`
	tmpfile, err := os.CreateTemp("", "config*.toml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	tmpfile.Write([]byte(content))
	tmpfile.Close()

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("Expected default debounce 500ms, got %v", cfg.Watch.Debounce)
	}
	if cfg.DocFormat != "plaintext" {
		t.Errorf("Expected plaintext default, got %s", cfg.DocFormat)
	}
	if cfg.Introspect.Python != "python3" {
		t.Errorf("Expected python3 default, got %s", cfg.Introspect.Python)
	}
}

func TestNormalizeDocFormat(t *testing.T) {
	tests := []struct {
		in, want string
		ok       bool
	}{
		{"epytext", "epytext", true},
		{"Google", "google", true},
		{"restructuredtext en", "restructuredtext", true},
		{"NUMPY", "numpy", true},
		{"markdown", "", false},
	}
	for _, tt := range tests {
		got, err := NormalizeDocFormat(tt.in)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("NormalizeDocFormat(%q) = %q, %v", tt.in, got, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("NormalizeDocFormat(%q) should fail", tt.in)
		}
	}
}

func TestLoadError(t *testing.T) {
	_, err := Load("nonexistent.toml")
	if err == nil {
		t.Error("Expected error for nonexistent file")
	}

	tmpfile, _ := os.CreateTemp("", "badconfig*.toml")
	defer os.Remove(tmpfile.Name())
	tmpfile.Write([]byte("bad = toml = format"))
	tmpfile.Close()

	_, err = Load(tmpfile.Name())
	if err == nil {
		t.Error("Expected error for malformed TOML")
	}
}
