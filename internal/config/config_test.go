package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Search.Feeds) == 0 {
		t.Error("expected feeds to be populated")
	}
	if len(cfg.Search.Keywords) == 0 {
		t.Error("expected keywords to be populated")
	}
	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected provider 'ollama', got %q", cfg.LLM.Provider)
	}
	if !cfg.Reply.RequireApproval {
		t.Error("expected approval to be required by default")
	}
	if cfg.Workflow.Capacity != 500 {
		t.Errorf("expected capacity 500, got %d", cfg.Workflow.Capacity)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
site:
  name: othercafe
llm:
  provider: gemini
reply:
  require_approval: false
  prefix: "AI 답변"
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Site.Name != "othercafe" {
		t.Errorf("expected site 'othercafe', got %q", cfg.Site.Name)
	}
	if cfg.LLM.Provider != "gemini" {
		t.Errorf("expected provider 'gemini', got %q", cfg.LLM.Provider)
	}
	if cfg.Reply.RequireApproval {
		t.Error("expected require_approval false")
	}
	// Defaults should still be set for unspecified fields
	if cfg.LLM.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama_url, got %q", cfg.LLM.OllamaURL)
	}
	if cfg.Reply.MaxContentChars != 2000 {
		t.Errorf("expected default max_content_chars, got %d", cfg.Reply.MaxContentChars)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"empty site":     "site:\n  name: \"\"\n",
		"bad driver":     "database:\n  driver: mysql\n",
		"bad capacity":   "workflow:\n  capacity: -1\n",
		"malformed yaml": "site: [",
	}
	for name, data := range cases {
		if _, err := parse([]byte(data)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Site.Name != "suhui" {
		t.Errorf("expected site from file, got %q", cfg.Site.Name)
	}
}

func TestResolveConfigPathExplicit(t *testing.T) {
	if _, err := ResolveConfigPath(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit path")
	}

	path := filepath.Join(t.TempDir(), "c.yaml")
	os.WriteFile(path, []byte("{}"), 0o644)
	got, err := ResolveConfigPath(path)
	if err != nil || got != path {
		t.Errorf("expected %q, got %q (%v)", path, got, err)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := &Config{}
	if cfg.GetDataDir() == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
	if cfg.DatabasePath() != filepath.Join("/custom/path", "cafebot.db") {
		t.Errorf("unexpected database path %q", cfg.DatabasePath())
	}
	if cfg.SettingsPath() != filepath.Join("/custom/path", "settings.yaml") {
		t.Errorf("unexpected settings path %q", cfg.SettingsPath())
	}
	if cfg.StopDir() != "/custom/path" {
		t.Errorf("unexpected stop dir %q", cfg.StopDir())
	}
}

func TestSetupLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)

	SetupLogging(Logging{Level: "warn"}, false)
	if logrus.GetLevel() != logrus.WarnLevel {
		t.Errorf("expected warn level, got %s", logrus.GetLevel())
	}
	SetupLogging(Logging{Level: "warn", Format: "json"}, true)
	if logrus.GetLevel() != logrus.DebugLevel {
		t.Errorf("expected verbose to force debug, got %s", logrus.GetLevel())
	}
	SetupLogging(Logging{Level: "nonsense"}, false)
	if logrus.GetLevel() != logrus.InfoLevel {
		t.Errorf("expected info fallback, got %s", logrus.GetLevel())
	}
}
