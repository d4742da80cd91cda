package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Site      Site      `yaml:"site"`
	Search    Search    `yaml:"search"`
	LLM       LLM       `yaml:"llm"`
	Retrieval Retrieval `yaml:"retrieval"`
	Reply     Reply     `yaml:"reply"`
	Posting   Posting   `yaml:"posting"`
	Workflow  Workflow  `yaml:"workflow"`
	Database  Database  `yaml:"database"`
	Output    Output    `yaml:"output"`
	Server    Server    `yaml:"server"`
	Notify    Notify    `yaml:"notify"`
	Backup    Backup    `yaml:"backup"`
	Logging   Logging   `yaml:"logging"`
}

// Site identifies the forum the bot works on. Name scopes all persisted state.
type Site struct {
	Name      string   `yaml:"name"`
	BaseURL   string   `yaml:"base_url"`
	ClubID    string   `yaml:"club_id"`
	MenuIDs   []string `yaml:"menu_ids"`
	Nicknames []string `yaml:"nicknames"`
}

type Search struct {
	Keywords       []string `yaml:"keywords"`
	Feeds          []Feed   `yaml:"feeds"`
	MaxPerKeyword  int      `yaml:"max_per_keyword"`
	FetchContent   bool     `yaml:"fetch_content"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	UserAgent      string   `yaml:"user_agent"`
}

// Feed is a search feed URL template. {keyword}, {club_id} and {menu_id}
// are substituted before fetching.
type Feed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type LLM struct {
	Provider        string `yaml:"provider"`
	Fallback        string `yaml:"fallback"`
	Model           string `yaml:"model"`
	OllamaURL       string `yaml:"ollama_url"`
	OpenAIModel     string `yaml:"openai_model"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	APIKeyEnv       string `yaml:"api_key_env"`
	AzureEndpoint   string `yaml:"azure_endpoint"`
	AzureDeployment string `yaml:"azure_deployment"`
	AzureAPIVersion string `yaml:"azure_api_version"`
	AzureAPIKeyEnv  string `yaml:"azure_api_key_env"`
	GeminiModel     string `yaml:"gemini_model"`
	GeminiBaseURL   string `yaml:"gemini_base_url"`
	GeminiAPIKeyEnv string `yaml:"gemini_api_key_env"`
	MaxTokens       int    `yaml:"max_tokens"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

type Retrieval struct {
	Enabled        bool   `yaml:"enabled"`
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type Reply struct {
	Prefix          string `yaml:"prefix"`
	RequireApproval bool   `yaml:"require_approval"`
	MaxContentChars int    `yaml:"max_content_chars"`
	FeedbackReasons int    `yaml:"feedback_reasons"`
}

type Posting struct {
	AgentURL       string `yaml:"agent_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type Workflow struct {
	Capacity     int    `yaml:"capacity"`
	SettingsFile string `yaml:"settings_file"`
	StopDir      string `yaml:"stop_dir"`
	MaxRestarts  int    `yaml:"max_restarts"`
	SliceSeconds int    `yaml:"slice_seconds"`
}

type Database struct {
	Driver string `yaml:"driver"`
	DSNEnv string `yaml:"dsn_env"`
	Path   string `yaml:"path"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Notify struct {
	Teams Teams `yaml:"teams"`
	Email Email `yaml:"email"`
}

type Teams struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookEnv string `yaml:"webhook_env"`
}

type Email struct {
	Enabled     bool     `yaml:"enabled"`
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	Username    string   `yaml:"username"`
	PasswordEnv string   `yaml:"password_env"`
	From        string   `yaml:"from"`
	To          []string `yaml:"to"`
}

type Backup struct {
	Enabled             bool   `yaml:"enabled"`
	Schedule            string `yaml:"schedule"`
	AccountURL          string `yaml:"account_url"`
	Container           string `yaml:"container"`
	ConnectionStringEnv string `yaml:"connection_string_env"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigDir returns the XDG config directory for cafebot.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "cafebot")
}

// DataDir returns the XDG data directory for cafebot.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "cafebot")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/cafebot/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'cafebot init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Site: Site{Name: "default"},
		Search: Search{
			MaxPerKeyword:  20,
			TimeoutSeconds: 30,
			UserAgent:      "Mozilla/5.0 (compatible; cafebot/1.0)",
		},
		LLM: LLM{
			Provider:        "ollama",
			Model:           "qwen2.5:7b",
			OllamaURL:       "http://localhost:11434",
			OpenAIModel:     "gpt-4o-mini",
			OpenAIBaseURL:   "https://api.openai.com/v1",
			APIKeyEnv:       "OPENAI_API_KEY",
			AzureAPIVersion: "2024-06-01",
			AzureAPIKeyEnv:  "AZURE_OPENAI_API_KEY",
			GeminiModel:     "gemini-1.5-flash",
			GeminiBaseURL:   "https://generativelanguage.googleapis.com/v1beta",
			GeminiAPIKeyEnv: "GEMINI_API_KEY",
			MaxTokens:       1024,
			TimeoutSeconds:  120,
		},
		Retrieval: Retrieval{TimeoutSeconds: 60},
		Reply: Reply{
			RequireApproval: true,
			MaxContentChars: 2000,
			FeedbackReasons: 10,
		},
		Posting:  Posting{TimeoutSeconds: 120},
		Workflow: Workflow{Capacity: 500, SliceSeconds: 5},
		Database: Database{Driver: "sqlite", DSNEnv: "CAFEBOT_DATABASE_URL"},
		Server:   Server{Host: "127.0.0.1", Port: 8000},
		Notify: Notify{
			Teams: Teams{WebhookEnv: "TEAMS_WEBHOOK_URL"},
			Email: Email{Port: 587, PasswordEnv: "SMTP_PASSWORD"},
		},
		Backup: Backup{
			Schedule:            "0 3 * * *",
			Container:           "cafebot-backups",
			ConnectionStringEnv: "AZURE_STORAGE_CONNECTION_STRING",
		},
		Logging: Logging{Level: "info", Format: "text"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Site.Name) == "" {
		return fmt.Errorf("site.name must not be empty")
	}
	switch strings.ToLower(c.Database.Driver) {
	case "", "sqlite", "postgres", "postgresql", "pgx":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.Workflow.Capacity < 0 {
		return fmt.Errorf("workflow.capacity must not be negative")
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DatabasePath returns the SQLite file path.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.GetDataDir(), "cafebot.db")
}

// SettingsPath returns the reloadable bot settings file.
func (c *Config) SettingsPath() string {
	if c.Workflow.SettingsFile != "" {
		return c.Workflow.SettingsFile
	}
	return filepath.Join(c.GetDataDir(), "settings.yaml")
}

// StopDir returns the directory holding stop flag files.
func (c *Config) StopDir() string {
	if c.Workflow.StopDir != "" {
		return c.Workflow.StopDir
	}
	return c.GetDataDir()
}

// Env returns the value of the environment variable named by key, or "".
func Env(key string) string {
	if key == "" {
		return ""
	}
	return os.Getenv(key)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
