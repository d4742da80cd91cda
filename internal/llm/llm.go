package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// Provider is the interface for LLM providers.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	IsConfigured() bool
}

// Config selects and configures providers.
type Config struct {
	Provider        string
	Fallback        string
	Model           string
	OllamaURL       string
	OpenAIModel     string
	OpenAIBaseURL   string
	OpenAIAPIKey    string
	AzureEndpoint   string
	AzureDeployment string
	AzureAPIVersion string
	AzureAPIKey     string
	GeminiModel     string
	GeminiBaseURL   string
	GeminiAPIKey    string
	Timeout         time.Duration
}

const temperature = 0.3

func newClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			// Decode results even when a gateway mislabels the body.
			r.ForceContentType("application/json")
			return nil
		})
}

// NewProvider builds a single provider by name.
func NewProvider(name string, cfg Config) (Provider, error) {
	switch strings.ToLower(name) {
	case "ollama":
		return NewOllamaProvider(cfg.Model, cfg.OllamaURL, cfg.Timeout), nil
	case "openai":
		return NewOpenAIProvider(cfg.OpenAIModel, defaultIfEmpty(cfg.OpenAIBaseURL, "https://api.openai.com/v1"), cfg.OpenAIAPIKey, cfg.Timeout), nil
	case "azure", "azure-openai":
		return NewAzureOpenAIProvider(cfg.AzureEndpoint, cfg.AzureDeployment, cfg.AzureAPIVersion, cfg.AzureAPIKey, cfg.Timeout), nil
	case "gemini":
		return NewGeminiProvider(cfg.GeminiModel, defaultIfEmpty(cfg.GeminiBaseURL, "https://generativelanguage.googleapis.com/v1beta"), cfg.GeminiAPIKey, cfg.Timeout), nil
	default:
		return nil, ErrUnsupportedProvider{Provider: name}
	}
}

// CreateProvider creates the configured provider, wrapped with its fallback
// when one is set. A primary that is not configured at start-up is skipped.
func CreateProvider(cfg Config) (Provider, error) {
	primary, err := NewProvider(cfg.Provider, cfg)
	if err != nil {
		return nil, err
	}

	var secondary Provider
	if cfg.Fallback != "" && !strings.EqualFold(cfg.Fallback, cfg.Provider) {
		secondary, err = NewProvider(cfg.Fallback, cfg)
		if err != nil {
			return nil, err
		}
		if !secondary.IsConfigured() {
			logrus.Debugf("fallback provider %s not configured", secondary.Name())
			secondary = nil
		}
	}

	if !primary.IsConfigured() {
		if secondary == nil {
			return nil, fmt.Errorf("no LLM provider available: %s is not configured", primary.Name())
		}
		logrus.Warnf("%s not available, using %s", primary.Name(), secondary.Name())
		return secondary, nil
	}

	logrus.Infof("using %s", primary.Name())
	if secondary == nil {
		return primary, nil
	}
	return NewFallbackProvider(primary, secondary), nil
}

func defaultIfEmpty(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
