package llm

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// OllamaProvider is a local Ollama LLM provider.
type OllamaProvider struct {
	Model  string
	client *resty.Client
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(model, baseURL string, timeout time.Duration) *OllamaProvider {
	return &OllamaProvider{Model: model, client: newClient(baseURL, timeout)}
}

func (o *OllamaProvider) Name() string { return "ollama/" + o.Model }

// IsConfigured checks if Ollama is running and the model is available.
func (o *OllamaProvider) IsConfigured() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	resp, err := o.client.R().SetContext(ctx).SetResult(&result).Get("/api/tags")
	if err != nil || resp.StatusCode() != 200 {
		return false
	}

	modelBase := strings.SplitN(o.Model, ":", 2)[0]
	for _, m := range result.Models {
		if strings.Contains(m.Name, modelBase) {
			return true
		}
	}
	logrus.Warnf("Ollama model %q not found", o.Model)
	return false
}

// Generate sends a prompt to Ollama and returns the response.
func (o *OllamaProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body := map[string]any{
		"model": o.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"stream": false,
		"options": map[string]any{
			"num_predict": maxTokens,
			"temperature": temperature,
		},
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	resp, err := o.client.R().SetContext(ctx).SetBody(body).SetResult(&result).Post("/api/chat")
	if err != nil {
		return "", transportError("ollama", err)
	}
	if resp.StatusCode() != 200 {
		return "", statusError("ollama", resp.StatusCode(), resp.Body())
	}
	return result.Message.Content, nil
}
