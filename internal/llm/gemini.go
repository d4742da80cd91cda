package llm

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// GeminiProvider calls the Google Generative Language API.
type GeminiProvider struct {
	Model  string
	apiKey string
	client *resty.Client
}

// NewGeminiProvider creates a Gemini provider.
func NewGeminiProvider(model, baseURL, apiKey string, timeout time.Duration) *GeminiProvider {
	return &GeminiProvider{Model: model, apiKey: apiKey, client: newClient(baseURL, timeout)}
}

func (g *GeminiProvider) Name() string { return "gemini/" + g.Model }

func (g *GeminiProvider) IsConfigured() bool {
	return g.apiKey != "" && g.Model != ""
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// Generate sends a prompt and concatenates the text parts of the first candidate.
func (g *GeminiProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if g.apiKey == "" {
		return "", &ProviderError{Provider: g.Name(), Err: fmt.Errorf("API key not configured")}
	}

	body := map[string]any{
		"contents": []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		"generationConfig": map[string]any{
			"maxOutputTokens": maxTokens,
			"temperature":     temperature,
		},
	}

	var result struct {
		Candidates []struct {
			Content geminiContent `json:"content"`
		} `json:"candidates"`
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("key", g.apiKey).
		SetBody(body).
		SetResult(&result).
		Post(fmt.Sprintf("/models/%s:generateContent", url.PathEscape(g.Model)))
	if err != nil {
		return "", transportError(g.Name(), err)
	}
	if resp.StatusCode() != 200 {
		return "", statusError(g.Name(), resp.StatusCode(), resp.Body())
	}
	if len(result.Candidates) == 0 {
		return "", &ProviderError{Provider: g.Name(), Err: fmt.Errorf("no candidates in response")}
	}

	var b strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}
