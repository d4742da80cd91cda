package llm

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// OpenAIProvider talks to an OpenAI-compatible chat completions API. The
// Azure variant differs only in its path and auth header.
type OpenAIProvider struct {
	Model  string
	name   string
	path   string
	query  map[string]string
	apiKey string
	azure  bool
	client *resty.Client
}

// NewOpenAIProvider creates a provider for the OpenAI API.
func NewOpenAIProvider(model, baseURL, apiKey string, timeout time.Duration) *OpenAIProvider {
	return &OpenAIProvider{
		Model:  model,
		name:   "openai/" + model,
		path:   "/chat/completions",
		apiKey: apiKey,
		client: newClient(baseURL, timeout),
	}
}

// NewAzureOpenAIProvider creates a provider for an Azure OpenAI deployment.
func NewAzureOpenAIProvider(endpoint, deployment, apiVersion, apiKey string, timeout time.Duration) *OpenAIProvider {
	return &OpenAIProvider{
		Model:  deployment,
		name:   "azure/" + deployment,
		path:   fmt.Sprintf("/openai/deployments/%s/chat/completions", url.PathEscape(deployment)),
		query:  map[string]string{"api-version": apiVersion},
		apiKey: apiKey,
		azure:  true,
		client: newClient(endpoint, timeout),
	}
}

func (o *OpenAIProvider) Name() string { return o.name }

// IsConfigured checks if the API key (and for Azure, the endpoint) is set.
func (o *OpenAIProvider) IsConfigured() bool {
	if o.azure && (o.client.BaseURL == "" || o.Model == "") {
		return false
	}
	return o.apiKey != ""
}

// Generate sends a prompt and returns the first choice.
func (o *OpenAIProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if o.apiKey == "" {
		return "", &ProviderError{Provider: o.name, Err: fmt.Errorf("API key not configured")}
	}

	body := map[string]any{
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}
	if !o.azure {
		body["model"] = o.Model
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	req := o.client.R().SetContext(ctx).SetBody(body).SetResult(&result).SetQueryParams(o.query)
	if o.azure {
		req.SetHeader("api-key", o.apiKey)
	} else {
		req.SetAuthToken(o.apiKey)
	}

	resp, err := req.Post(o.path)
	if err != nil {
		return "", transportError(o.name, err)
	}
	if resp.StatusCode() != 200 {
		return "", statusError(o.name, resp.StatusCode(), resp.Body())
	}
	if len(result.Choices) == 0 {
		return "", &ProviderError{Provider: o.name, Err: fmt.Errorf("no choices in response")}
	}
	return result.Choices[0].Message.Content, nil
}
