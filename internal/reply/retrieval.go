package reply

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Retriever executes planned function calls against the knowledge backend.
type Retriever interface {
	Execute(ctx context.Context, calls []FunctionCall) (map[string]string, error)
}

// HTTPRetriever calls POST {base}/api/functions/execute.
type HTTPRetriever struct {
	client *resty.Client
}

// NewHTTPRetriever creates a retriever for the backend at baseURL.
func NewHTTPRetriever(baseURL, apiKey string, timeout time.Duration) *HTTPRetriever {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &HTTPRetriever{client: client}
}

type executeRequest struct {
	FunctionCalls []FunctionCall `json:"function_calls"`
}

type executeResponse struct {
	Results map[string]any `json:"results"`
}

// Execute runs the calls and returns each function's result as text.
func (r *HTTPRetriever) Execute(ctx context.Context, calls []FunctionCall) (map[string]string, error) {
	var out executeResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(executeRequest{FunctionCalls: calls}).
		SetResult(&out).
		Post("/api/functions/execute")
	if err != nil {
		return nil, fmt.Errorf("retrieval request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("retrieval backend returned %d: %s", resp.StatusCode(), resp.String())
	}

	results := make(map[string]string, len(out.Results))
	for name, v := range out.Results {
		switch val := v.(type) {
		case string:
			results[name] = val
		case nil:
		default:
			results[name] = fmt.Sprint(val)
		}
	}
	return results, nil
}

// FormatResults renders retrieval results as a prompt section, ordered by name.
func FormatResults(results map[string]string) string {
	names := make([]string, 0, len(results))
	for name, text := range results {
		if strings.TrimSpace(text) != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "### %s\n%s", name, strings.TrimSpace(results[name]))
	}
	return b.String()
}
