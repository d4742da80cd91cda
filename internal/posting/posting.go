// Package posting submits approved replies to the forum through a
// browser-side agent.
package posting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Outcome is what happened to a posting attempt.
type Outcome string

const (
	Posted         Outcome = "posted"
	AlreadyPresent Outcome = "already_present"
	Failed         Outcome = "failed"
)

// Result of a posting attempt. Reason is set for Failed.
type Result struct {
	Outcome Outcome
	Reason  string
}

// Action posts a reply under a post.
type Action interface {
	// Ready reports whether a posting session is available.
	Ready(ctx context.Context) error
	Post(ctx context.Context, url, text string) (Result, error)
}

// HTTPAction drives a posting agent over HTTP.
//
// The agent exposes GET /health and POST /post. The post body carries the
// bot nicknames so the agent can report already_present when one of them
// has already commented.
type HTTPAction struct {
	client    *resty.Client
	nicknames []string
}

// NewHTTPAction creates an action for the agent at baseURL.
func NewHTTPAction(baseURL, apiKey string, nicknames []string, timeout time.Duration) *HTTPAction {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &HTTPAction{client: client, nicknames: nicknames}
}

type postRequest struct {
	URL       string   `json:"url"`
	Text      string   `json:"text"`
	Nicknames []string `json:"nicknames,omitempty"`
}

type postResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Ready checks the agent's health endpoint.
func (a *HTTPAction) Ready(ctx context.Context) error {
	resp, err := a.client.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("posting agent unreachable: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("posting agent not ready: status %d", resp.StatusCode())
	}
	return nil
}

// Post submits text as a comment on url. A transport error is returned as an
// error; anything the agent reports comes back as a Result.
func (a *HTTPAction) Post(ctx context.Context, url, text string) (Result, error) {
	var out postResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(postRequest{URL: url, Text: text, Nicknames: a.nicknames}).
		SetResult(&out).
		Post("/post")
	if err != nil {
		return Result{}, fmt.Errorf("posting agent request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return Result{Outcome: Failed, Reason: fmt.Sprintf("agent returned %d: %s", resp.StatusCode(), truncate(resp.String(), 200))}, nil
	}

	switch Outcome(strings.ToLower(strings.TrimSpace(out.Status))) {
	case Posted:
		return Result{Outcome: Posted}, nil
	case AlreadyPresent:
		return Result{Outcome: AlreadyPresent}, nil
	case Failed:
		reason := out.Reason
		if reason == "" {
			reason = "agent reported failure"
		}
		return Result{Outcome: Failed, Reason: reason}, nil
	default:
		return Result{Outcome: Failed, Reason: fmt.Sprintf("unknown agent status %q", out.Status)}, nil
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
