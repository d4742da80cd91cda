package reply

import (
	"context"
	"fmt"
	"strings"

	"github.com/TobiSchelling/cafebot/internal/llm"
)

const queryPrompt = `You screen forum posts for an assistant that answers admissions questions.

Decide whether this post asks something the assistant can usefully answer. Posts that are
chatter, advertisements, announcements or already fully answered are NOT relevant.

Reviewers rejected earlier drafts for these reasons; avoid posts that would lead to them:
%s

If relevant, list the backend functions to call to gather facts for the answer.

Post Title: %s
Post Content:
%s

Existing replies:
%s

Respond with ONLY this JSON:
{
    "relevant": true or false,
    "reason": "One sentence explaining your decision",
    "function_calls": [{"name": "function_name", "args": {"key": "value"}}]
}`

// FunctionCall is a retrieval call planned by the query stage.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Plan is the query stage's verdict.
type Plan struct {
	Relevant bool
	Reason   string
	Calls    []FunctionCall
}

// FeedbackFunc returns reviewer cancellation reasons, most frequent first.
type FeedbackFunc func() ([]string, error)

// QueryAgent runs the relevance and planning stage.
type QueryAgent struct {
	provider  llm.Provider
	maxTokens int
	maxChars  int
	feedback  FeedbackFunc
}

// NewQueryAgent creates a query agent. feedback may be nil.
func NewQueryAgent(provider llm.Provider, feedback FeedbackFunc) *QueryAgent {
	return &QueryAgent{provider: provider, maxTokens: 512, maxChars: 4000, feedback: feedback}
}

// Plan asks the model whether to answer and what to retrieve. An unparsable
// response is treated as "not relevant".
func (q *QueryAgent) Plan(ctx context.Context, req Request) (*Plan, error) {
	if q.provider == nil {
		return nil, fmt.Errorf("no LLM provider configured")
	}

	prompt := fmt.Sprintf(queryPrompt,
		q.feedbackText(),
		req.Title,
		clip(req.Body, q.maxChars, req.Title),
		formatReplies(req.ExistingReplies),
	)

	responseText, err := q.provider.Generate(ctx, prompt, q.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("query stage: %w", err)
	}

	parsed := llm.ParseJSONResponse(responseText)
	if parsed == nil {
		return &Plan{Relevant: false, Reason: "query response could not be parsed"}, nil
	}

	plan := &Plan{
		Relevant: getBool(parsed, "relevant", false),
		Reason:   getString(parsed, "reason", ""),
	}
	if raw, ok := parsed["function_calls"].([]any); ok {
		for _, v := range raw {
			m, ok := v.(map[string]any)
			if !ok {
				continue
			}
			name := strings.TrimSpace(getString(m, "name", ""))
			if name == "" {
				continue
			}
			args, _ := m["args"].(map[string]any)
			if args == nil {
				args = map[string]any{}
			}
			plan.Calls = append(plan.Calls, FunctionCall{Name: name, Args: args})
		}
	}
	return plan, nil
}

func (q *QueryAgent) feedbackText() string {
	if q.feedback == nil {
		return "None recorded"
	}
	reasons, err := q.feedback()
	if err != nil || len(reasons) == 0 {
		return "None recorded"
	}
	lines := make([]string, len(reasons))
	for i, r := range reasons {
		lines[i] = "- " + r
	}
	return strings.Join(lines, "\n")
}

func formatReplies(replies []Comment) string {
	if len(replies) == 0 {
		return "None"
	}
	lines := make([]string, 0, len(replies))
	for _, r := range replies {
		lines = append(lines, fmt.Sprintf("- %s: %s", r.Author, r.Text))
	}
	return strings.Join(lines, "\n")
}

// clip truncates s to n runes, falling back to alt when s is empty.
func clip(s string, n int, alt string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return alt
	}
	runes := []rune(s)
	if len(runes) > n {
		return string(runes[:n]) + "..."
	}
	return s
}

func getString(m map[string]any, key, defaultVal string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultVal
}

func getBool(m map[string]any, key string, defaultVal bool) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	default:
		return defaultVal
	}
}
