package reply

import (
	"context"
	"fmt"
	"strings"

	"github.com/TobiSchelling/cafebot/internal/llm"
)

const answerPrompt = `You reply to a forum post as a friendly, knowledgeable admissions advisor.

Write a short comment in the language of the post. Use the reference material when it is
relevant and never invent facts that contradict it. If you have nothing useful to add,
reply with an empty message.

Post Title: %s
Post Content:
%s

Reference material:
%s`

// AnswerAgent runs the answer stage.
type AnswerAgent struct {
	provider  llm.Provider
	maxTokens int
	maxChars  int
	prefix    string
}

// NewAnswerAgent creates an answer agent. prefix, when set, is placed above
// every answer.
func NewAnswerAgent(provider llm.Provider, maxTokens int, prefix string) *AnswerAgent {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnswerAgent{provider: provider, maxTokens: maxTokens, maxChars: 4000, prefix: strings.TrimSpace(prefix)}
}

// Write returns the final comment text, or "" when the model declined.
func (a *AnswerAgent) Write(ctx context.Context, req Request, contextText string) (string, error) {
	if a.provider == nil {
		return "", fmt.Errorf("no LLM provider configured")
	}
	if strings.TrimSpace(contextText) == "" {
		contextText = "None"
	}

	prompt := fmt.Sprintf(answerPrompt, req.Title, clip(req.Body, a.maxChars, req.Title), contextText)
	text, err := a.provider.Generate(ctx, prompt, a.maxTokens)
	if err != nil {
		return "", fmt.Errorf("answer stage: %w", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if a.prefix != "" {
		return a.prefix + "\n\n" + text, nil
	}
	return text, nil
}
