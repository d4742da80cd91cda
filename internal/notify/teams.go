package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// TeamsMessage is a Microsoft Teams connector card.
type TeamsMessage struct {
	Type     string         `json:"@type"`
	Context  string         `json:"@context"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	Sections []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle string      `json:"activityTitle,omitempty"`
	ActivityText  string      `json:"activityText,omitempty"`
	Facts         []TeamsFact `json:"facts,omitempty"`
	Markdown      bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Teams posts notifications to an incoming webhook.
type Teams struct {
	webhookURL string
	client     *resty.Client
}

// NewTeams creates a Teams notifier for webhookURL.
func NewTeams(webhookURL string) *Teams {
	return &Teams{
		webhookURL: webhookURL,
		client:     resty.New().SetTimeout(30 * time.Second),
	}
}

func (t *Teams) DraftCreated(ctx context.Context, e Event) error {
	return t.send(ctx, t.buildMessage(draftSubject(e), e))
}

func (t *Teams) PostFailed(ctx context.Context, e Event) error {
	return t.send(ctx, t.buildMessage(failedSubject(e), e))
}

func (t *Teams) buildMessage(title string, e Event) *TeamsMessage {
	facts := []TeamsFact{
		{Name: "Post", Value: fmt.Sprintf("[%s](%s)", e.PostTitle, e.PostURL)},
		{Name: "Record", Value: e.ID},
	}
	if e.Reason != "" {
		facts = append(facts, TeamsFact{Name: "Reason", Value: e.Reason})
	}
	if e.ReviewURL != "" {
		facts = append(facts, TeamsFact{Name: "Review", Value: e.ReviewURL})
	}

	msg := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   title,
		Text:    e.PostTitle,
		Sections: []TeamsSection{{
			ActivityTitle: "Details",
			Facts:         facts,
			Markdown:      true,
		}},
	}
	if e.Reply != "" {
		msg.Sections = append(msg.Sections, TeamsSection{
			ActivityTitle: "Reply",
			ActivityText:  e.Reply,
			Markdown:      true,
		})
	}
	return msg
}

func (t *Teams) send(ctx context.Context, msg *TeamsMessage) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(msg).
		Post(t.webhookURL)
	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	return nil
}
