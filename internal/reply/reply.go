// Package reply decides whether a post deserves a comment and drafts it.
//
// Generation runs in two LLM stages. The query stage judges relevance and
// plans retrieval function calls; the optional retrieval stage executes them
// against an external backend; the answer stage writes the comment.
package reply

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

// Comment is an existing reply under a post.
type Comment struct {
	Author string
	Text   string
}

// Request is the post a reply is generated for.
type Request struct {
	URL             string
	Title           string
	Body            string
	ExistingReplies []Comment
}

// Draft is a generated reply.
type Draft struct {
	Text             string
	RetrievalContext string
	Reason           string
}

// Pipeline generates a reply. A nil draft with a nil error means "decline".
type Pipeline interface {
	Generate(ctx context.Context, req Request) (*Draft, error)
}

// TwoStage is the query/retrieve/answer pipeline.
type TwoStage struct {
	Query     *QueryAgent
	Retriever Retriever
	Answer    *AnswerAgent
	Nicknames []string
	Log       *logrus.Entry
}

// Generate runs the pipeline for one post.
func (p *TwoStage) Generate(ctx context.Context, req Request) (*Draft, error) {
	log := p.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("url", req.URL)

	if who := p.ownReply(req.ExistingReplies); who != "" {
		log.WithField("nickname", who).Info("declined: post already has our reply")
		return nil, nil
	}

	plan, err := p.Query.Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	if !plan.Relevant {
		log.WithField("reason", plan.Reason).Info("declined by query stage")
		return nil, nil
	}

	var contextText string
	if p.Retriever != nil && len(plan.Calls) > 0 {
		results, err := p.Retriever.Execute(ctx, plan.Calls)
		if err != nil {
			log.WithError(err).Warn("retrieval failed, answering without context")
		} else {
			contextText = FormatResults(results)
		}
	}

	text, err := p.Answer.Write(ctx, req, contextText)
	if err != nil {
		return nil, err
	}
	if text == "" {
		log.Info("declined: answer stage had nothing to say")
		return nil, nil
	}

	return &Draft{Text: text, RetrievalContext: contextText, Reason: plan.Reason}, nil
}

func (p *TwoStage) ownReply(replies []Comment) string {
	for _, r := range replies {
		author := strings.TrimSpace(r.Author)
		for _, nick := range p.Nicknames {
			if nick != "" && strings.EqualFold(author, strings.TrimSpace(nick)) {
				return author
			}
		}
	}
	return ""
}
