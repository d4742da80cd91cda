// Package source finds candidate forum posts for a keyword.
package source

import (
	"context"
	"time"
)

// Item is a candidate post.
type Item struct {
	URL       string
	Title     string
	Body      string
	Keyword   string
	Published *time.Time
	Replies   []Reply
}

// Reply is an existing comment under a post.
type Reply struct {
	Author string
	Text   string
}

// Source searches a site for posts.
type Source interface {
	Name() string
	Search(ctx context.Context, keyword string) ([]Item, error)
}
