package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"
)

// FeedTemplate is a search feed URL with {keyword}, {club_id} and {menu_id}
// placeholders.
type FeedTemplate struct {
	Name string
	URL  string
}

// FeedOptions configures a FeedSource.
type FeedOptions struct {
	ClubID        string
	MenuIDs       []string
	MaxPerKeyword int
	UserAgent     string
	Timeout       time.Duration
}

// FeedSource searches RSS/Atom search feeds.
type FeedSource struct {
	feeds  []FeedTemplate
	opts   FeedOptions
	client *resty.Client
}

// NewFeedSource creates a feed-backed source.
func NewFeedSource(feeds []FeedTemplate, opts FeedOptions) *FeedSource {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxPerKeyword <= 0 {
		opts.MaxPerKeyword = 20
	}
	client := resty.New().SetTimeout(opts.Timeout)
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	return &FeedSource{feeds: feeds, opts: opts, client: client}
}

func (f *FeedSource) Name() string { return "feed" }

// Search queries every feed for keyword. A failing feed is logged and skipped;
// an error is returned only when every feed failed.
func (f *FeedSource) Search(ctx context.Context, keyword string) ([]Item, error) {
	var items []Item
	seen := make(map[string]struct{})
	var failures int
	var lastErr error
	urls := f.expand(keyword)

	for _, u := range urls {
		if len(items) >= f.opts.MaxPerKeyword {
			break
		}
		feed, err := f.fetch(ctx, u)
		if err != nil {
			failures++
			lastErr = err
			logrus.WithError(err).WithField("feed", u).Warn("feed search failed")
			continue
		}
		for _, fi := range feed.Items {
			if len(items) >= f.opts.MaxPerKeyword {
				break
			}
			item := parseItem(fi, keyword)
			if item == nil {
				continue
			}
			if _, dup := seen[item.URL]; dup {
				continue
			}
			seen[item.URL] = struct{}{}
			items = append(items, *item)
		}
	}

	if len(urls) > 0 && failures == len(urls) {
		return nil, fmt.Errorf("all %d feeds failed for %q: %w", failures, keyword, lastErr)
	}
	return items, nil
}

// expand substitutes placeholders. Templates with {menu_id} yield one URL per
// configured menu.
func (f *FeedSource) expand(keyword string) []string {
	var out []string
	for _, t := range f.feeds {
		base := strings.NewReplacer(
			"{keyword}", url.QueryEscape(keyword),
			"{club_id}", url.QueryEscape(f.opts.ClubID),
		).Replace(t.URL)

		if !strings.Contains(base, "{menu_id}") {
			out = append(out, base)
			continue
		}
		if len(f.opts.MenuIDs) == 0 {
			out = append(out, strings.ReplaceAll(base, "{menu_id}", ""))
			continue
		}
		for _, m := range f.opts.MenuIDs {
			out = append(out, strings.ReplaceAll(base, "{menu_id}", url.QueryEscape(m)))
		}
	}
	return out
}

func (f *FeedSource) fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	resp, err := f.client.R().SetContext(ctx).Get(feedURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode())
	}
	return gofeed.NewParser().Parse(bytes.NewReader(resp.Body()))
}

func parseItem(fi *gofeed.Item, keyword string) *Item {
	link := strings.TrimSpace(fi.Link)
	if link == "" {
		link = strings.TrimSpace(fi.GUID)
	}
	if link == "" {
		return nil
	}

	title := strings.TrimSpace(stripHTML(fi.Title))
	if title == "" {
		return nil
	}

	var body string
	if fi.Content != "" {
		body = stripHTML(fi.Content)
	} else if fi.Description != "" {
		body = stripHTML(fi.Description)
	}

	item := &Item{URL: link, Title: title, Body: body, Keyword: keyword}
	if fi.PublishedParsed != nil {
		item.Published = fi.PublishedParsed
	} else if fi.UpdatedParsed != nil {
		item.Published = fi.UpdatedParsed
	}
	return item
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	).Replace(result.String())

	return strings.Join(strings.Fields(s), " ")
}
