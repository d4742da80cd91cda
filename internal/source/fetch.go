package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// minExtractedChars is the shortest extraction accepted as the post body.
const minExtractedChars = 30

// ContentFetcher fetches post pages and extracts their readable text.
type ContentFetcher struct {
	client *resty.Client
}

// NewContentFetcher creates a new content fetcher.
func NewContentFetcher(userAgent string, timeout time.Duration) *ContentFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().SetTimeout(timeout).SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	if userAgent != "" {
		client.SetHeader("User-Agent", userAgent)
	}
	return &ContentFetcher{client: client}
}

// Fetch returns the readable text of a page, or "" when nothing usable was found.
func (f *ContentFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	resp, err := f.client.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return "", err
	}
	if resp.StatusCode() >= 400 {
		return "", fmt.Errorf("page returned status %d", resp.StatusCode())
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(bytes.NewReader(resp.Body()), parsedURL)
	if err != nil {
		return "", nil
	}

	text := strings.TrimSpace(article.TextContent)
	if len([]rune(text)) < minExtractedChars {
		return "", nil
	}
	return text, nil
}

// Enrich replaces short feed snippets with the extracted page text. After an
// HTTP error the remaining items of the same host are skipped.
func (f *ContentFetcher) Enrich(ctx context.Context, items []Item) {
	failedHosts := make(map[string]struct{})
	for i := range items {
		if ctx.Err() != nil {
			return
		}
		host := ""
		if u, err := url.Parse(items[i].URL); err == nil {
			host = strings.ToLower(u.Host)
		}
		if _, failed := failedHosts[host]; failed {
			continue
		}

		text, err := f.Fetch(ctx, items[i].URL)
		if err != nil {
			if host != "" {
				failedHosts[host] = struct{}{}
			}
			logrus.WithError(err).WithField("url", items[i].URL).Debug("content fetch failed, skipping host")
			continue
		}
		if len([]rune(text)) > len([]rune(items[i].Body)) {
			items[i].Body = text
		}
	}
}
