package ledger

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	articlesPath = regexp.MustCompile(`/articles/(\d+)`)
	numericID    = regexp.MustCompile(`^\d+$`)
)

// Normalize derives the item identifier for a post URL. The first matching
// rule wins:
//
//  1. the numeric id after "/articles/"
//  2. a numeric final path segment
//  3. the articleid query parameter of legacy ArticleRead links
//  4. the trimmed URL itself
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	if m := articlesPath.FindStringSubmatch(s); m != nil {
		return m[1]
	}

	u, err := url.Parse(s)
	if err != nil {
		return s
	}

	path := strings.TrimRight(u.Path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		if seg := path[i+1:]; numericID.MatchString(seg) {
			return seg
		}
	}

	for key, vals := range u.Query() {
		if strings.EqualFold(key, "articleid") && len(vals) > 0 && numericID.MatchString(vals[0]) {
			return vals[0]
		}
	}

	return s
}
