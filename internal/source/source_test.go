package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rssTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>search</title>
%s
</channel></rss>`

func rssItem(link, title, desc string) string {
	return fmt.Sprintf("<item><title>%s</title><link>%s</link><description><![CDATA[%s]]></description><pubDate>Mon, 02 Mar 2026 10:00:00 +0900</pubDate></item>", title, link, desc)
}

func TestFeedSourceSearch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprintf(w, rssTemplate, rssItem("https://cafe.naver.com/suhui/1", "수시 질문", "<p>내신 &amp; 수능</p>")+
			rssItem("https://cafe.naver.com/suhui/1", "dup", "")+
			rssItem("", "no link", "")+
			rssItem("https://cafe.naver.com/suhui/2", "  ", ""))
	}))
	defer srv.Close()

	src := NewFeedSource([]FeedTemplate{{Name: "s", URL: srv.URL + "/search?club={club_id}&q={keyword}"}},
		FeedOptions{ClubID: "10197921", Timeout: time.Second})
	items, err := src.Search(context.Background(), "수시 준비")
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "https://cafe.naver.com/suhui/1", items[0].URL)
	assert.Equal(t, "수시 질문", items[0].Title)
	assert.Equal(t, "내신 & 수능", items[0].Body)
	assert.Equal(t, "수시 준비", items[0].Keyword)
	assert.NotNil(t, items[0].Published)
	assert.Contains(t, gotQuery, "club=10197921")
	assert.Contains(t, gotQuery, "q=%EC%88%98%EC%8B%9C+%EC%A4%80%EB%B9%84")
}

func TestFeedSourceMaxPerKeyword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var items []string
		for i := 0; i < 10; i++ {
			items = append(items, rssItem(fmt.Sprintf("https://cafe.naver.com/suhui/%d", i), "t", ""))
		}
		fmt.Fprintf(w, rssTemplate, strings.Join(items, ""))
	}))
	defer srv.Close()

	src := NewFeedSource([]FeedTemplate{{URL: srv.URL}}, FeedOptions{MaxPerKeyword: 3})
	items, err := src.Search(context.Background(), "k")
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestFeedSourceExpandMenus(t *testing.T) {
	src := NewFeedSource([]FeedTemplate{
		{URL: "https://x/{club_id}/{menu_id}?q={keyword}"},
		{URL: "https://y/?q={keyword}"},
	}, FeedOptions{ClubID: "1", MenuIDs: []string{"12", "34"}})

	assert.Equal(t, []string{
		"https://x/1/12?q=a+b",
		"https://x/1/34?q=a+b",
		"https://y/?q=a+b",
	}, src.expand("a b"))
}

func TestFeedSourceAllFeedsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	src := NewFeedSource([]FeedTemplate{{URL: srv.URL}}, FeedOptions{})
	_, err := src.Search(context.Background(), "k")
	assert.Error(t, err)
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "a b & c", stripHTML("<b>a</b>\n  b &amp; c"))
}

const articleHTML = `<html><head><title>수시 상담</title></head><body>
<nav>menu</nav>
<article><h1>수시 상담</h1>
<p>저는 내신 2.5등급이고 모의고사는 3등급 정도 나옵니다. 학생부 종합 전형으로 어느 대학까지 지원할 수 있을까요?</p>
<p>생기부에는 동아리 활동과 봉사 활동이 꽤 많이 있고 세특도 성실하게 작성되어 있다고 선생님께서 말씀하셨습니다.</p>
</article></body></html>`

func TestContentFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	f := NewContentFetcher("test", time.Second)
	text, err := f.Fetch(context.Background(), srv.URL+"/post")
	require.NoError(t, err)
	assert.Contains(t, text, "학생부 종합 전형")

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}

func TestEnrichSkipsFailedHost(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	items := []Item{{URL: srv.URL + "/1", Body: "snippet"}, {URL: srv.URL + "/2", Body: "snippet"}}
	NewContentFetcher("", time.Second).Enrich(context.Background(), items)
	assert.Equal(t, 1, hits)
	assert.Equal(t, "snippet", items[0].Body)
}

type fakeSource struct {
	results map[string][]Item
	fail    map[string]bool
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Search(_ context.Context, keyword string) ([]Item, error) {
	if f.fail[keyword] {
		return nil, errors.New("blocked")
	}
	return f.results[keyword], nil
}

func TestCollectorDedupsAcrossKeywords(t *testing.T) {
	src := &fakeSource{
		results: map[string][]Item{
			"수시": {{URL: "https://cafe.naver.com/suhui/1"}, {URL: "https://cafe.naver.com/suhui/2"}},
			"정시": {{URL: "https://cafe.naver.com/ca-fe/cafes/1/articles/2?x=1"}, {URL: "https://cafe.naver.com/suhui/3"}},
		},
		fail: map[string]bool{"생기부": true},
	}

	r := NewCollector([]Source{src}, nil, nil).Collect(context.Background(), []string{"수시", "생기부", "정시"})
	assert.Equal(t, 4, r.Found)
	assert.Equal(t, 1, r.Errors)
	require.Len(t, r.Items, 3)
	assert.Equal(t, "https://cafe.naver.com/suhui/1", r.Items[0].URL)
	assert.Equal(t, "https://cafe.naver.com/suhui/3", r.Items[2].URL)
}

func TestCollectorStopsOnCancelledContext(t *testing.T) {
	src := &fakeSource{results: map[string][]Item{"a": {{URL: "u"}}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewCollector([]Source{src}, nil, nil).Collect(ctx, []string{"a"})
	assert.Empty(t, r.Items)
}
