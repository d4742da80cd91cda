package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/TobiSchelling/cafebot/internal/config"
	"github.com/TobiSchelling/cafebot/internal/database"
	"github.com/TobiSchelling/cafebot/internal/workflow"
)

const site = "suhui"

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestServer(t *testing.T, db *database.DB, settings *config.SettingsFile) (*Server, *workflow.Store) {
	t.Helper()
	store := workflow.NewStore(db, site)
	srv, err := New(Options{Store: store, DB: db, Settings: settings, CancelReasons: []string{"too pushy"}})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv, store
}

func createDraft(t *testing.T, store *workflow.Store) *workflow.Record {
	t.Helper()
	rec, err := store.Create(workflow.Draft{
		PostURL:   "https://cafe.naver.com/suhui/29392388",
		PostTitle: "내신 2.5 수시 질문",
		Content:   "어디까지 가능할까요?",
		Reply:     "**학생부 종합** 전형을 추천드려요.",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return rec
}

func do(srv *Server, method, target string, form url.Values) *httptest.ResponseRecorder {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndexRoute(t *testing.T) {
	db := openTestDB(t)
	srv, store := newTestServer(t, db, nil)
	createDraft(t, store)

	rec := do(srv, "GET", "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "내신 2.5 수시 질문") {
		t.Error("expected pending draft title in response")
	}
	if !strings.Contains(body, "pending (1)") {
		t.Error("expected pending count in status tabs")
	}
}

func TestIndexRejectsUnknownStatus(t *testing.T) {
	srv, _ := newTestServer(t, openTestDB(t), nil)
	rec := do(srv, "GET", "/?status=archived", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCommentRouteRendersMarkdown(t *testing.T) {
	db := openTestDB(t)
	srv, store := newTestServer(t, db, nil)
	draft := createDraft(t, store)

	rec := do(srv, "GET", "/comments/"+draft.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<strong>학생부 종합</strong>") {
		t.Error("expected markdown rendered reply")
	}
	if !strings.Contains(body, "too pushy") {
		t.Error("expected preset cancel reason")
	}
	if !strings.Contains(body, "created") {
		t.Error("expected history entry")
	}
}

func TestCommentNotFound(t *testing.T) {
	srv, _ := newTestServer(t, openTestDB(t), nil)
	if rec := do(srv, "GET", "/comments/missing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := do(srv, "POST", "/comments/missing/approve", url.Values{}); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestApproveAndCancelActions(t *testing.T) {
	db := openTestDB(t)
	srv, store := newTestServer(t, db, nil)
	draft := createDraft(t, store)

	rec := do(srv, "POST", "/comments/"+draft.ID+"/approve", url.Values{"next": {"/?status=pending"}})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/?status=pending" {
		t.Errorf("unexpected redirect %q", loc)
	}

	got, _ := store.Get(draft.ID)
	if got.Status != workflow.StatusApproved {
		t.Fatalf("expected approved, got %s", got.Status)
	}

	rec = do(srv, "POST", "/comments/"+draft.ID+"/cancel", url.Values{"preset": {"too pushy"}})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	got, _ = store.Get(draft.ID)
	if got.Status != workflow.StatusCancelled || got.CancelReason != "too pushy" {
		t.Errorf("expected cancelled with reason, got %s %q", got.Status, got.CancelReason)
	}
}

func TestInvalidActionRedirectsWithError(t *testing.T) {
	db := openTestDB(t)
	srv, store := newTestServer(t, db, nil)
	draft := createDraft(t, store)

	rec := do(srv, "POST", "/comments/"+draft.ID+"/retry", url.Values{})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.Contains(loc, "error=") {
		t.Errorf("expected error in redirect, got %q", loc)
	}
	got, _ := store.Get(draft.ID)
	if got.Status != workflow.StatusPending {
		t.Errorf("status must not change, got %s", got.Status)
	}
}

func TestOpenRedirectIgnored(t *testing.T) {
	db := openTestDB(t)
	srv, store := newTestServer(t, db, nil)
	draft := createDraft(t, store)

	rec := do(srv, "POST", "/comments/"+draft.ID+"/approve", url.Values{"next": {"//evil.example.com"}})
	if loc := rec.Header().Get("Location"); loc != "/comments/"+draft.ID {
		t.Errorf("unexpected redirect %q", loc)
	}
}

func TestKeywordRoutes(t *testing.T) {
	db := openTestDB(t)
	srv, _ := newTestServer(t, db, nil)

	if rec := do(srv, "POST", "/keywords", url.Values{"keyword": {" 수시 "}}); rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	keywords, _ := db.GetKeywords(site)
	if len(keywords) != 1 || keywords[0].Keyword != "수시" {
		t.Fatalf("expected one keyword, got %+v", keywords)
	}
	id := keywords[0].ID

	do(srv, "POST", "/keywords/"+itoa(id)+"/toggle", url.Values{})
	keywords, _ = db.GetKeywords(site)
	if keywords[0].IsActive {
		t.Error("expected keyword paused")
	}

	rec := do(srv, "GET", "/keywords", nil)
	if !strings.Contains(rec.Body.String(), "paused") {
		t.Error("expected paused keyword listed")
	}

	do(srv, "POST", "/keywords/"+itoa(id)+"/delete", url.Values{})
	keywords, _ = db.GetKeywords(site)
	if len(keywords) != 0 {
		t.Error("expected keyword deleted")
	}

	if rec := do(srv, "POST", "/keywords/999/delete", url.Values{}); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown keyword, got %d", rec.Code)
	}
}

func TestSettingsRoutes(t *testing.T) {
	db := openTestDB(t)
	settings := config.NewSettingsFile(filepath.Join(t.TempDir(), "settings.yaml"), nil)
	srv, _ := newTestServer(t, db, settings)

	rec := do(srv, "GET", "/settings", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "7m30s") {
		t.Fatalf("expected default window in settings page, got %d", rec.Code)
	}

	rec = do(srv, "POST", "/settings", url.Values{
		"min_delay_seconds":     {"50"},
		"comments_per_hour_min": {"5"},
		"comments_per_hour_max": {"10"},
		"rest_minutes":          {"2"},
	})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	got := settings.Get()
	if got.CommentsPerHourMin != 5 || got.RestMinutes != 2 {
		t.Errorf("settings not saved: %+v", got)
	}

	rec = do(srv, "POST", "/settings", url.Values{"min_delay_seconds": {"x"}})
	if loc := rec.Header().Get("Location"); !strings.Contains(loc, "error=") {
		t.Errorf("expected validation error, got %q", loc)
	}
}

func TestSettingsDisabled(t *testing.T) {
	srv, _ := newTestServer(t, openTestDB(t), nil)
	if rec := do(srv, "GET", "/settings", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHealthRoute(t *testing.T) {
	srv, _ := newTestServer(t, openTestDB(t), nil)
	rec := do(srv, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" || body["source"] != site {
		t.Errorf("unexpected health body %v", body)
	}
}

func TestStaticRoute(t *testing.T) {
	srv, _ := newTestServer(t, openTestDB(t), nil)
	rec := do(srv, "GET", "/static/style.css", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "font-sans") {
		t.Error("expected CSS content")
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
