package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/cafebot/internal/config"
	"github.com/TobiSchelling/cafebot/internal/database"
	"github.com/TobiSchelling/cafebot/internal/ratelimit"
	"github.com/TobiSchelling/cafebot/internal/workflow"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Server is the review UI for comment records.
type Server struct {
	store    *workflow.Store
	db       *database.DB
	settings *config.SettingsFile
	reasons  []string
	pages    map[string]*template.Template
	router   *mux.Router
	log      *logrus.Entry
}

// Options are the collaborators of a Server.
type Options struct {
	Store *workflow.Store
	DB    *database.DB
	// Settings enables the live pacing editor when set.
	Settings *config.SettingsFile
	// CancelReasons are offered as one-click reasons on the cancel form.
	CancelReasons []string
	Log           *logrus.Entry
}

// New creates a new Server.
func New(opts Options) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"when": func(t *time.Time) string {
			if t == nil || t.IsZero() {
				return "-"
			}
			return t.Local().Format("2006-01-02 15:04")
		},
		"at": func(t time.Time) string {
			return t.Local().Format("2006-01-02 15:04:05")
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone so {{define "content"}} does not collide.
	pageNames := []string{"index.html", "comment.html", "keywords.html", "settings.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &Server{
		store:    opts.Store,
		db:       opts.DB,
		settings: opts.Settings,
		reasons:  opts.CancelReasons,
		pages:    pages,
		router:   mux.NewRouter(),
		log:      log.WithField("component", "server"),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/comments/{id}", s.handleComment).Methods(http.MethodGet)
	s.router.HandleFunc("/comments/{id}/{action:approve|cancel|retry}", s.handleCommentAction).Methods(http.MethodPost)
	s.router.HandleFunc("/keywords", s.handleKeywords).Methods(http.MethodGet)
	s.router.HandleFunc("/keywords", s.handleAddKeyword).Methods(http.MethodPost)
	s.router.HandleFunc("/keywords/{id:[0-9]+}/{action:toggle|delete}", s.handleKeywordAction).Methods(http.MethodPost)
	s.router.HandleFunc("/settings", s.handleSettings).Methods(http.MethodGet)
	s.router.HandleFunc("/settings", s.handleSaveSettings).Methods(http.MethodPost)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"source": s.store.Source(),
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	status := workflow.StatusPending
	if q := r.URL.Query().Get("status"); q != "" {
		st, err := workflow.ParseStatus(q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		status = st
	}

	records, err := s.store.FindByStatus(status)
	if err != nil {
		s.serverError(w, err)
		return
	}
	stats, err := s.db.GetStats(s.store.Source())
	if err != nil {
		s.serverError(w, err)
		return
	}
	runs, _ := s.db.GetRecentScanRuns(s.store.Source(), 5)

	s.render(w, "index.html", map[string]any{
		"Source":   s.store.Source(),
		"Status":   status,
		"Statuses": workflow.Statuses,
		"Records":  records,
		"Stats":    stats,
		"Runs":     runs,
		"Error":    r.URL.Query().Get("error"),
	})
}

func (s *Server) handleComment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.store.Get(id)
	if errors.Is(err, workflow.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.serverError(w, err)
		return
	}
	history, err := s.store.History(id)
	if err != nil {
		s.serverError(w, err)
		return
	}

	s.render(w, "comment.html", map[string]any{
		"Source":  s.store.Source(),
		"Record":  rec,
		"History": history,
		"Reasons": s.reasons,
		"Error":   r.URL.Query().Get("error"),
	})
}

func (s *Server) handleCommentAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, action := vars["id"], vars["action"]

	var err error
	switch action {
	case "approve":
		_, err = s.store.Approve(id)
	case "cancel":
		reason := strings.TrimSpace(r.FormValue("reason"))
		if reason == "" {
			reason = strings.TrimSpace(r.FormValue("preset"))
		}
		_, err = s.store.Cancel(id, reason)
	case "retry":
		_, err = s.store.Retry(id)
	}

	var invalid *workflow.InvalidTransitionError
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		http.NotFound(w, r)
		return
	case errors.As(err, &invalid):
		http.Redirect(w, r, "/comments/"+id+"?error="+url.QueryEscape(invalid.Error()), http.StatusSeeOther)
		return
	case err != nil:
		s.serverError(w, err)
		return
	}

	s.log.WithFields(logrus.Fields{"id": id, "action": action}).Info("reviewer action")
	if next := r.FormValue("next"); strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/comments/"+id, http.StatusSeeOther)
}

func (s *Server) handleKeywords(w http.ResponseWriter, r *http.Request) {
	keywords, err := s.db.GetKeywords(s.store.Source())
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.render(w, "keywords.html", map[string]any{
		"Source":   s.store.Source(),
		"Keywords": keywords,
	})
}

func (s *Server) handleAddKeyword(w http.ResponseWriter, r *http.Request) {
	keyword := strings.TrimSpace(r.FormValue("keyword"))
	if keyword != "" {
		if _, err := s.db.InsertKeyword(s.store.Source(), keyword); err != nil {
			s.serverError(w, err)
			return
		}
	}
	http.Redirect(w, r, "/keywords", http.StatusSeeOther)
}

func (s *Server) handleKeywordAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	switch vars["action"] {
	case "toggle":
		err = s.db.ToggleKeyword(s.store.Source(), id)
	case "delete":
		err = s.db.DeleteKeyword(s.store.Source(), id)
	}
	if err != nil {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/keywords", http.StatusSeeOther)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		http.NotFound(w, r)
		return
	}
	current := s.settings.Get()
	s.render(w, "settings.html", map[string]any{
		"Source":   s.store.Source(),
		"Settings": current,
		"Window":   ratelimit.ComputeWindow(current.Envelope()),
		"Error":    r.URL.Query().Get("error"),
	})
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		http.NotFound(w, r)
		return
	}

	next := s.settings.Get()
	fields := []struct {
		name string
		dest *int
	}{
		{"min_delay_seconds", &next.MinDelaySeconds},
		{"comments_per_hour_min", &next.CommentsPerHourMin},
		{"comments_per_hour_max", &next.CommentsPerHourMax},
		{"rest_minutes", &next.RestMinutes},
	}
	for _, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(r.FormValue(f.name)))
		if err != nil || v < 0 {
			http.Redirect(w, r, "/settings?error="+url.QueryEscape(f.name+" must be a non-negative number"), http.StatusSeeOther)
			return
		}
		*f.dest = v
	}

	if err := s.settings.Save(next); err != nil {
		s.serverError(w, err)
		return
	}
	s.log.WithField("settings", next).Info("settings updated from review UI")
	http.Redirect(w, r, "/settings", http.StatusSeeOther)
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.log.WithError(err).Error("request failed")
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.log.Errorf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.log.WithError(err).Errorf("Error rendering template %s", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve runs the review server on addr until ctx is cancelled.
func Serve(ctx context.Context, srv *Server, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		srv.log.Infof("Server listening on http://%s", addr)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	}
}
