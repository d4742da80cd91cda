package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/cafebot/internal/backup"
	"github.com/TobiSchelling/cafebot/internal/config"
	"github.com/TobiSchelling/cafebot/internal/database"
	"github.com/TobiSchelling/cafebot/internal/ledger"
	"github.com/TobiSchelling/cafebot/internal/llm"
	"github.com/TobiSchelling/cafebot/internal/notify"
	"github.com/TobiSchelling/cafebot/internal/posting"
	"github.com/TobiSchelling/cafebot/internal/ratelimit"
	"github.com/TobiSchelling/cafebot/internal/reply"
	"github.com/TobiSchelling/cafebot/internal/source"
	"github.com/TobiSchelling/cafebot/internal/worker"
	"github.com/TobiSchelling/cafebot/internal/workflow"
)

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.OpenDriver(cfg.Database.Driver, config.Env(cfg.Database.DSNEnv), cfg.DatabasePath())
}

func newStore(db *database.DB) *workflow.Store {
	return workflow.NewStore(db, cfg.Site.Name,
		workflow.WithCapacity(cfg.Workflow.Capacity),
		workflow.WithMaxContent(cfg.Reply.MaxContentChars),
	)
}

func newSettings() *config.SettingsFile {
	return config.NewSettingsFile(cfg.SettingsPath(), logrus.WithField("component", "settings"))
}

func llmConfig() llm.Config {
	c := cfg.LLM
	return llm.Config{
		Provider:        c.Provider,
		Fallback:        c.Fallback,
		Model:           c.Model,
		OllamaURL:       c.OllamaURL,
		OpenAIModel:     c.OpenAIModel,
		OpenAIBaseURL:   c.OpenAIBaseURL,
		OpenAIAPIKey:    config.Env(c.APIKeyEnv),
		AzureEndpoint:   c.AzureEndpoint,
		AzureDeployment: c.AzureDeployment,
		AzureAPIVersion: c.AzureAPIVersion,
		AzureAPIKey:     config.Env(c.AzureAPIKeyEnv),
		GeminiModel:     c.GeminiModel,
		GeminiBaseURL:   c.GeminiBaseURL,
		GeminiAPIKey:    config.Env(c.GeminiAPIKeyEnv),
		Timeout:         seconds(c.TimeoutSeconds),
	}
}

// newPipeline builds the query/retrieve/answer pipeline. Recent cancel
// reasons are fed back into the query prompt.
func newPipeline(db *database.DB) (*reply.TwoStage, error) {
	provider, err := llm.CreateProvider(llmConfig())
	if err != nil {
		return nil, err
	}
	logrus.WithField("provider", provider.Name()).Info("LLM provider ready")

	var feedback reply.FeedbackFunc
	if cfg.Reply.FeedbackReasons > 0 {
		feedback = func() ([]string, error) {
			rows, err := db.GetCancelReasonSummary(cfg.Site.Name, cfg.Reply.FeedbackReasons)
			if err != nil {
				return nil, err
			}
			reasons := make([]string, 0, len(rows))
			for _, r := range rows {
				reasons = append(reasons, r.Reason)
			}
			return reasons, nil
		}
	}

	p := &reply.TwoStage{
		Query:     reply.NewQueryAgent(provider, feedback),
		Answer:    reply.NewAnswerAgent(provider, cfg.LLM.MaxTokens, cfg.Reply.Prefix),
		Nicknames: cfg.Site.Nicknames,
		Log:       logrus.WithField("component", "reply"),
	}
	if cfg.Retrieval.Enabled {
		p.Retriever = reply.NewHTTPRetriever(cfg.Retrieval.BaseURL, config.Env(cfg.Retrieval.APIKeyEnv), seconds(cfg.Retrieval.TimeoutSeconds))
	}
	return p, nil
}

func newCollector() *source.Collector {
	feeds := make([]source.FeedTemplate, 0, len(cfg.Search.Feeds))
	for _, f := range cfg.Search.Feeds {
		feeds = append(feeds, source.FeedTemplate{Name: f.Name, URL: f.URL})
	}
	timeout := seconds(cfg.Search.TimeoutSeconds)
	feed := source.NewFeedSource(feeds, source.FeedOptions{
		ClubID:        cfg.Site.ClubID,
		MenuIDs:       cfg.Site.MenuIDs,
		MaxPerKeyword: cfg.Search.MaxPerKeyword,
		UserAgent:     cfg.Search.UserAgent,
		Timeout:       timeout,
	})

	var fetcher *source.ContentFetcher
	if cfg.Search.FetchContent {
		fetcher = source.NewContentFetcher(cfg.Search.UserAgent, timeout)
	}
	return source.NewCollector([]source.Source{feed}, fetcher, logrus.WithField("component", "source"))
}

func newNotifier() notify.Notifier {
	var multi notify.Multi
	if t := cfg.Notify.Teams; t.Enabled {
		if url := config.Env(t.WebhookEnv); url != "" {
			multi = append(multi, notify.NewTeams(url))
		} else {
			logrus.Warnf("Teams notifications enabled but %s is not set", t.WebhookEnv)
		}
	}
	if e := cfg.Notify.Email; e.Enabled {
		multi = append(multi, notify.NewEmail(notify.EmailConfig{
			Host:     e.Host,
			Port:     e.Port,
			Username: e.Username,
			Password: config.Env(e.PasswordEnv),
			From:     e.From,
			To:       e.To,
		}))
	}
	if len(multi) == 0 {
		return notify.Nop{}
	}
	return multi
}

func newGate(settings *config.SettingsFile) *ratelimit.Gate {
	opts := []ratelimit.GateOption{ratelimit.WithLogger(logrus.WithField("component", "ratelimit"))}
	if cfg.Workflow.SliceSeconds > 0 {
		opts = append(opts, ratelimit.WithSlice(seconds(cfg.Workflow.SliceSeconds)))
	}
	return ratelimit.NewGate(func() ratelimit.Envelope { return settings.Get().Envelope() }, opts...)
}

func newAction() *posting.HTTPAction {
	p := cfg.Posting
	return posting.NewHTTPAction(p.AgentURL, config.Env(p.APIKeyEnv), cfg.Site.Nicknames, seconds(p.TimeoutSeconds))
}

func reviewURL(id string) string {
	return fmt.Sprintf("http://%s:%d/comments/%s", cfg.Server.Host, cfg.Server.Port, id)
}

func workerContext(db *database.DB, store *workflow.Store, settings *config.SettingsFile, stop ratelimit.StopFunc, name string) *worker.Context {
	return &worker.Context{
		Source:   cfg.Site.Name,
		Stop:     stop,
		Settings: settings.Get,
		Ledger:   ledger.New(db, cfg.Site.Name),
		Store:    store,
		Log:      logrus.WithFields(logrus.Fields{"source": cfg.Site.Name, "worker": name}),
	}
}

// activeKeywords seeds the configured keywords on first use and returns the
// active ones.
func activeKeywords(db *database.DB) func() ([]string, error) {
	return func() ([]string, error) {
		if _, err := db.SeedKeywords(cfg.Site.Name, cfg.Search.Keywords); err != nil {
			return nil, err
		}
		rows, err := db.GetActiveKeywords(cfg.Site.Name)
		if err != nil {
			return nil, err
		}
		keywords := make([]string, 0, len(rows))
		for _, k := range rows {
			keywords = append(keywords, k.Keyword)
		}
		return keywords, nil
	}
}

func newScanner(db *database.DB, store *workflow.Store, settings *config.SettingsFile, gate *ratelimit.Gate) (*worker.Scanner, error) {
	pipeline, err := newPipeline(db)
	if err != nil {
		return nil, err
	}
	stop := worker.Latch(worker.ScannerSignal(cfg.StopDir()).Stopped)
	return worker.NewScanner(workerContext(db, store, settings, stop, "scanner"), worker.ScannerOptions{
		Keywords:    activeKeywords(db),
		Collector:   newCollector(),
		Pipeline:    pipeline,
		Runs:        db,
		Notifier:    newNotifier(),
		Gate:        gate,
		AutoApprove: !cfg.Reply.RequireApproval,
		ReviewURL:   reviewURL,
	}), nil
}

func newPoster(db *database.DB, store *workflow.Store, settings *config.SettingsFile, gate *ratelimit.Gate) *worker.Poster {
	stop := worker.PosterSignal(cfg.StopDir()).Stopped
	return worker.NewPoster(workerContext(db, store, settings, stop, "poster"), newAction(), gate, newNotifier())
}

func newExporter(ctx context.Context, db *database.DB) (*backup.Exporter, error) {
	b := cfg.Backup
	storage, err := backup.NewAzureStorage(ctx, b.AccountURL, b.Container, config.Env(b.ConnectionStringEnv))
	if err != nil {
		return nil, err
	}
	return backup.NewExporter(db, storage, cfg.Site.Name), nil
}

func supervisor(name string) *worker.Supervisor {
	return &worker.Supervisor{
		Name:        name,
		MaxRestarts: cfg.Workflow.MaxRestarts,
		Log:         logrus.WithField("source", cfg.Site.Name),
	}
}
