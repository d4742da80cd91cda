package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/cafebot/internal/config"
	"github.com/TobiSchelling/cafebot/internal/database"
	"github.com/TobiSchelling/cafebot/internal/scheduler"
	"github.com/TobiSchelling/cafebot/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "cafebot",
	Short:   "Reply assistant for forum communities",
	Long:    "cafebot scans a forum for posts matching your keywords, drafts replies with an LLM, and posts them once approved.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine; variables may come from the environment.
		_ = godotenv.Load()

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			config.SetupLogging(config.Logging{}, verbose)
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		config.SetupLogging(cfg.Logging, verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(keywordsCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(backupCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("cafebot", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/cafebot/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set the site, keywords, LLM provider and posting agent.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger, comment and scan status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(cfg.Site.Name)
		if err != nil {
			return err
		}
		runs, err := db.GetRecentScanRuns(cfg.Site.Name, 5)
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), cfg.Site.Name, stats, runs)

		fmt.Fprintf(cmd.OutOrStdout(), "\nDatabase:  %s (%s)\n", db.Path(), db.Dialect())
		fmt.Fprintf(cmd.OutOrStdout(), "Settings:  %s\n", cfg.SettingsPath())
		return nil
	},
}

// --- scan command ---

var scanOnce bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Search for new posts and draft replies",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		settings := newSettings()
		scanner, err := newScanner(db, newStore(db), settings, newGate(settings))
		if err != nil {
			return err
		}

		if scanOnce {
			rep, err := scanner.RunOnce(ctx)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), rep)
			return nil
		}
		return supervisor("scanner").Run(ctx, scanner.Run)
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanOnce, "once", false, "Run a single scan pass and exit")
}

// --- post command ---

var postOnce bool

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Post approved replies",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		settings := newSettings()
		poster := newPoster(db, newStore(db), settings, newGate(settings))

		if postOnce {
			if err := newAction().Ready(ctx); err != nil {
				return fmt.Errorf("posting session: %w", err)
			}
			posted, err := poster.PostOnce(ctx)
			if err != nil {
				return err
			}
			if !posted {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing approved to post.")
			}
			return nil
		}
		return supervisor("poster").Run(ctx, poster.Run)
	},
}

func init() {
	postCmd.Flags().BoolVar(&postOnce, "once", false, "Post at most one approved reply and exit")
}

// --- run command ---

var runServe bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run scanner and poster until stopped",
	Long:  "Runs the scanner and the poster side by side, each restarted on failure. Scheduled backups and the review UI can run in the same process.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		store := newStore(db)
		settings := newSettings()
		scanner, err := newScanner(db, store, settings, newGate(settings))
		if err != nil {
			return err
		}
		poster := newPoster(db, store, settings, newGate(settings))

		if cfg.Backup.Enabled {
			exporter, err := newExporter(ctx, db)
			if err != nil {
				return fmt.Errorf("backup: %w", err)
			}
			sched := scheduler.New(ctx, logrus.WithField("component", "scheduler"))
			err = sched.Add("backup", cfg.Backup.Schedule, func(ctx context.Context) error {
				_, err := exporter.Run(ctx)
				return err
			})
			if err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()
		}

		tasks := map[string]func(context.Context) error{
			"scanner": func(ctx context.Context) error { return supervisor("scanner").Run(ctx, scanner.Run) },
			"poster":  func(ctx context.Context) error { return supervisor("poster").Run(ctx, poster.Run) },
		}
		if runServe {
			srv, err := server.New(server.Options{
				Store:         store,
				DB:            db,
				Settings:      settings,
				CancelReasons: cancelPresets(db),
				Log:           logrus.WithField("source", cfg.Site.Name),
			})
			if err != nil {
				return err
			}
			tasks["server"] = func(ctx context.Context) error { return server.Serve(ctx, srv, serverAddr()) }
		}

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs []error
		)
		for name, task := range tasks {
			name, task := name, task
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := task(ctx); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", name, err))
					mu.Unlock()
					cancel()
				}
			}()
		}
		wg.Wait()
		return errors.Join(errs...)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runServe, "serve", false, "Also serve the review UI")
}

// --- serve command ---

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if cmd.Flags().Changed("host") {
			cfg.Server.Host = serveHost
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}

		srv, err := server.New(server.Options{
			Store:         newStore(db),
			DB:            db,
			Settings:      newSettings(),
			CancelReasons: cancelPresets(db),
			Log:           logrus.WithField("source", cfg.Site.Name),
		})
		if err != nil {
			return err
		}

		fmt.Printf("Starting server at http://%s\n", serverAddr())
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, srv, serverAddr())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Interface to listen on")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func serverAddr() string {
	return net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
}

// cancelPresets offers the most frequent past cancel reasons as one-click
// choices in the review UI.
func cancelPresets(db *database.DB) []string {
	rows, err := db.GetCancelReasonSummary(cfg.Site.Name, 8)
	if err != nil {
		logrus.WithError(err).Warn("could not load cancel reasons")
		return nil
	}
	presets := make([]string, 0, len(rows))
	for _, r := range rows {
		presets = append(presets, r.Reason)
	}
	return presets
}
