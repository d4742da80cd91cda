package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/cafebot/internal/ledger"
	"github.com/TobiSchelling/cafebot/internal/worker"
	"github.com/TobiSchelling/cafebot/internal/workflow"
)

// --- comment review commands ---

var (
	listStatus string
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List comment drafts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		store := newStore(db)

		var records []workflow.Record
		if listStatus != "" {
			status, err := workflow.ParseStatus(listStatus)
			if err != nil {
				return err
			}
			records, err = store.FindByStatus(status)
			if err != nil {
				return err
			}
			if listLimit > 0 && len(records) > listLimit {
				records = records[:listLimit]
			}
		} else {
			records, err = store.List(listLimit)
			if err != nil {
				return err
			}
		}
		printRecords(cmd.OutOrStdout(), records)
		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "Only show comments with this status")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "Maximum number of comments (0 for all)")
}

var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a comment draft and its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		store := newStore(db)

		rec, err := store.Get(args[0])
		if err != nil {
			return commentError(args[0], err)
		}
		history, err := store.History(rec.ID)
		if err != nil {
			return err
		}
		printRecord(cmd.OutOrStdout(), rec, history)
		return nil
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve [id]",
	Short: "Approve a pending comment for posting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return review(cmd, args[0], func(s *workflow.Store, id string) (*workflow.Record, error) {
			return s.Approve(id)
		})
	},
}

var cancelReason string

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a comment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return review(cmd, args[0], func(s *workflow.Store, id string) (*workflow.Record, error) {
			return s.Cancel(id, strings.TrimSpace(cancelReason))
		})
	},
}

func init() {
	cancelCmd.Flags().StringVarP(&cancelReason, "reason", "r", "", "Why the comment was rejected")
}

var retryCmd = &cobra.Command{
	Use:   "retry [id]",
	Short: "Queue a failed comment for another posting attempt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return review(cmd, args[0], func(s *workflow.Store, id string) (*workflow.Record, error) {
			return s.Retry(id)
		})
	},
}

func review(cmd *cobra.Command, id string, apply func(*workflow.Store, string) (*workflow.Record, error)) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	rec, err := apply(newStore(db), id)
	if err != nil {
		return commentError(id, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Comment %s is now %s\n", rec.ID, rec.Status)
	return nil
}

func commentError(id string, err error) error {
	if errors.Is(err, workflow.ErrNotFound) {
		return fmt.Errorf("comment %s not found", id)
	}
	return err
}

// --- ledger command ---

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the processed-items ledger",
}

var ledgerLimit int

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded item identifiers, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.ListIdentifiers(cfg.Site.Name, ledgerLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Ledger is empty.")
			return nil
		}
		for _, e := range entries {
			at := e.RecordedAt
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", formatTime(&at), e.Identifier)
		}
		return nil
	},
}

var ledgerCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of recorded items",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := ledger.New(db, cfg.Site.Name).Size()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

var ledgerCheckCmd = &cobra.Command{
	Use:   "check [url]",
	Short: "Show the identifier of a URL and whether it was processed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		id := ledger.Normalize(args[0])
		seen, err := ledger.New(db, cfg.Site.Name).Contains(id)
		if err != nil {
			return err
		}
		state := "new"
		if seen {
			state = "processed"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", id, state)
		return nil
	},
}

func init() {
	ledgerListCmd.Flags().IntVarP(&ledgerLimit, "limit", "n", 50, "Maximum number of entries (0 for all)")
	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerCountCmd)
	ledgerCmd.AddCommand(ledgerCheckCmd)
}

// --- keywords command ---

var keywordsCmd = &cobra.Command{
	Use:   "keywords",
	Short: "Manage search keywords",
}

var keywordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all search keywords",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		items, err := db.GetKeywords(cfg.Site.Name)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No keywords defined. Add one with: cafebot keywords add")
			return nil
		}

		fmt.Println("Search Keywords:")
		fmt.Println()
		for _, k := range items {
			icon := " "
			if k.IsActive {
				icon = "*"
			}
			fmt.Printf("  [%d] %s %s\n", k.ID, icon, k.Keyword)
		}
		return nil
	},
}

var keywordsAddCmd = &cobra.Command{
	Use:   "add [keyword]",
	Short: "Add a search keyword",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		keyword := strings.TrimSpace(args[0])
		if keyword == "" {
			return fmt.Errorf("keyword must not be empty")
		}
		id, err := db.InsertKeyword(cfg.Site.Name, keyword)
		if err != nil {
			return err
		}
		if id == 0 {
			fmt.Printf("Keyword already exists: %s\n", keyword)
			return nil
		}
		fmt.Printf("Added keyword [%d]: %s\n", id, keyword)
		return nil
	},
}

var keywordsToggleCmd = &cobra.Command{
	Use:   "toggle [id]",
	Short: "Pause or resume a keyword",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return keywordAction(args[0], "toggled", func(db keywordDB, id int64) error {
			return db.ToggleKeyword(cfg.Site.Name, id)
		})
	},
}

var keywordsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a keyword",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return keywordAction(args[0], "deleted", func(db keywordDB, id int64) error {
			return db.DeleteKeyword(cfg.Site.Name, id)
		})
	},
}

var keywordsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Add the keywords from the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		added, err := db.SeedKeywords(cfg.Site.Name, cfg.Search.Keywords)
		if err != nil {
			return err
		}
		fmt.Printf("Seeded %d keyword(s).\n", added)
		return nil
	},
}

type keywordDB interface {
	ToggleKeyword(source string, id int64) error
	DeleteKeyword(source string, id int64) error
}

func keywordAction(arg, verb string, apply func(keywordDB, int64) error) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid keyword ID: %s", arg)
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := apply(db, id); err != nil {
		return err
	}
	fmt.Printf("Keyword [%d] %s\n", id, verb)
	return nil
}

func init() {
	keywordsCmd.AddCommand(keywordsListCmd)
	keywordsCmd.AddCommand(keywordsAddCmd)
	keywordsCmd.AddCommand(keywordsToggleCmd)
	keywordsCmd.AddCommand(keywordsDeleteCmd)
	keywordsCmd.AddCommand(keywordsSeedCmd)
}

// --- stop command ---

var stopClear bool

var stopCmd = &cobra.Command{
	Use:       "stop [scanner|poster]",
	Short:     "Ask a running worker to stop",
	Long:      "Raises the stop flag of a worker. The scanner clears its flag when it stops; the poster flag stays until cleared with --clear.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"scanner", "poster"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var signal worker.FileSignal
		switch args[0] {
		case "scanner":
			signal = worker.ScannerSignal(cfg.StopDir())
		case "poster":
			signal = worker.PosterSignal(cfg.StopDir())
		default:
			return fmt.Errorf("unknown worker %q (want scanner or poster)", args[0])
		}

		if stopClear {
			if err := signal.Clear(); err != nil {
				return err
			}
			fmt.Printf("Cleared stop flag for %s\n", args[0])
			return nil
		}
		if err := signal.Request(); err != nil {
			return err
		}
		fmt.Printf("Stop requested for %s (%s)\n", args[0], signal.Path)
		return nil
	},
}

func init() {
	stopCmd.Flags().BoolVar(&stopClear, "clear", false, "Remove the stop flag instead of raising it")
}

// --- backup command ---

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload a snapshot of comments, ledger and keywords",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		exporter, err := newExporter(ctx, db)
		if err != nil {
			return err
		}
		name, err := exporter.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Backup written: %s/%s\n", cfg.Backup.Container, name)
		return nil
	},
}
