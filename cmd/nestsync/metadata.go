package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"nestsync/pkg/auth"
	"nestsync/pkg/feed"
	"nestsync/pkg/logger"
	"nestsync/pkg/store"
	"nestsync/pkg/sync"
	"nestsync/pkg/ui"
)

var (
	metadataLogin     string
	metadataStudent   string
	metadataStartDate string
	metadataEndDate   string
	noInteractive     bool
	ignoreStoredAuth  bool
	forceClear        bool
)

// metadataCmd represents the metadata command
var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Fetch activity records into the local store",
	Long: `Fetch activity records for one student and persist them locally.

The date window defaults to today; records already stored are left
untouched, so overlapping windows and repeated runs accumulate without
duplicates. A cached session is reused when possible; interactive login
prompts for the password (and a 2FA code when the account requires one).

The student is matched by substring against the full name, and the match
must be unique.`,
	Example: `  # Fetch today's records
  nestsync metadata --login parent@example.com --student Ada

  # Backfill a date range
  nestsync metadata --login parent@example.com --student Ada \
    --start-date 2023-01-01 --end-date 2023-06-30

  # Discard the cached session and log in again
  nestsync metadata --login parent@example.com --student Ada -l

  # Clear stored records for the student before fetching
  nestsync metadata --login parent@example.com --student Ada -f`,
	RunE: runMetadata,
}

func init() {
	rootCmd.AddCommand(metadataCmd)

	metadataCmd.Flags().StringVar(&metadataLogin, "login", "", "guardian account email (required)")
	metadataCmd.Flags().StringVar(&metadataStudent, "student", "", "student name filter, must match exactly one student (required)")
	metadataCmd.Flags().StringVar(&metadataStartDate, "start-date", "", "window start, YYYY-MM-DD (default: today)")
	metadataCmd.Flags().StringVar(&metadataEndDate, "end-date", "", "window end, YYYY-MM-DD, inclusive (default: start date)")
	metadataCmd.Flags().BoolVarP(&noInteractive, "no-interactive", "n", false, "never prompt; fail if the cached session is missing or rejected")
	metadataCmd.Flags().BoolVarP(&ignoreStoredAuth, "ignore-stored-auth", "l", false, "discard the cached session token and log in again")
	metadataCmd.Flags().BoolVarP(&forceClear, "force-clear", "f", false, "delete all stored records for the student before fetching")

	metadataCmd.MarkFlagRequired("login")
	metadataCmd.MarkFlagRequired("student")
}

func runMetadata(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	window, err := parseWindow(metadataStartDate, metadataEndDate)
	if err != nil {
		ui.PrintError("Invalid date window", err.Error())
		os.Exit(1)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		ui.PrintError("Failed to open record store", err.Error())
		os.Exit(1)
	}
	defer st.Close()

	tokens := auth.NewManager(st, auth.Options{
		UseKeyring:    cfg.Auth.UseKeyring,
		EncryptedFile: cfg.Auth.EncryptedFile,
	})

	client := feed.NewClient(feed.Options{
		BaseURL:           cfg.Feed.BaseURL,
		Timeout:           cfg.Feed.Timeout,
		UserAgent:         cfg.Feed.UserAgent,
		ClientVersion:     cfg.Feed.ClientVersion,
		PageSize:          cfg.Feed.PageSize,
		RequestsPerMinute: cfg.Feed.RequestsPerMinute,
	}, logger.GetLogger())

	var prompts *feed.Prompts
	if !noInteractive {
		prompts = terminalPrompts(metadataLogin)
	}

	engine := sync.NewEngine(client, tokens, st, logger.GetLogger())
	report, err := engine.Run(sync.Options{
		Login:            metadataLogin,
		StudentFilter:    metadataStudent,
		Window:           window,
		IgnoreStoredAuth: ignoreStoredAuth,
		ForceClear:       forceClear,
		Prompts:          prompts,
	})
	if err != nil {
		ui.PrintError("Metadata sync failed", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess(fmt.Sprintf("Synced %s", report.StudentName))
	ui.PrintCount("fetched", report.Fetched)
	ui.PrintCount("inserted", report.Inserted)
	ui.PrintCount("existing", report.Existing)
	ui.PrintCount("not ready", report.NotReady)
	return nil
}

// parseWindow converts the date flags into a fetch window. Both bounds
// are optional; validation of ordering happens after defaults are applied.
func parseWindow(startDate, endDate string) (feed.Window, error) {
	var window feed.Window

	if startDate != "" {
		start, err := time.Parse("2006-01-02", startDate)
		if err != nil {
			return window, fmt.Errorf("invalid start date %q: use YYYY-MM-DD", startDate)
		}
		window.Start = start
	}
	if endDate != "" {
		end, err := time.Parse("2006-01-02", endDate)
		if err != nil {
			return window, fmt.Errorf("invalid end date %q: use YYYY-MM-DD", endDate)
		}
		window.End = end
	}
	if !window.Start.IsZero() && !window.End.IsZero() && window.End.Before(window.Start) {
		return window, fmt.Errorf("end date %s is before start date %s", endDate, startDate)
	}

	return window, nil
}

// terminalPrompts builds interactive credential prompts for the terminal
func terminalPrompts(login string) *feed.Prompts {
	return &feed.Prompts{
		Password: func() (string, error) {
			fmt.Printf("Password for %s: ", login)
			if term.IsTerminal(int(syscall.Stdin)) {
				password, err := term.ReadPassword(int(syscall.Stdin))
				fmt.Println()
				if err != nil {
					return "", err
				}
				return string(password), nil
			}
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(line), nil
		},
		MFACode: func() (string, error) {
			fmt.Print("2FA code: ")
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(line), nil
		},
	}
}
