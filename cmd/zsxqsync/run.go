package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"zsxqsync/pkg/auth"
	"zsxqsync/pkg/backfill"
	"zsxqsync/pkg/config"
	"zsxqsync/pkg/logger"
)

var (
	// Run command flags
	groupFilter         []string
	datasetFormat       string
	concurrentGroups    int
	concurrentDownloads int
	pacingMin           time.Duration
	pacingMax           time.Duration
	accountName         string
)

// runCmd backfills every configured group
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Backfill every configured group",
	Long: `Backfill every configured group from the newest topic down to its watermark.

Credentials come from, in order:
  - a Cookie header in the config headers or headers_file
  - a stored account ('zsxqsync auth login'), selected with --account
  - the ZSXQSYNC_ACCESS_TOKEN environment variable`,
	Example: `  # Backfill all groups
  zsxqsync run

  # Only two groups, no pacing, XLSX output
  zsxqsync run --group 51122858222824 --group notes --pacing-min 0 --pacing-max 0 --dataset-format xlsx`,
	Args: cobra.NoArgs,
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&groupFilter, "group", "g", nil, "only backfill these group ids or names")
	cmd.Flags().StringVar(&datasetFormat, "dataset-format", "", "dataset format (sqlite, xlsx)")
	cmd.Flags().IntVar(&concurrentGroups, "concurrent-groups", 0, "groups backfilled at the same time")
	cmd.Flags().IntVar(&concurrentDownloads, "concurrent-downloads", 0, "asset download workers")
	cmd.Flags().DurationVar(&pacingMin, "pacing-min", 0, "minimum pause between page requests")
	cmd.Flags().DurationVar(&pacingMax, "pacing-max", 0, "maximum pause between page requests")
	cmd.Flags().StringVarP(&accountName, "account", "a", "", "use a specific stored account")
}

func runFlags(cmd *cobra.Command) map[string]interface{} {
	flags := globalFlags()
	if len(groupFilter) > 0 {
		flags["groups"] = groupFilter
	}
	if datasetFormat != "" {
		flags["dataset-format"] = datasetFormat
	}
	if concurrentGroups > 0 {
		flags["concurrent-groups"] = concurrentGroups
	}
	if concurrentDownloads > 0 {
		flags["concurrent-downloads"] = concurrentDownloads
	}
	if cmd.Flags().Changed("pacing-min") {
		flags["pacing-min"] = pacingMin
	}
	if cmd.Flags().Changed("pacing-max") {
		flags["pacing-max"] = pacingMax
	}
	if accountName != "" {
		flags["account"] = accountName
	}
	return flags
}

func runBackfill(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, runFlags(cmd))
	if err != nil {
		return err
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log = log.WithField("version", version)

	headers, err := requestHeaders(cfg, log)
	if err != nil {
		return err
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	sources, err := cfg.Sources(loc)
	if err != nil {
		return err
	}

	service, err := backfill.New(cfg, headers, log)
	if err != nil {
		return err
	}
	defer service.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, runErr := service.RunAll(ctx, sources)
	renderResults(cmd.OutOrStdout(), results)
	log.InfoWithFields("assets written", map[string]interface{}{
		"files": service.Storage.SavedCount(),
		"bytes": service.Storage.SavedBytes(),
	})

	if errors.Is(runErr, context.Canceled) {
		return errors.New("interrupted; watermarks of unfinished groups were kept")
	}
	if runErr != nil {
		return fmt.Errorf("some groups did not complete: %w", runErr)
	}
	return nil
}

// requestHeaders merges configured headers with a stored account's session
// cookie. Configured cookies win.
func requestHeaders(cfg *config.Config, log logger.Logger) (map[string]string, error) {
	headers, err := cfg.RequestHeaders()
	if err != nil {
		return nil, err
	}
	if config.HasCookie(headers) {
		return headers, nil
	}

	manager, err := auth.NewManager("")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	account, err := manager.Resolve(cfg.API.Account)
	if err != nil {
		if errors.Is(err, auth.ErrCredentialsNotFound) {
			return nil, fmt.Errorf("no credentials: add a Cookie header or run 'zsxqsync auth login' (%w)", err)
		}
		return nil, err
	}

	log.InfoWithFields("using stored account", map[string]interface{}{
		"account": account.Name,
	})
	return auth.ApplyHeaders(headers, account), nil
}

func renderResults(out io.Writer, results []*backfill.Result) {
	if len(results) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Group", "Outcome", "Pages", "Requests", "New", "Dup", "Assets", "Failed", "Watermark", "Duration"})

	for _, r := range results {
		if r == nil {
			continue
		}
		wm := r.Watermark.String()
		if !r.Advanced {
			wm += " (kept)"
		}
		t.AppendRow(table.Row{
			r.GroupName,
			string(r.Outcome),
			r.Pages,
			r.Requests,
			r.Appended,
			r.Duplicates,
			r.Assets.AssetsStored + r.Assets.AssetsSkipped,
			r.Assets.AssetsFailed,
			wm,
			r.Duration.Round(time.Second).String(),
		})
	}
	t.Render()
}
