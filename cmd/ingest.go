package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xhad/driftrag/internal/models"
	"github.com/xhad/driftrag/pkg/ingest"
	"github.com/xhad/driftrag/pkg/scraper"
)

var (
	okColor      = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errColor     = color.New(color.FgRed)
	addedColor   = color.New(color.FgGreen)
	removedColor = color.New(color.FgRed)
)

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var (
		depth       int
		maxPages    int
		showChanges bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <url>...",
		Short: "Capture pages and store a snapshot when their text changed",
		Long: `Render each URL, compare it with the last stored snapshot and store a new
snapshot when the text changed. With --depth, links on the same host are
followed before capturing.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			urls := args
			if depth > 0 {
				urls = discover(cmd.Context(), a, args, depth, maxPages)
			}

			results, err := captureWithProgress(cmd.Context(), a, "Capturing pages...", func(in *ingest.Ingester) ([]ingest.BatchResult, error) {
				return in.IngestAll(cmd.Context(), urls), nil
			}, len(urls))
			if err != nil {
				return err
			}
			return reportResults(cmd.OutOrStdout(), results, showChanges)
		},
	}

	cmd.Flags().IntVar(&depth, "depth", 0, "follow same-host links up to this depth before capturing")
	cmd.Flags().IntVar(&maxPages, "max-pages", 100, "stop discovery after this many pages per root")
	cmd.Flags().BoolVar(&showChanges, "show-changes", false, "print the added and removed text for changed pages")
	return cmd
}

func newRecheckCmd(opts *rootOptions) *cobra.Command {
	var showChanges bool

	cmd := &cobra.Command{
		Use:   "recheck",
		Short: "Capture every tracked URL of the collection again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			tracked, err := s.TrackedURLs(cmd.Context(), a.cfg.Database.Collection)
			if err != nil {
				return fmt.Errorf("failed to list tracked urls: %w", err)
			}
			if len(tracked) == 0 {
				cmd.Printf("No tracked pages in collection %q\n", a.cfg.Database.Collection)
				return nil
			}

			results, err := captureWithProgress(cmd.Context(), a, "Rechecking pages...", func(in *ingest.Ingester) ([]ingest.BatchResult, error) {
				return in.RecheckTracked(cmd.Context())
			}, len(tracked))
			if err != nil {
				return err
			}
			return reportResults(cmd.OutOrStdout(), results, showChanges)
		},
	}

	cmd.Flags().BoolVar(&showChanges, "show-changes", false, "print the added and removed text for changed pages")
	return cmd
}

// discover expands roots with their same-host links. A root that cannot be
// crawled is still captured on its own.
func discover(ctx context.Context, a *app, roots []string, depth, maxPages int) []string {
	spinner := getSpinner("Discovering pages...")
	defer spinner.Finish()

	crawler := scraper.NewCrawler(scraper.CrawlerConfig{
		MaxDepth:   depth,
		MaxPages:   maxPages,
		OnProgress: func(string) { _ = spinner.Add(1) },
	}, a.scraperConfig(), a.log.Named("crawler"))

	seen := make(map[string]bool)
	var urls []string
	for _, root := range roots {
		found, err := crawler.Discover(ctx, root)
		if err != nil {
			a.log.Warn("discovery failed, capturing root only", zap.String("url", root), zap.Error(err))
			found = []string{root}
		}
		for _, u := range found {
			if !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	}
	return urls
}

// captureWithProgress builds an ingester whose results advance a progress bar
// of the given size, then runs fn with it.
func captureWithProgress(
	ctx context.Context,
	a *app,
	description string,
	fn func(*ingest.Ingester) ([]ingest.BatchResult, error),
	total int,
) ([]ingest.BatchResult, error) {
	bar := getProgressBar(total, description)

	var mu sync.Mutex
	in, err := a.ingester(ctx, func(ingest.BatchResult) {
		mu.Lock()
		defer mu.Unlock()
		_ = bar.Add(1)
	})
	if err != nil {
		return nil, err
	}

	results, err := fn(in)
	_ = bar.Finish()
	return results, err
}

func reportResults(w io.Writer, results []ingest.BatchResult, showChanges bool) error {
	fmt.Fprintln(w)

	var failed, stored int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			errColor.Fprintf(w, "✗ %s: %v\n", r.URL, r.Err)
		case r.Outcome.FirstCapture:
			stored++
			okColor.Fprintf(w, "✓ %s first capture (%d chunks)\n", r.URL, len(r.Outcome.Snapshot.Chunks))
		case r.Outcome.Stored:
			stored++
			okColor.Fprintf(w, "✓ %s changed (%d runs, %d chunks)\n",
				r.URL, len(r.Outcome.Changes), len(r.Outcome.Snapshot.Chunks))
			if showChanges {
				printChanges(w, r.Outcome.Changes)
			}
		default:
			warnColor.Fprintf(w, "= %s unchanged\n", r.URL)
		}
	}

	fmt.Fprintf(w, "\n%d stored, %d unchanged, %d failed\n", stored, len(results)-stored-failed, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d pages failed", failed, len(results))
	}
	return nil
}

func printChanges(w io.Writer, changes []models.ChangeRun) {
	for _, c := range changes {
		switch c.Type {
		case models.ChangeAdded:
			addedColor.Fprintf(w, "    + %s\n", c.Text)
		case models.ChangeRemoved:
			removedColor.Fprintf(w, "    - %s\n", c.Text)
		}
	}
}
