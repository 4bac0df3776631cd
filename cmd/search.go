package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/driftrag/internal/models"
)

type searchHit struct {
	Score      float64 `json:"score"`
	URL        string  `json:"url"`
	Title      string  `json:"title"`
	SnapshotID string  `json:"snapshot_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	CapturedAt string  `json:"captured_at"`
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
		latestOnly bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank stored chunks by similarity to a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			searcher, err := a.searcher(cmd.Context(), latestOnly)
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = a.cfg.Search.TopK
			}

			results, err := searcher.Search(cmd.Context(), args[0], limit)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			if jsonOutput {
				return printSearchJSON(cmd, results)
			}
			printSearchText(cmd, args[0], results)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output results as JSON")
	cmd.Flags().BoolVar(&latestOnly, "latest", false, "only rank chunks of each page's newest snapshot")
	return cmd
}

func printSearchJSON(cmd *cobra.Command, results []models.RankedChunk) error {
	hits := make([]searchHit, len(results))
	for i, r := range results {
		hits[i] = searchHit{
			Score:      r.Score,
			URL:        r.SourceID,
			Title:      r.SourceTitle,
			SnapshotID: r.SnapshotID,
			ChunkIndex: r.Index,
			Text:       r.Text,
			CapturedAt: r.CreatedAt.Format(time.RFC3339),
		}
	}

	data, err := json.MarshalIndent(hits, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func printSearchText(cmd *cobra.Command, query string, results []models.RankedChunk) {
	if len(results) == 0 {
		cmd.Printf("No results for %q\n", query)
		return
	}

	cmd.Printf("Found %d results for %q\n\n", len(results), query)
	for i, r := range results {
		title := r.SourceTitle
		if title == "" {
			title = r.SourceID
		}
		cmd.Printf("%s %s\n", color.CyanString("[%d]", i+1), title)
		cmd.Printf("    %s  score %.3f  captured %s\n",
			r.SourceID, r.Score, r.CreatedAt.Format("2006-01-02 15:04"))
		cmd.Printf("    %s\n\n", truncate(r.Text, 200))
	}
}

func truncate(s string, n int) string {
	runes := []rune(strings.Join(strings.Fields(s), " "))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "..."
}
