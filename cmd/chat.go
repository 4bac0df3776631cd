package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/driftrag/internal/types"
	"github.com/xhad/driftrag/pkg/conversation"
	"github.com/xhad/driftrag/pkg/remoteindex"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var (
		files     []string
		indexID   string
		indexName string
		showRaw   bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions about the captured pages",
		Long: `Start an interactive conversation. Each question is answered from the most
similar stored chunks and the recent turns of the conversation. With --files,
the remote index is synced to exactly those file ids first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			searcher, err := a.searcher(cmd.Context(), false)
			if err != nil {
				return err
			}
			engine, err := a.chatEngine()
			if err != nil {
				return fmt.Errorf("failed to create chat engine: %w", err)
			}

			if indexID == "" {
				indexID = a.cfg.RemoteIndex.IndexID
			}
			sessionOpts := []conversation.SessionOption{conversation.WithLogger(a.log.Named("chat"))}
			if len(files) > 0 {
				idx, err := a.remoteIndex()
				if err != nil {
					return err
				}
				sessionOpts = append(sessionOpts, conversation.WithRemoteIndex(remoteindex.NewReconciler(idx, a.log), idx))
			}

			session := conversation.NewSession(conversation.SessionConfig{
				Collection:    a.cfg.Database.Collection,
				IndexID:       indexID,
				IndexName:     indexName,
				HistoryLength: a.cfg.Conversation.HistoryLength,
				TopK:          a.cfg.Search.TopK,
			}, searcher, engine, sessionOpts...)

			if len(files) > 0 {
				if err := syncSession(cmd, session, files); err != nil {
					return err
				}
			}

			return chatLoop(cmd, session, showRaw)
		},
	}

	cmd.Flags().StringSliceVar(&files, "files", nil, "file ids the remote index should hold for this conversation")
	cmd.Flags().StringVar(&indexID, "index-id", "", "remote index to sync (created when empty)")
	cmd.Flags().StringVar(&indexName, "index-name", "", "name for a newly created remote index")
	cmd.Flags().BoolVar(&showRaw, "raw", false, "print the model's raw JSON reply")
	return cmd
}

func chatLoop(cmd *cobra.Command, session *conversation.Session, showRaw bool) error {
	out := cmd.OutOrStdout()
	userPrompt := color.New(color.FgGreen)

	color.New(color.FgCyan).Fprintln(out, "\nChat with your captured pages (type 'exit' to quit)")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		userPrompt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			break
		}

		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}

		spinner := getSpinner("Thinking...")
		answer, err := session.Ask(cmd.Context(), question)
		_ = spinner.Finish()

		if err != nil {
			if cmd.Context().Err() != nil {
				return cmd.Context().Err()
			}
			errColor.Fprintf(out, "Error: %v\n", err)
			var perr *types.ParseError
			if showRaw && errors.As(err, &perr) {
				fmt.Fprintln(out, perr.Raw)
			}
			continue
		}

		printAnswer(out, answer)
		if showRaw {
			fmt.Fprintf(out, "\n%s\n", answer.Raw)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return nil
}

func printAnswer(w io.Writer, answer *conversation.Answer) {
	assistant := color.New(color.FgCyan)
	heading := color.New(color.Bold)
	reply := answer.Reply

	assistant.Fprint(w, "\nAssistant: ")
	switch {
	case reply.Summary != "":
		fmt.Fprintln(w, reply.Summary)
	case reply.Answer != "":
		fmt.Fprintln(w, reply.Answer)
	}
	if reply.Explanation != "" {
		fmt.Fprintf(w, "\n%s\n", reply.Explanation)
	}
	if reply.Positive != "" {
		addedColor.Fprintf(w, "\n+ %s\n", reply.Positive)
	}
	if reply.Negative != "" {
		removedColor.Fprintf(w, "- %s\n", reply.Negative)
	}

	if len(reply.Insights) > 0 {
		heading.Fprintln(w, "\nInsights:")
		for _, item := range reply.Insights {
			fmt.Fprintf(w, "  • %s (%s): %s\n", item.Name, item.Type, item.Value)
		}
	}
	if len(reply.FixItems) > 0 {
		heading.Fprintln(w, "\nFix items:")
		for _, item := range reply.FixItems {
			fmt.Fprintf(w, "  • %s (%s): %s\n", item.Name, item.Type, item.Value)
		}
	}

	if len(reply.Citations) > 0 {
		heading.Fprintln(w, "\nCitations:")
		for _, c := range reply.Citations {
			fmt.Fprintf(w, "  %s\n", c.Source)
			if c.Excerpt != "" {
				fmt.Fprintf(w, "    %q\n", truncate(c.Excerpt, 160))
			}
		}
	} else if len(answer.Sources) > 0 {
		heading.Fprintln(w, "\nSources:")
		seen := make(map[string]bool)
		for _, s := range answer.Sources {
			if seen[s.SourceID] {
				continue
			}
			seen[s.SourceID] = true
			fmt.Fprintf(w, "  %s (%.3f)\n", s.SourceID, s.Score)
		}
	}
}
