package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xhad/driftrag/internal/types"
	"github.com/xhad/driftrag/pkg/conversation"
	"github.com/xhad/driftrag/pkg/remoteindex"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	var (
		indexID   string
		indexName string
	)

	cmd := &cobra.Command{
		Use:   "sync [file-id]...",
		Short: "Make the remote index hold exactly the given file ids",
		Long: `Add the given file ids to the remote index and remove every other member.
With no ids the index is emptied. Without --index-id (or remote_index.index_id
in config) a new index is created and its id printed.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			idx, err := a.remoteIndex()
			if err != nil {
				return err
			}
			if indexID == "" {
				indexID = a.cfg.RemoteIndex.IndexID
			}

			session := conversation.NewSession(conversation.SessionConfig{
				Collection: a.cfg.Database.Collection,
				IndexID:    indexID,
				IndexName:  indexName,
			}, nil, nil,
				conversation.WithRemoteIndex(remoteindex.NewReconciler(idx, a.log), idx),
				conversation.WithLogger(a.log.Named("sync")))

			return syncSession(cmd, session, args)
		},
	}

	cmd.Flags().StringVar(&indexID, "index-id", "", "remote index to reconcile")
	cmd.Flags().StringVar(&indexName, "name", "", "name for a newly created index (default: the collection)")
	return cmd
}

func newUploadCmd(opts *rootOptions) *cobra.Command {
	var indexID string

	cmd := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload files for the remote index and print their file ids",
		Long: `Upload each file and print its id. With --index-id the uploaded files are
also added to that index, leaving its other members in place.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			idx, err := a.remoteIndex()
			if err != nil {
				return err
			}

			var failed int
			for _, path := range args {
				spinner := getSpinner(fmt.Sprintf("Uploading %s...", path))
				fileID, err := idx.UploadFile(cmd.Context(), path)
				if err == nil && indexID != "" {
					err = idx.AddMember(cmd.Context(), indexID, fileID)
				}
				_ = spinner.Finish()

				if err != nil {
					failed++
					errColor.Fprintf(cmd.OutOrStdout(), "✗ %s: %v\n", path, err)
					continue
				}
				okColor.Fprintf(cmd.OutOrStdout(), "✓ %s %s\n", fileID, path)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d uploads failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&indexID, "index-id", "", "also add the uploaded files to this index")
	return cmd
}

// syncSession reconciles the session's remote index and reports what changed.
func syncSession(cmd *cobra.Command, session *conversation.Session, fileIDs []string) error {
	out := cmd.OutOrStdout()

	spinner := getSpinner("Syncing remote index...")
	result, err := session.SyncDocuments(cmd.Context(), fileIDs)
	_ = spinner.Finish()

	var rerr *types.RemoteIndexError
	if errors.As(err, &rerr) {
		result = remoteindex.Result{Added: rerr.Added, Removed: rerr.Removed}
	}

	if id := session.IndexID(); id != "" {
		fmt.Fprintf(out, "Index %s\n", id)
	}
	for _, id := range result.Added {
		addedColor.Fprintf(out, "  + %s\n", id)
	}
	for _, id := range result.Removed {
		removedColor.Fprintf(out, "  - %s\n", id)
	}
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	if len(result.Added) == 0 && len(result.Removed) == 0 {
		warnColor.Fprintln(out, "  already in sync")
	}
	return nil
}
