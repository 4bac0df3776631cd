// Package remoteindex keeps the membership of a hosted search index in line
// with the set of documents a caller wants searchable.
package remoteindex

import (
	"context"

	"github.com/xhad/driftrag/internal/logger"
	"github.com/xhad/driftrag/internal/types"
	"go.uber.org/zap"
)

type Result struct {
	Added   []string
	Removed []string
}

// Reconciler holds no per-index state; one value may serve any number of
// indices concurrently.
type Reconciler struct {
	service types.RemoteIndexService
	log     *zap.Logger
}

func NewReconciler(service types.RemoteIndexService, log *zap.Logger) *Reconciler {
	log = logger.Or(log)
	return &Reconciler{service: service, log: log}
}

// Reconcile adds the desired ids missing from indexID and removes the members
// that are not desired. Additions run one at a time and each waits until the
// member is ready. Individual failures do not stop the pass; they are
// returned together in a *types.RemoteIndexError alongside what succeeded.
func (r *Reconciler) Reconcile(ctx context.Context, indexID string, desired []string) (Result, error) {
	log := r.log.With(zap.String("index_id", indexID))

	current, err := r.service.ListMembers(ctx, indexID)
	if err != nil {
		return Result{}, &types.RemoteIndexError{IndexID: indexID, Err: err}
	}

	toAdd, toRemove := plan(desired, current)
	res := Result{Added: []string{}, Removed: []string{}}
	failed := make(map[string]error)

	for _, id := range toAdd {
		if err := r.service.AddMember(ctx, indexID, id); err != nil {
			log.Warn("failed to add member", zap.String("doc_id", id), zap.Error(err))
			failed[id] = err
			continue
		}
		res.Added = append(res.Added, id)
	}

	for _, id := range toRemove {
		if err := r.service.RemoveMember(ctx, indexID, id); err != nil {
			log.Warn("failed to remove member", zap.String("doc_id", id), zap.Error(err))
			failed[id] = err
			continue
		}
		log.Info("removed member", zap.String("doc_id", id))
		res.Removed = append(res.Removed, id)
	}

	log.Info("reconciled remote index",
		zap.Int("added", len(res.Added)),
		zap.Int("removed", len(res.Removed)),
		zap.Int("failed", len(failed)))

	if len(failed) > 0 {
		return res, &types.RemoteIndexError{
			IndexID: indexID,
			Added:   res.Added,
			Removed: res.Removed,
			Failed:  failed,
		}
	}
	return res, nil
}

// plan returns desired minus current in desired order, and current minus
// desired in current order. Duplicates and empty ids are ignored.
func plan(desired, current []string) (toAdd, toRemove []string) {
	want := make(map[string]bool, len(desired))
	for _, id := range desired {
		if id != "" {
			want[id] = true
		}
	}
	have := make(map[string]bool, len(current))
	for _, id := range current {
		have[id] = true
	}

	seen := make(map[string]bool, len(desired))
	for _, id := range desired {
		if id == "" || seen[id] || have[id] {
			continue
		}
		seen[id] = true
		toAdd = append(toAdd, id)
	}

	seen = make(map[string]bool, len(current))
	for _, id := range current {
		if seen[id] || want[id] {
			continue
		}
		seen[id] = true
		toRemove = append(toRemove, id)
	}
	return toAdd, toRemove
}
