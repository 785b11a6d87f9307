package pipeline

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/refvec/internal/index"
	"github.com/Aman-CERP/refvec/internal/store"
)

// CleanOptions controls Clean.
type CleanOptions struct {
	// Force skips confirmation.
	Force bool
	// Confirm is asked before anything is removed unless Force is set. A
	// nil Confirm without Force declines.
	Confirm func(records, entries int) bool
}

// CleanResult reports what Clean removed.
type CleanResult struct {
	Aborted bool
	Records int
	Entries int
}

// Clean deletes every index entry and fingerprint record. It also works
// on a metadata store too damaged to open, which is how an operator
// recovers from a MetadataStoreError.
//
// Confirmation happens before the run lock is taken, so declining leaves
// the data directory exactly as it was.
func (o *Orchestrator) Clean(ctx context.Context, opts CleanOptions) (*CleanResult, error) {
	if !opts.Force {
		records, entries := o.countStored(ctx)
		if opts.Confirm == nil || !opts.Confirm(records, entries) {
			slog.Info("clean_aborted", slog.String("path", o.cfg.Paths.Root))
			return &CleanResult{Aborted: true, Records: records, Entries: entries}, nil
		}
	}

	release, err := o.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	res := &CleanResult{}
	res.Records, res.Entries = o.countStored(ctx)

	if err := store.RemoveMetadataStore(o.cfg.MetadataPath()); err != nil {
		return nil, err
	}
	if err := index.Remove(o.cfg.IndexDir()); err != nil {
		return nil, err
	}

	slog.Info("clean_done",
		slog.String("path", o.cfg.Paths.Root),
		slog.Int("records", res.Records),
		slog.Int("entries", res.Entries),
		slog.Bool("forced", opts.Force))
	return res, nil
}

// countStored counts records and entries. Unreadable stores count as
// empty; they are about to be removed anyway.
func (o *Orchestrator) countStored(ctx context.Context) (records, entries int) {
	if store.MetadataStoreExists(o.cfg.MetadataPath()) {
		if meta, err := store.OpenMetadataStore(o.cfg.MetadataPath()); err == nil {
			if all, err := meta.All(ctx); err == nil {
				records = len(all)
			}
			_ = meta.Close()
		} else {
			slog.Warn("clean_metadata_unreadable", slog.String("error", err.Error()))
		}
	}
	if stats, err := index.ReadStats(ctx, o.cfg.IndexDir()); err == nil {
		entries = stats.Entries
	}
	return records, entries
}
