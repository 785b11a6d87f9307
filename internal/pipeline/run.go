package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	rverrors "github.com/Aman-CERP/refvec/internal/errors"
	"github.com/Aman-CERP/refvec/internal/index"
	"github.com/Aman-CERP/refvec/internal/scanner"
	"github.com/Aman-CERP/refvec/internal/store"
	"github.com/Aman-CERP/refvec/internal/ui"
)

// Mode selects which files a run processes.
type Mode string

const (
	// ModeVectorize processes new, changed and previously failed files.
	ModeVectorize Mode = "vectorize"
	// ModeRefresh processes every eligible file regardless of records.
	ModeRefresh Mode = "refresh"
)

// FileFailure is one file's recorded failure within a run.
type FileFailure struct {
	Path    string
	Kind    rverrors.Kind
	Message string
	Err     error
}

// Run is the summary of one vectorize or refresh invocation.
type Run struct {
	ID   string
	Mode Mode

	FilesScanned   int
	FilesProcessed int
	FilesSkipped   int
	FilesFailed    int
	FilesDeleted   int
	ChunksIndexed  int

	Failures []FileFailure
	States   map[string]State

	StartedAt time.Time
	EndedAt   time.Time
}

// Succeeded reports whether no file failed.
func (r *Run) Succeeded() bool {
	return r.FilesFailed == 0
}

// Duration is the wall time of the run.
func (r *Run) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Vectorize brings the index up to date with the directory, processing
// only files that are new, changed or failed last time.
func (o *Orchestrator) Vectorize(ctx context.Context) (*Run, error) {
	return o.run(ctx, ModeVectorize)
}

// Refresh reprocesses every eligible file.
func (o *Orchestrator) Refresh(ctx context.Context) (*Run, error) {
	return o.run(ctx, ModeRefresh)
}

// run is shared by Vectorize and Refresh. Per-file failures are recorded
// and the run continues; a non-nil error means the run was aborted, in
// which case the returned Run still describes the work done so far.
func (o *Orchestrator) run(ctx context.Context, mode Mode) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Mode:      mode,
		States:    make(map[string]State),
		StartedAt: o.now(),
	}
	var timings ui.StageTimings
	root := o.cfg.Paths.Root

	slog.Info("vectorize_started",
		slog.String("run_id", run.ID),
		slog.String("mode", string(mode)),
		slog.String("path", root))

	o.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "Scanning " + root})
	scanStart := time.Now()
	files, err := o.scanner.Scan(ctx, root)
	if err != nil {
		return o.abort(run, err)
	}
	timings.Scan = time.Since(scanStart)
	run.FilesScanned = len(files)
	o.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageScanning,
		Message: fmt.Sprintf("%d files found", len(files)),
	})
	slog.Info("vectorize_scan_complete", slog.String("run_id", run.ID), slog.Int("files", len(files)))

	release, err := o.acquire()
	if err != nil {
		return o.abort(run, err)
	}
	defer release()

	meta, err := store.OpenMetadataStore(o.cfg.MetadataPath())
	if err != nil {
		return o.abort(run, err)
	}
	defer func() { _ = meta.Close() }()

	ix, err := o.openIndex(ctx, false)
	if err != nil {
		return o.abort(run, err)
	}
	defer func() {
		if err := ix.Close(); err != nil {
			slog.Warn("index_close_failed", slog.String("error", err.Error()))
		}
	}()

	records, err := meta.All(ctx)
	if err != nil {
		return o.abort(run, err)
	}
	known := make(map[string]*store.FingerprintRecord, len(records))
	for _, rec := range records {
		known[rec.Path] = rec
	}
	scanned := make(map[string]bool, len(files))
	for _, f := range files {
		scanned[f.Path] = true
		run.States[f.Path] = StateUnseen
	}

	if err := o.removeDeleted(ctx, run, ix, meta, records, scanned); err != nil {
		return o.abort(run, err)
	}
	if err := o.sweepOrphans(ctx, run, ix, known, scanned); err != nil {
		return o.abort(run, err)
	}

	counts, err := ix.Paths(ctx)
	if err != nil {
		return o.abort(run, err)
	}
	var todo []scanner.SourceFile
	for _, f := range files {
		if reason, ok := needsProcessing(mode, f, known[f.Path], counts[f.Path]); ok {
			run.States[f.Path] = StateNeedsProcessing
			todo = append(todo, f)
			slog.Debug("vectorize_file_queued", slog.String("path", f.Path), slog.String("reason", reason))
			continue
		}
		run.States[f.Path] = StateSkipped
		run.FilesSkipped++
	}

	for i, f := range todo {
		if err := ctx.Err(); err != nil {
			slog.Info("vectorize_interrupted",
				slog.String("run_id", run.ID),
				slog.Int("processed", i),
				slog.Int("remaining", len(todo)-i))
			return o.abort(run, err)
		}
		o.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       ui.StageExtracting,
			Current:     i + 1,
			Total:       len(todo),
			CurrentFile: f.Path,
		})
		if err := o.processFile(ctx, run, ix, meta, f, &timings); err != nil {
			return o.abort(run, err)
		}
	}

	o.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageIndexing, Message: "Saving index"})
	indexStart := time.Now()
	if err := ix.Flush(ctx); err != nil {
		// Entries are committed; derived indexes are rebuilt on next open.
		slog.Warn("index_flush_failed", slog.String("error", err.Error()))
	}
	timings.Index += time.Since(indexStart)

	run.EndedAt = o.now()
	o.renderer.Complete(ui.CompletionStats{
		Mode:      string(mode),
		Scanned:   run.FilesScanned,
		Processed: run.FilesProcessed,
		Skipped:   run.FilesSkipped,
		Failed:    run.FilesFailed,
		Deleted:   run.FilesDeleted,
		Chunks:    run.ChunksIndexed,
		Duration:  run.Duration(),
		Stages:    timings,
		Embedder:  o.embedderInfo(),
	})

	info := o.embedderInfo()
	slog.Info("vectorize_complete",
		slog.String("run_id", run.ID),
		slog.String("mode", string(mode)),
		slog.Int("scanned", run.FilesScanned),
		slog.Int("processed", run.FilesProcessed),
		slog.Int("skipped", run.FilesSkipped),
		slog.Int("failed", run.FilesFailed),
		slog.Int("deleted", run.FilesDeleted),
		slog.Int("chunks", run.ChunksIndexed),
		slog.Int64("duration_total_ms", run.Duration().Milliseconds()),
		slog.Int64("duration_scan_ms", timings.Scan.Milliseconds()),
		slog.Int64("duration_extract_ms", timings.Extract.Milliseconds()),
		slog.Int64("duration_index_ms", timings.Index.Milliseconds()),
		slog.String("embedder_backend", info.Backend),
		slog.String("embedder_model", info.Model),
		slog.Int("embedder_dimensions", info.Dimensions),
		slog.String("path", root))
	return run, nil
}

func (o *Orchestrator) abort(run *Run, err error) (*Run, error) {
	run.EndedAt = o.now()
	attrs := append([]slog.Attr{
		slog.String("run_id", run.ID),
		slog.String("mode", string(run.Mode)),
		slog.Int("processed", run.FilesProcessed),
		slog.Int("failed", run.FilesFailed),
	}, rverrors.LogAttrs(err)...)
	slog.LogAttrs(context.Background(), slog.LevelError, "vectorize_aborted", attrs...)
	return run, err
}

// needsProcessing decides whether f is due in this run and why.
func needsProcessing(mode Mode, f scanner.SourceFile, rec *store.FingerprintRecord, entries int) (string, bool) {
	switch {
	case mode == ModeRefresh:
		return "refresh", true
	case f.Err != nil:
		return "unreadable", true
	case rec == nil:
		return "new", true
	case rec.Failed():
		return "retry_failed", true
	case rec.Fingerprint != f.Fingerprint:
		return "changed", true
	case entries == 0:
		// Recorded as committed but the index lost its entries.
		return "missing_entries", true
	}
	return "", false
}

// removeDeleted drops index entries and records of files that are no
// longer in the directory. Entries go first so a crash in between leaves
// a record without entries, which the next run cleans up again.
func (o *Orchestrator) removeDeleted(ctx context.Context, run *Run, ix *index.Indexer, meta store.MetadataStore,
	records []*store.FingerprintRecord, scanned map[string]bool) error {
	var gone []*store.FingerprintRecord
	for _, rec := range records {
		if !scanned[rec.Path] {
			gone = append(gone, rec)
		}
	}
	if len(gone) == 0 {
		return nil
	}

	for i, rec := range gone {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       ui.StageCleanup,
			Current:     i + 1,
			Total:       len(gone),
			CurrentFile: rec.Path,
		})

		removed, err := ix.Delete(ctx, rec.Path)
		if err != nil {
			if isAbort(ctx, err) {
				return err
			}
			// Keep the record so the deletion is retried next run.
			o.recordFailure(run, rec.Path, err)
			continue
		}
		if err := meta.Delete(ctx, rec.Path); err != nil {
			return err
		}
		run.FilesDeleted++
		slog.Info("vectorize_file_deleted",
			slog.String("path", rec.Path),
			slog.Int("entries", removed))
	}
	return nil
}

// sweepOrphans removes index entries with neither a record nor a file on
// disk, left behind by an interrupted delete.
func (o *Orchestrator) sweepOrphans(ctx context.Context, run *Run, ix *index.Indexer,
	known map[string]*store.FingerprintRecord, scanned map[string]bool) error {
	counts, err := ix.Paths(ctx)
	if err != nil {
		return err
	}
	for path := range counts {
		if known[path] != nil || scanned[path] {
			continue
		}
		removed, err := ix.Delete(ctx, path)
		if err != nil {
			if isAbort(ctx, err) {
				return err
			}
			slog.Warn("orphan_entries_delete_failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		slog.Info("orphan_entries_removed", slog.String("path", path), slog.Int("entries", removed))
	}
	return nil
}

// processFile takes one file through extracting, indexing and commit.
// Only aborting errors are returned; file failures are recorded.
func (o *Orchestrator) processFile(ctx context.Context, run *Run, ix *index.Indexer, meta store.MetadataStore,
	f scanner.SourceFile, timings *ui.StageTimings) error {
	run.States[f.Path] = StateExtracting
	if f.Err != nil {
		return o.fail(ctx, run, ix, meta, f, rverrors.ExtractionError(f.Path, f.Err))
	}
	extractStart := time.Now()
	seq, err := o.extractor.Open(f.Path)
	if err != nil {
		return o.fail(ctx, run, ix, meta, f, err)
	}
	chunks, err := seq.Collect(ctx)
	timings.Extract += time.Since(extractStart)
	if err != nil {
		return o.fail(ctx, run, ix, meta, f, err)
	}

	run.States[f.Path] = StateIndexing
	o.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:       ui.StageIndexing,
		Current:     len(chunks),
		Total:       len(chunks),
		CurrentFile: f.Path,
	})
	indexStart := time.Now()
	n, err := ix.Upsert(ctx, f.Path, chunks)
	timings.Index += time.Since(indexStart)
	if err != nil {
		return o.fail(ctx, run, ix, meta, f, err)
	}

	rec := &store.FingerprintRecord{
		Path:          f.Path,
		Fingerprint:   f.Fingerprint,
		Size:          f.Size,
		ModTime:       f.ModTime,
		LastIndexedAt: o.now(),
		ChunkCount:    n,
		Status:        store.StatusSuccess,
	}
	if err := meta.Put(ctx, rec); err != nil {
		// Entries are in but unrecorded; the next run reprocesses the file.
		return err
	}

	run.States[f.Path] = StateCommitted
	run.FilesProcessed++
	run.ChunksIndexed += n
	slog.Info("vectorize_file_committed",
		slog.String("path", f.Path),
		slog.Int("chunks", n),
		slog.String("fingerprint", f.Fingerprint))
	return nil
}

// fail records a file failure, or returns err when it must abort the run.
func (o *Orchestrator) fail(ctx context.Context, run *Run, ix *index.Indexer, meta store.MetadataStore,
	f scanner.SourceFile, err error) error {
	if isAbort(ctx, err) {
		return err
	}

	// A failed file has no entries, including those of an earlier version.
	if _, derr := ix.Delete(ctx, f.Path); derr != nil {
		if isAbort(ctx, derr) {
			return derr
		}
		slog.Warn("vectorize_stale_entries_kept", slog.String("path", f.Path), slog.String("error", derr.Error()))
	}

	kind := rverrors.KindOf(err)
	rec := &store.FingerprintRecord{
		Path:          f.Path,
		Fingerprint:   f.Fingerprint,
		Size:          f.Size,
		ModTime:       f.ModTime,
		LastIndexedAt: o.now(),
		Status:        store.StatusFailed,
		ErrorKind:     string(kind),
		Error:         err.Error(),
	}
	if perr := meta.Put(ctx, rec); perr != nil {
		return perr
	}

	run.States[f.Path] = StateFailed
	o.recordFailure(run, f.Path, err)
	return nil
}

func (o *Orchestrator) recordFailure(run *Run, path string, err error) {
	kind := rverrors.KindOf(err)
	run.FilesFailed++
	run.Failures = append(run.Failures, FileFailure{
		Path:    path,
		Kind:    kind,
		Message: err.Error(),
		Err:     err,
	})
	o.renderer.AddError(ui.ErrorEvent{File: path, Kind: string(kind), Err: err})

	attrs := append([]slog.Attr{slog.String("path", path)}, rverrors.LogAttrs(err)...)
	slog.LogAttrs(context.Background(), slog.LevelWarn, "vectorize_file_failed", attrs...)
}

// isAbort reports whether err ends the whole run rather than one file.
func isAbort(ctx context.Context, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return true
	}
	return rverrors.IsFatal(err)
}
