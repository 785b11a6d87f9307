package pipeline

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/refvec/internal/index"
	"github.com/Aman-CERP/refvec/internal/store"
	"github.com/Aman-CERP/refvec/internal/ui"
)

// StatusReport compares the metadata store against a fresh scan. Each
// scanned file lands in exactly one of UpToDate, Pending or Failed.
type StatusReport struct {
	Root    string
	DataDir string

	Total    int
	UpToDate []string
	Pending  []string
	Failed   []*store.FingerprintRecord
	Removed  []string // recorded, no longer on disk

	Index        index.Stats
	LastIndexed  time.Time
	MetadataSize int64
	IndexSize    int64
}

// Status reports what a vectorize run would do. It takes no lock and
// never creates, migrates or repairs anything on disk.
func (o *Orchestrator) Status(ctx context.Context) (*StatusReport, error) {
	files, err := o.scanner.Scan(ctx, o.cfg.Paths.Root)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		Root:    o.cfg.Paths.Root,
		DataDir: o.cfg.Paths.DataDir,
		Total:   len(files),
	}

	var records []*store.FingerprintRecord
	if store.MetadataStoreExists(o.cfg.MetadataPath()) {
		meta, err := store.OpenMetadataStore(o.cfg.MetadataPath())
		if err != nil {
			return nil, err
		}
		records, err = meta.All(ctx)
		_ = meta.Close()
		if err != nil {
			return nil, err
		}
	}

	stats, err := index.ReadStats(ctx, o.cfg.IndexDir())
	if err != nil {
		return nil, err
	}
	report.Index = stats

	known := make(map[string]*store.FingerprintRecord, len(records))
	for _, rec := range records {
		known[rec.Path] = rec
		if rec.LastIndexedAt.After(report.LastIndexed) {
			report.LastIndexed = rec.LastIndexedAt
		}
	}

	scanned := make(map[string]bool, len(files))
	for _, f := range files {
		scanned[f.Path] = true
		rec := known[f.Path]
		if rec != nil && rec.Failed() && rec.Fingerprint == f.Fingerprint {
			report.Failed = append(report.Failed, rec)
			continue
		}
		if _, due := needsProcessing(ModeVectorize, f, rec, stats.PathEntries[f.Path]); due {
			report.Pending = append(report.Pending, f.Path)
			continue
		}
		report.UpToDate = append(report.UpToDate, f.Path)
	}
	for _, rec := range records {
		if !scanned[rec.Path] {
			report.Removed = append(report.Removed, rec.Path)
		}
	}

	report.MetadataSize = fileSize(o.cfg.MetadataPath())
	report.IndexSize = dirSize(o.cfg.IndexDir())
	return report, nil
}

// StatusInfo converts the report for rendering.
func (r *StatusReport) StatusInfo() ui.StatusInfo {
	info := ui.StatusInfo{
		Root:            r.Root,
		DataDir:         r.DataDir,
		Total:           r.Total,
		UpToDate:        len(r.UpToDate),
		NeedsProcessing: len(r.Pending),
		Failed:          len(r.Failed),
		Removed:         len(r.Removed),
		IndexedFiles:    r.Index.Paths,
		IndexedChunks:   r.Index.Entries,
		Model:           r.Index.Model,
		Dimensions:      r.Index.Dimensions,
		LastIndexed:     r.LastIndexed,
		MetadataSize:    r.MetadataSize,
		IndexSize:       r.IndexSize,
		Pending:         r.Pending,
	}
	for _, rec := range r.Failed {
		info.FailedFiles = append(info.FailedFiles, ui.FailedFile{
			Path:  rec.Path,
			Kind:  rec.ErrorKind,
			Error: rec.Error,
		})
	}
	return info
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
