package index

import (
	"log/slog"
)

// Inconsistency is a derived index that disagrees with the entries table
// even though its recorded generation says it is current, for example
// after the index files were restored from an older backup.
type Inconsistency struct {
	Index    string // "vector" or "keyword"
	Expected int    // entries in the source of truth
	Found    int    // entries in the derived index
}

// checkCount compares a derived index's size with the entries count.
func checkCount(index string, expected, found int) *Inconsistency {
	if expected == found {
		return nil
	}
	return &Inconsistency{Index: index, Expected: expected, Found: found}
}

func (i *Inconsistency) log() {
	slog.Warn("derived_index_inconsistent",
		slog.String("index", i.Index),
		slog.Int("expected", i.Expected),
		slog.Int("found", i.Found))
}
