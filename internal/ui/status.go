package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"
)

// FailedFile is a document whose last processing attempt failed.
type FailedFile struct {
	Path  string `json:"path"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// StatusInfo is what `refvec status` reports.
type StatusInfo struct {
	Root    string `json:"root"`
	DataDir string `json:"data_dir"`

	Total           int `json:"total"`
	UpToDate        int `json:"up_to_date"`
	NeedsProcessing int `json:"needs_processing"`
	Failed          int `json:"failed"`
	Removed         int `json:"removed"` // indexed files no longer on disk

	IndexedFiles  int       `json:"indexed_files"`
	IndexedChunks int       `json:"indexed_chunks"`
	Model         string    `json:"model,omitempty"`
	Dimensions    int       `json:"dimensions,omitempty"`
	LastIndexed   time.Time `json:"last_indexed,omitempty"`

	MetadataSize int64 `json:"metadata_size"`
	IndexSize    int64 `json:"index_size"`

	Pending     []string     `json:"pending,omitempty"`
	FailedFiles []FailedFile `json:"failed_files,omitempty"`
}

// StatusRenderer prints StatusInfo as styled text or JSON.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor || DetectNoColor())}
}

// Render writes the human-readable report.
func (r *StatusRenderer) Render(info StatusInfo) error {
	s := r.styles
	p := func(format string, args ...any) {
		_, _ = fmt.Fprintf(r.out, format, args...)
	}

	p("%s\n\n", s.Header.Render("Reference documents: "+info.Root))

	upToDate := fmt.Sprintf("%d", info.UpToDate)
	if info.UpToDate == info.Total && info.Total > 0 {
		upToDate = s.Success.Render(upToDate)
	}
	needs := fmt.Sprintf("%d", info.NeedsProcessing)
	if info.NeedsProcessing > 0 {
		needs = s.Warning.Render(needs)
	}
	failed := fmt.Sprintf("%d", info.Failed)
	if info.Failed > 0 {
		failed = s.Error.Render(failed)
	}

	p("  Up to date:        %s\n", upToDate)
	p("  Needs processing:  %s\n", needs)
	p("  Failed:            %s\n", failed)
	p("  Total:             %d\n", info.Total)
	if info.Removed > 0 {
		p("  Removed from disk: %s\n", s.Warning.Render(fmt.Sprintf("%d", info.Removed)))
	}
	p("\n")

	p("  Index:\n")
	p("    Chunks: %d from %d files\n", info.IndexedChunks, info.IndexedFiles)
	if info.Model != "" {
		p("    Model:  %s (%d dims)\n", info.Model, info.Dimensions)
	}
	if !info.LastIndexed.IsZero() {
		p("    Last:   %s\n", formatTime(info.LastIndexed))
	}
	p("    Size:   %s index, %s metadata\n", FormatBytes(info.IndexSize), FormatBytes(info.MetadataSize))

	if len(info.Pending) > 0 {
		p("\n  %s\n", s.Label.Render("Needs processing:"))
		for _, path := range info.Pending {
			p("    %s\n", filepath.Base(path))
		}
	}
	if len(info.FailedFiles) > 0 {
		p("\n  %s\n", s.Label.Render("Failed:"))
		for _, f := range info.FailedFiles {
			p("    %s %s: %s\n", s.Error.Render("✗"), filepath.Base(f.Path), f.Error)
		}
	}
	return nil
}

// RenderJSON writes the report as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func formatTime(t time.Time) string {
	diff := time.Since(t)
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats a byte count for humans.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
