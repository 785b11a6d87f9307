package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/refvec/internal/index"
)

// snippetRunes bounds the text shown per result.
const snippetRunes = 240

func newTestCmd(opts *rootOptions) *cobra.Command {
	var (
		query string
		k     int
	)

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run a test query against the index",
		Long: `Search the index with a query and print the best matching chunks with
their source document and page. The index is opened read-only.

Without --query the configured index.test_query is used.`,
		Example: `  refvec test --query "bearing clearance tolerance"
  refvec test -q "torque limits" -k 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return dispatch(cmd, opts, Invocation{
				Command:    CommandTest,
				Query:      query,
				QueryGiven: cmd.Flags().Changed("query"),
				K:          k,
			})
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Query text (default index.test_query)")
	cmd.Flags().IntVarP(&k, "limit", "k", 0, "Number of results (default index.search_limit)")

	return cmd
}

func runTest(ctx context.Context, s *session, inv Invocation) error {
	query := inv.Query
	if !inv.QueryGiven {
		query = s.cfg.Index.TestQuery
	}
	results, err := s.orch.Test(ctx, query, inv.K)
	if err != nil {
		return err
	}
	printResults(s, query, results)
	return nil
}

func printResults(s *session, query string, results []index.SearchResult) {
	if len(results) == 0 {
		_, _ = fmt.Fprintf(s.out, "No results for %q\n", query)
		return
	}

	_, _ = fmt.Fprintf(s.out, "Results for %q:\n\n", query)
	for i, r := range results {
		loc := fmt.Sprintf("chunk %d", r.ChunkIndex)
		if r.Page > 0 {
			loc = fmt.Sprintf("page %d, %s", r.Page, loc)
		}
		_, _ = fmt.Fprintf(s.out, "%d. %s (%s)  score %.3f\n", i+1, filepath.Base(r.SourcePath), loc, r.Score)
		_, _ = fmt.Fprintf(s.out, "   %s\n\n", snippet(r.Text))
	}
}

// snippet collapses whitespace and truncates to snippetRunes.
func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= snippetRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:snippetRunes]) + "..."
}
