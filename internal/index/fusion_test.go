package index

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/refvec/internal/store"
)

func keywordHits(ids ...string) []*store.BM25Result {
	out := make([]*store.BM25Result, len(ids))
	for i, id := range ids {
		out[i] = &store.BM25Result{DocID: id, Score: float64(len(ids) - i), MatchedTerms: []string{"term"}}
	}
	return out
}

func vectorHits(ids ...string) []*store.VectorResult {
	out := make([]*store.VectorResult, len(ids))
	for i, id := range ids {
		out[i] = &store.VectorResult{ID: id, Score: 0.9 - float32(i)*0.05}
	}
	return out
}

func fusedIDs(results []*fusedResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	return ids
}

// TS01: Basic RRF fusion
func TestFuse_Basic(t *testing.T) {
	// Given: keyword [A, B, C] and vector [C, A, D]
	f := newRRFFusion(DefaultRRFConstant)

	// When: fusing
	results := f.Fuse(keywordHits("A", "B", "C"), vectorHits("C", "A", "D"), DefaultWeights())

	// Then: every chunk appears once, chunks in both lists lead
	require.Len(t, results, 4)
	assert.ElementsMatch(t, []string{"A", "B", "C", "D"}, fusedIDs(results))
	assert.True(t, results[0].InBothLists)
	assert.True(t, results[1].InBothLists)
	assert.InDelta(t, 1.0, results[0].RRFScore, 1e-9)
}

// TS02: Scores are normalized and original scores preserved
func TestFuse_NormalizesAndPreserves(t *testing.T) {
	f := newRRFFusion(DefaultRRFConstant)
	results := f.Fuse(keywordHits("A"), vectorHits("A", "B"), DefaultWeights())

	require.Len(t, results, 2)
	a := results[0]
	assert.Equal(t, "A", a.ChunkID)
	assert.InDelta(t, 1.0, a.RRFScore, 1e-9)
	assert.Equal(t, 1, a.KeywordRank)
	assert.Equal(t, 1, a.VectorRank)
	assert.InDelta(t, 0.9, a.VectorScore, 1e-6)
	assert.Equal(t, []string{"term"}, a.MatchedTerms)

	for _, r := range results {
		assert.GreaterOrEqual(t, r.RRFScore, 0.0)
		assert.LessOrEqual(t, r.RRFScore, 1.0)
	}
}

// TS03: A chunk missing from one list is credited at the missing rank
func TestFuse_MissingRank(t *testing.T) {
	f := newRRFFusion(DefaultRRFConstant)
	w := Weights{Vector: 0.5, Keyword: 0.5}

	results := f.Fuse(keywordHits("K"), vectorHits("V1", "V2"), w)

	byID := make(map[string]*fusedResult)
	for _, r := range results {
		byID[r.ChunkID] = r
	}
	require.Contains(t, byID, "K")
	assert.Equal(t, 0, byID["K"].VectorRank)
	assert.Equal(t, 0, byID["V1"].KeywordRank)
	assert.False(t, byID["K"].InBothLists)
}

// TS04: Ties are broken deterministically
func TestFuse_TieBreaking(t *testing.T) {
	f := newRRFFusion(DefaultRRFConstant)
	w := Weights{Vector: 0.5, Keyword: 0.5}

	// Given: B and A each top one list with equal weight
	for i := 0; i < 10; i++ {
		results := f.Fuse(keywordHits("B"), vectorHits("A"), w)

		// Then: equal scores, higher keyword score first
		require.Len(t, results, 2)
		assert.Equal(t, []string{"B", "A"}, fusedIDs(results))
	}

	// And: identical scores with no keyword signal fall back to ID order
	results := f.Fuse(nil, []*store.VectorResult{{ID: "z", Score: 0.5}}, w)
	require.Len(t, results, 1)
	results = f.Fuse([]*store.BM25Result{{DocID: "y", Score: 1}, {DocID: "x", Score: 1}}, nil, Weights{Keyword: 1})
	assert.Equal(t, []string{"y", "x"}, fusedIDs(results))
}

func TestFuse_Empty(t *testing.T) {
	f := newRRFFusion(0)

	assert.Equal(t, DefaultRRFConstant, f.K)
	assert.Empty(t, f.Fuse(nil, nil, DefaultWeights()))
}

func TestFuse_WeightsShiftRanking(t *testing.T) {
	// Given: keyword prefers A, vector prefers B
	kw := keywordHits("A", "B")
	vec := vectorHits("B", "A")
	f := newRRFFusion(DefaultRRFConstant)

	keywordHeavy := f.Fuse(kw, vec, Weights{Vector: 0.1, Keyword: 0.9})
	vectorHeavy := f.Fuse(kw, vec, Weights{Vector: 0.9, Keyword: 0.1})

	assert.Equal(t, "A", keywordHeavy[0].ChunkID)
	assert.Equal(t, "B", vectorHeavy[0].ChunkID)
}

func BenchmarkFuse(b *testing.B) {
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = fmt.Sprintf("chunk-%03d", i)
	}
	kw := keywordHits(ids...)
	vec := vectorHits(ids...)
	f := newRRFFusion(DefaultRRFConstant)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Fuse(kw, vec, DefaultWeights())
	}
}
