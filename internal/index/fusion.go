package index

import (
	"sort"

	"github.com/Aman-CERP/refvec/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
const DefaultRRFConstant = 60

// Weights balances the two ranked lists in fusion.
type Weights struct {
	Vector  float64
	Keyword float64
}

// DefaultWeights favours semantic similarity; keyword matches break ties
// and rescue exact terms the embedding misses.
func DefaultWeights() Weights {
	return Weights{Vector: 0.65, Keyword: 0.35}
}

// fusedResult is one chunk after RRF fusion.
type fusedResult struct {
	ChunkID      string
	RRFScore     float64 // normalized 0-1
	KeywordScore float64
	KeywordRank  int // 1-indexed, 0 if absent
	VectorScore  float64
	VectorRank   int // 1-indexed, 0 if absent
	InBothLists  bool
	MatchedTerms []string
}

// rrfFusion combines keyword and vector results using Reciprocal Rank
// Fusion: score(d) = Σ weight_i / (k + rank_i).
type rrfFusion struct {
	K int
}

func newRRFFusion(k int) *rrfFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &rrfFusion{K: k}
}

// Fuse merges both lists. A chunk missing from one list is credited at
// rank max(len(keyword), len(vector)) + 1 for that list.
//
// Order: RRFScore desc, InBothLists first, KeywordScore desc, ChunkID asc.
func (f *rrfFusion) Fuse(keyword []*store.BM25Result, vec []*store.VectorResult, weights Weights) []*fusedResult {
	if len(keyword) == 0 && len(vec) == 0 {
		return []*fusedResult{}
	}

	scores := make(map[string]*fusedResult, len(keyword)+len(vec))

	for rank, r := range keyword {
		result := f.getOrCreate(scores, r.DocID)
		result.KeywordScore = r.Score
		result.KeywordRank = rank + 1
		result.MatchedTerms = r.MatchedTerms
		result.RRFScore += weights.Keyword / float64(f.K+rank+1)
	}

	for rank, r := range vec {
		result := f.getOrCreate(scores, r.ID)
		result.VectorScore = float64(r.Score)
		result.VectorRank = rank + 1
		result.RRFScore += weights.Vector / float64(f.K+rank+1)
		if result.KeywordRank > 0 {
			result.InBothLists = true
		}
	}

	missingRank := max(len(keyword), len(vec)) + 1
	for _, r := range scores {
		if r.KeywordRank == 0 && r.VectorRank > 0 {
			r.RRFScore += weights.Keyword / float64(f.K+missingRank)
		}
		if r.VectorRank == 0 && r.KeywordRank > 0 {
			r.RRFScore += weights.Vector / float64(f.K+missingRank)
		}
	}

	results := make([]*fusedResult, 0, len(scores))
	for _, r := range scores {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		return f.compare(results[i], results[j])
	})

	f.normalize(results)
	return results
}

func (f *rrfFusion) getOrCreate(m map[string]*fusedResult, id string) *fusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &fusedResult{ChunkID: id}
	m[id] = r
	return r
}

// compare reports whether a ranks before b.
func (f *rrfFusion) compare(a, b *fusedResult) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	if a.KeywordScore != b.KeywordScore {
		return a.KeywordScore > b.KeywordScore
	}
	return a.ChunkID < b.ChunkID
}

// normalize scales scores so the best result is 1.0.
func (f *rrfFusion) normalize(results []*fusedResult) {
	if len(results) == 0 {
		return
	}
	maxScore := results[0].RRFScore
	if maxScore == 0 {
		return
	}
	for _, r := range results {
		r.RRFScore /= maxScore
	}
}
