// Package match scores knowledge fragments against a query using cosine
// similarity over truncated embeddings.
package match

import (
	"context"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"weave/pkg/fragment"
	"weave/pkg/services"
	"weave/pkg/types"
)

// RelevanceThreshold is the minimum cosine similarity for a candidate to
// be included in match results.
const RelevanceThreshold = 0.3

// Match is one scored candidate, attributed to the fragment's owner.
type Match struct {
	NodeID types.NodeID `json:"node_id"`
	Score  float64      `json:"score"`
}

// Matcher ranks candidate fragments for a query. The embedder is optional;
// without it every match attempt degrades to an empty result.
type Matcher struct {
	selfID   types.NodeID
	embedder services.Embedder
	logger   *zap.Logger
}

func NewMatcher(selfID types.NodeID, embedder services.Embedder, logger *zap.Logger) *Matcher {
	return &Matcher{
		selfID:   selfID,
		embedder: embedder,
		logger:   logger,
	}
}

// Match embeds the joined query concepts, truncates to the fragment
// dimension and scores every candidate. Fragments without an embedding and
// fragments owned by this node are skipped. Results are sorted descending
// and capped at maxResults.
func (m *Matcher) Match(ctx context.Context, queryConcepts []string, candidates []types.KnowledgeFragment, maxResults int) []Match {
	if m.embedder == nil {
		m.logger.Warn("embedder not available for matching")
		return nil
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	queryVec, err := m.embedder.Embed(ctx, strings.Join(queryConcepts, " "))
	if err != nil {
		m.logger.Error("could not generate query embedding", zap.Error(err))
		return nil
	}
	queryVec = fragment.Truncate(queryVec, fragment.EmbeddingDimensions)

	var matches []Match
	for _, f := range candidates {
		if f.NodeID == m.selfID || len(f.SimilarityEmbedding) == 0 {
			continue
		}
		if !f.PrivacyLevel.Shareable() {
			continue
		}
		score := Cosine(queryVec, f.SimilarityEmbedding)
		if score > RelevanceThreshold {
			matches = append(matches, Match{NodeID: f.NodeID, Score: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}

// Cosine returns the cosine similarity of two vectors. Length mismatch or
// a zero-magnitude vector yields 0; that is a guard, not an error
// condition.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
