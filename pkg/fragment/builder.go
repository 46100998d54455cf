// Package fragment turns local documents into privacy-preserving knowledge
// fragments and owns their in-memory store and at-rest archive. A fragment
// carries concepts, themes, a content hash and a truncated embedding —
// never raw document text.
package fragment

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"weave/pkg/services"
	"weave/pkg/types"
)

const (
	// EmbeddingDimensions is the truncated embedding size. Truncation is a
	// privacy control: a full-dimension embedding is assumed recoverable to
	// near-original text, a 50-dimension slice is not.
	EmbeddingDimensions = 50

	// embedPrefixBytes bounds how much content is sent to the embedding
	// service per document.
	embedPrefixBytes = 1000

	// MaxConcepts bounds the concept list carried by one fragment.
	MaxConcepts = 10
)

// Builder converts documents into fragments and persists them into the
// store. The embedder, extractor and theme provider are all optional
// capabilities; a nil value means unavailable.
type Builder struct {
	nodeID       types.NodeID
	store        *Store
	embedder     services.Embedder
	extractor    services.ConceptExtractor
	themes       services.ThemeProvider
	privacyLevel types.PrivacyLevel
	logger       *zap.Logger
}

func NewBuilder(nodeID types.NodeID, store *Store, embedder services.Embedder, extractor services.ConceptExtractor, themes services.ThemeProvider, privacy types.PrivacyLevel, logger *zap.Logger) *Builder {
	if privacy == "" {
		privacy = types.PrivacyPublic
	}
	return &Builder{
		nodeID:       nodeID,
		store:        store,
		embedder:     embedder,
		extractor:    extractor,
		themes:       themes,
		privacyLevel: privacy,
		logger:       logger,
	}
}

// Build creates one fragment per document and upserts each into the store.
// A document is never dropped: missing concepts, themes or embeddings only
// make the fragment less useful. Per-document embedding failures are
// logged, not raised.
func (b *Builder) Build(ctx context.Context, docs map[string]types.Document) []types.KnowledgeFragment {
	if len(docs) == 0 {
		b.logger.Warn("no documents available for fragment creation")
		return nil
	}

	fragments := make([]types.KnowledgeFragment, 0, len(docs))
	now := time.Now().UTC()

	for title, doc := range docs {
		contentHash := sha256.Sum256([]byte(doc.Content))
		titleHash := md5.Sum([]byte(title))

		var themes []string
		if b.themes != nil {
			themes = b.themes.ThemesFor(title)
		}

		var embedding []float32
		if b.embedder != nil {
			prefix := doc.Content
			if len(prefix) > embedPrefixBytes {
				prefix = prefix[:embedPrefixBytes]
			}
			vec, err := b.embedder.Embed(ctx, prefix)
			if err != nil {
				b.logger.Warn("could not generate embedding",
					zap.String("title_hash", hex.EncodeToString(titleHash[:])),
					zap.Error(err))
			} else {
				embedding = Truncate(vec, EmbeddingDimensions)
			}
		}

		concepts := doc.Concepts
		if len(concepts) == 0 && b.extractor != nil {
			// Ingestion left this document without concepts; extraction is
			// best-effort and an empty result is still a valid fragment.
			extracted, err := b.extractor.Extract(ctx, doc.Content)
			if err != nil {
				b.logger.Warn("concept extraction failed",
					zap.String("title_hash", hex.EncodeToString(titleHash[:])),
					zap.Error(err))
			} else {
				concepts = extracted
			}
		}
		if len(concepts) > MaxConcepts {
			concepts = concepts[:MaxConcepts]
		}

		f := types.KnowledgeFragment{
			FragmentID:          FragmentID(b.nodeID, title),
			NodeID:              b.nodeID,
			ContentHash:         hex.EncodeToString(contentHash[:]),
			Concepts:            concepts,
			Themes:              themes,
			CreationTime:        now,
			LastUpdated:         now,
			SimilarityEmbedding: embedding,
			PrivacyLevel:        b.privacyLevel,
			Metadata: types.FragmentMeta{
				TitleHash:     hex.EncodeToString(titleHash[:]),
				ContentLength: len(doc.Content),
				LinkCount:     len(doc.Links),
			},
		}

		b.store.Upsert(f)
		fragments = append(fragments, f)
	}

	b.logger.Info("created knowledge fragments", zap.Int("count", len(fragments)))
	return fragments
}

// FragmentID derives the stable fragment identifier from the owning node
// and a hash of the document title. The title itself never appears.
func FragmentID(nodeID types.NodeID, title string) types.FragmentID {
	h := md5.Sum([]byte(title))
	return types.FragmentID(fmt.Sprintf("%s-%s", nodeID, hex.EncodeToString(h[:])[:8]))
}

// Truncate returns at most dims leading components of vec.
func Truncate(vec []float32, dims int) []float32 {
	if len(vec) <= dims {
		return vec
	}
	out := make([]float32, dims)
	copy(out, vec[:dims])
	return out
}
