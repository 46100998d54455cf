package types

import (
	"time"
)

type NodeID string
type FragmentID string

// PrivacyLevel controls whether a fragment may leave the node.
type PrivacyLevel string

const (
	PrivacyPublic    PrivacyLevel = "public"
	PrivacyProtected PrivacyLevel = "protected"
	PrivacyPrivate   PrivacyLevel = "private"
)

// Shareable reports whether fragments at this level are eligible for
// discovery responses and insight matching. Only public fragments are.
func (p PrivacyLevel) Shareable() bool {
	return p == PrivacyPublic
}

// KnowledgeFragment is the unit of shareable knowledge. It carries only
// derived metadata: concepts, themes, a content hash for local dedup and a
// truncated embedding. It never carries raw document text.
type KnowledgeFragment struct {
	FragmentID   FragmentID   `json:"fragment_id"`
	NodeID       NodeID       `json:"node_id"`
	ContentHash  string       `json:"content_hash"`
	Concepts     []string     `json:"concepts"`
	Themes       []string     `json:"themes"`
	CreationTime time.Time    `json:"creation_time"`
	LastUpdated  time.Time    `json:"last_updated"`
	// SimilarityEmbedding is a truncated slice of the full semantic vector.
	// The truncation is a privacy control: a full-dimension embedding is
	// assumed recoverable to near-original text, a low-dimension slice is not.
	SimilarityEmbedding []float32    `json:"similarity_embedding,omitempty"`
	PrivacyLevel        PrivacyLevel `json:"privacy_level"`
	Metadata            FragmentMeta `json:"metadata"`
}

// FragmentMeta holds derived per-fragment annotations. Content length and
// link count are safe to expose; the title is only present as a hash.
type FragmentMeta struct {
	TitleHash     string `json:"title_hash"`
	ContentLength int    `json:"content_length"`
	LinkCount     int    `json:"link_count"`
}

// FederationNode is this node's record of a peer.
type FederationNode struct {
	NodeID    NodeID    `json:"node_id"`
	Address   string    `json:"address"`
	Port      int       `json:"port"`
	PublicKey string    `json:"public_key"` // placeholder until a real handshake exists
	// TrustScore is bounded to [0,1]. 0.5 for freshly discovered peers,
	// 0.0 for explicitly registered but unverified ones.
	TrustScore     float64   `json:"trust_score"`
	LastSeen       time.Time `json:"last_seen"`
	Capabilities   []string  `json:"capabilities"`
	// SharedConcepts is what the peer has advertised. Used for coarse
	// pre-filtering only, never treated as authoritative.
	SharedConcepts []string `json:"shared_concepts"`
}

// Document is the ingestion-side input record. Content never crosses the
// fragment boundary; the builder hashes it and throws it away.
type Document struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Concepts []string `json:"concepts"`
	Links    []string `json:"links"`
}

// FederationStats is the status surface exposed to callers, e.g. an
// external dashboard.
type FederationStats struct {
	NodeID              NodeID `json:"node_id"`
	FragmentCount       int    `json:"fragment_count"`
	PeerCount           int    `json:"peer_count"`
	TotalSharedConcepts int    `json:"total_shared_concepts"`
	PrivacyLevel        string `json:"privacy_level"`
	Running             bool   `json:"running"`
}
