// Package protocol defines the JSON wire messages exchanged between
// federation peers. All messages share a single envelope with a "type"
// discriminator so that broadcast discovery and unicast insight exchange
// can travel over the same datagram transport.
package protocol

import (
	"encoding/json"

	"weave/pkg/types"
)

// Message types.
const (
	TypeDiscovery         = "discovery"
	TypeDiscoveryResponse = "discovery_response"
	TypeInsightRequest    = "insight_request"
	TypeInsightResponse   = "insight_response"
)

// Bounds enforced on outgoing messages.
const (
	MaxDiscoveryConcepts = 20
	MaxConceptsUsed      = 5
)

// Envelope carries any federation message. Only the fields relevant to the
// declared Type are populated.
type Envelope struct {
	Type string `json:"type"`

	// Discovery fields.
	NodeID       types.NodeID `json:"node_id,omitempty"`
	Port         int          `json:"port,omitempty"`
	Concepts     []string     `json:"concepts,omitempty"`
	Capabilities []string     `json:"capabilities,omitempty"`

	// Insight exchange fields.
	FromNode     types.NodeID `json:"from_node,omitempty"`
	Query        string       `json:"query,omitempty"`
	RequestID    string       `json:"request_id,omitempty"`
	Insights     string       `json:"insights,omitempty"`
	ConceptsUsed []string     `json:"concepts_used,omitempty"`
	Confidence   float64      `json:"confidence,omitempty"`
}

// NewDiscovery builds a discovery broadcast advertising a bounded sample of
// concept labels. Labels only, never content.
func NewDiscovery(nodeID types.NodeID, port int, sampleConcepts []string) Envelope {
	return Envelope{
		Type:     TypeDiscovery,
		NodeID:   nodeID,
		Port:     port,
		Concepts: truncate(sampleConcepts, MaxDiscoveryConcepts),
	}
}

// NewDiscoveryResponse builds the announcer's answer to a discovery request.
func NewDiscoveryResponse(nodeID types.NodeID, port int, capabilities, concepts []string) Envelope {
	return Envelope{
		Type:         TypeDiscoveryResponse,
		NodeID:       nodeID,
		Port:         port,
		Capabilities: capabilities,
		Concepts:     truncate(concepts, MaxDiscoveryConcepts),
	}
}

// NewInsightRequest builds a query to a peer. The request id is only used
// for correlation and logging, not security.
func NewInsightRequest(from types.NodeID, query, requestID string) Envelope {
	return Envelope{
		Type:      TypeInsightRequest,
		FromNode:  from,
		Query:     query,
		RequestID: requestID,
	}
}

// NewInsightResponse builds a synthesized answer. The concepts actually
// used are reported back, bounded to MaxConceptsUsed.
func NewInsightResponse(from types.NodeID, insights string, conceptsUsed []string, confidence float64) Envelope {
	return Envelope{
		Type:         TypeInsightResponse,
		FromNode:     from,
		Insights:     insights,
		ConceptsUsed: truncate(conceptsUsed, MaxConceptsUsed),
		Confidence:   confidence,
	}
}

// Encode serializes the envelope for the wire.
func (e Envelope) Encode() []byte {
	b, err := json.Marshal(e)
	if err != nil {
		// Envelope fields are all marshalable types; this cannot fail.
		return nil
	}
	return b
}

// Decode parses a wire payload. Malformed input is reported with ok=false
// and dropped by callers; protocol errors never propagate as faults.
func Decode(payload []byte) (Envelope, bool) {
	var e Envelope
	if err := json.Unmarshal(payload, &e); err != nil {
		return Envelope{}, false
	}
	switch e.Type {
	case TypeDiscovery, TypeDiscoveryResponse:
		if e.NodeID == "" {
			return Envelope{}, false
		}
	case TypeInsightRequest:
		if e.FromNode == "" || e.Query == "" {
			return Envelope{}, false
		}
	case TypeInsightResponse:
		if e.FromNode == "" {
			return Envelope{}, false
		}
	default:
		return Envelope{}, false
	}
	return e, true
}

func truncate(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
