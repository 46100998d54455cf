package protocol

import (
	"fmt"
	"testing"
)

func TestDecode_Roundtrip(t *testing.T) {
	env := NewDiscovery("weave-aaa", 8447, []string{"roadmap", "discovery"})

	decoded, ok := Decode(env.Encode())
	if !ok {
		t.Fatal("failed to decode well-formed discovery message")
	}
	if decoded.Type != TypeDiscovery {
		t.Errorf("Type = %q, want %q", decoded.Type, TypeDiscovery)
	}
	if decoded.NodeID != "weave-aaa" || decoded.Port != 8447 {
		t.Errorf("identity fields lost: %+v", decoded)
	}
	if len(decoded.Concepts) != 2 {
		t.Errorf("Concepts = %v, want 2 entries", decoded.Concepts)
	}
}

func TestDecode_MalformedDroppedSilently(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("not json"),
		[]byte(`{}`),
		[]byte(`{"type":"unknown_type","node_id":"x"}`),
		[]byte(`{"type":"discovery"}`),                       // missing node_id
		[]byte(`{"type":"insight_request","from_node":"a"}`), // missing query
	}
	for _, payload := range cases {
		if _, ok := Decode(payload); ok {
			t.Errorf("Decode(%q) accepted malformed input", payload)
		}
	}
}

func TestNewDiscovery_BoundsConcepts(t *testing.T) {
	concepts := make([]string, 50)
	for i := range concepts {
		concepts[i] = fmt.Sprintf("concept-%d", i)
	}

	env := NewDiscovery("weave-bbb", 8447, concepts)
	if len(env.Concepts) != MaxDiscoveryConcepts {
		t.Errorf("Concepts = %d, want bounded to %d", len(env.Concepts), MaxDiscoveryConcepts)
	}
}

func TestNewInsightResponse_BoundsConceptsUsed(t *testing.T) {
	used := []string{"a", "b", "c", "d", "e", "f", "g"}
	env := NewInsightResponse("weave-ccc", "some insight", used, 0.7)
	if len(env.ConceptsUsed) != MaxConceptsUsed {
		t.Errorf("ConceptsUsed = %d, want bounded to %d", len(env.ConceptsUsed), MaxConceptsUsed)
	}
	if env.Confidence != 0.7 {
		t.Errorf("Confidence = %v, want 0.7", env.Confidence)
	}
}

func TestDecode_InsightRequest(t *testing.T) {
	env := NewInsightRequest("weave-ddd", "product discovery", "ab12cd34")
	decoded, ok := Decode(env.Encode())
	if !ok {
		t.Fatal("failed to decode insight request")
	}
	if decoded.FromNode != "weave-ddd" || decoded.Query != "product discovery" || decoded.RequestID != "ab12cd34" {
		t.Errorf("fields lost: %+v", decoded)
	}
}
