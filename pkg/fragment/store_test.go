package fragment

import (
	"testing"

	"weave/pkg/types"
)

func publicFragment(id types.FragmentID, concepts ...string) types.KnowledgeFragment {
	return types.KnowledgeFragment{
		FragmentID:   id,
		NodeID:       "weave-test",
		Concepts:     concepts,
		PrivacyLevel: types.PrivacyPublic,
	}
}

func TestStore_UpsertReplaces(t *testing.T) {
	s := NewStore()
	s.Upsert(publicFragment("f1", "roadmap"))
	s.Upsert(publicFragment("f1", "roadmap", "discovery"))

	if s.Count() != 1 {
		t.Fatalf("Count = %d, want 1", s.Count())
	}
	f, ok := s.Get("f1")
	if !ok {
		t.Fatal("fragment f1 missing")
	}
	if len(f.Concepts) != 2 {
		t.Errorf("Concepts = %v, want replaced record", f.Concepts)
	}
}

func TestStore_ConceptUnionExcludesPrivate(t *testing.T) {
	s := NewStore()
	s.Upsert(publicFragment("f1", "roadmap", "discovery"))
	s.Upsert(publicFragment("f2", "discovery", "design"))

	private := publicFragment("f3", "secret")
	private.PrivacyLevel = types.PrivacyPrivate
	s.Upsert(private)

	union := s.ConceptUnion()
	if len(union) != 3 {
		t.Errorf("ConceptUnion = %v, want 3 distinct public concepts", union)
	}
	for _, c := range union {
		if c == "secret" {
			t.Error("private fragment concepts leaked into union")
		}
	}
}

func TestStore_SampleConceptsBounded(t *testing.T) {
	s := NewStore()
	s.Upsert(publicFragment("f1", "a", "b", "c", "d", "e"))

	if got := s.SampleConcepts(3); len(got) != 3 {
		t.Errorf("SampleConcepts(3) = %v, want 3 entries", got)
	}
	if got := s.SampleConcepts(20); len(got) != 5 {
		t.Errorf("SampleConcepts(20) = %v, want all 5", got)
	}
}

func TestStore_ListShareable(t *testing.T) {
	s := NewStore()
	s.Upsert(publicFragment("f1", "roadmap"))
	protected := publicFragment("f2", "internal")
	protected.PrivacyLevel = types.PrivacyProtected
	s.Upsert(protected)

	shareable := s.ListShareable()
	if len(shareable) != 1 || shareable[0].FragmentID != "f1" {
		t.Errorf("ListShareable = %v, want only f1", shareable)
	}
}
