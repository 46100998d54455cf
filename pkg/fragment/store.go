package fragment

import (
	"sync"

	"weave/pkg/types"
)

// Store holds this node's fragments, keyed by fragment id. It is shared
// mutable state accessed by concurrent discovery and exchange tasks, so
// every record is upserted whole; readers never observe a partial update.
type Store struct {
	mu        sync.RWMutex
	fragments map[types.FragmentID]types.KnowledgeFragment
}

func NewStore() *Store {
	return &Store{
		fragments: make(map[types.FragmentID]types.KnowledgeFragment),
	}
}

// Upsert inserts or replaces the fragment with the same id.
func (s *Store) Upsert(f types.KnowledgeFragment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fragments[f.FragmentID] = f
}

func (s *Store) Get(id types.FragmentID) (types.KnowledgeFragment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.fragments[id]
	return f, ok
}

// List returns a snapshot of all fragments.
func (s *Store) List() []types.KnowledgeFragment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.KnowledgeFragment, 0, len(s.fragments))
	for _, f := range s.fragments {
		out = append(out, f)
	}
	return out
}

// ListShareable returns only fragments eligible to leave the node.
func (s *Store) ListShareable() []types.KnowledgeFragment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.KnowledgeFragment, 0, len(s.fragments))
	for _, f := range s.fragments {
		if f.PrivacyLevel.Shareable() {
			out = append(out, f)
		}
	}
	return out
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fragments)
}

// ConceptUnion returns the distinct concepts across all shareable
// fragments.
func (s *Store) ConceptUnion() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var union []string
	for _, f := range s.fragments {
		if !f.PrivacyLevel.Shareable() {
			continue
		}
		for _, c := range f.Concepts {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				union = append(union, c)
			}
		}
	}
	return union
}

// SampleConcepts returns up to n concepts from the shareable union. Concept
// labels are safe to expose; content never is.
func (s *Store) SampleConcepts(n int) []string {
	union := s.ConceptUnion()
	if len(union) <= n {
		return union
	}
	return union[:n]
}
