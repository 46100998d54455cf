package fragment

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"weave/pkg/identity"
	"weave/pkg/types"
)

func TestArchive_SaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	id, err := identity.LoadOrCreate(dir)
	if err != nil {
		t.Fatal(err)
	}

	store := NewStore()
	b := NewBuilder(id.NodeID(), store, fixedEmbedder{dims: 100}, nil, nil, types.PrivacyPublic, zaptest.NewLogger(t))
	b.Build(context.Background(), testDocs())

	archive, err := OpenArchive(dir, id, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := archive.Save(store); err != nil {
		t.Fatal(err)
	}
	archive.Close()

	// Same identity restores everything.
	restoredStore := NewStore()
	archive2, err := OpenArchive(dir, id, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer archive2.Close()

	restored, err := archive2.Load(restoredStore)
	if err != nil {
		t.Fatal(err)
	}
	if restored != 3 {
		t.Fatalf("restored %d fragments, want 3", restored)
	}
	for _, f := range store.List() {
		got, ok := restoredStore.Get(f.FragmentID)
		if !ok {
			t.Errorf("fragment %s missing after restore", f.FragmentID)
			continue
		}
		if got.ContentHash != f.ContentHash {
			t.Errorf("fragment %s content hash changed across archive roundtrip", f.FragmentID)
		}
		if len(got.SimilarityEmbedding) != len(f.SimilarityEmbedding) {
			t.Errorf("fragment %s embedding lost across archive roundtrip", f.FragmentID)
		}
	}
}

func TestArchive_WrongKeySkipsRows(t *testing.T) {
	dir := t.TempDir()
	id, err := identity.LoadOrCreate(dir)
	if err != nil {
		t.Fatal(err)
	}

	store := NewStore()
	store.Upsert(publicFragment("f1", "roadmap"))

	archive, err := OpenArchive(dir, id, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := archive.Save(store); err != nil {
		t.Fatal(err)
	}
	archive.Close()

	// A different node's key cannot unseal the rows; the load degrades to
	// an empty restore rather than failing.
	other, err := OpenArchive(dir, identity.Ephemeral(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()

	into := NewStore()
	restored, err := other.Load(into)
	if err != nil {
		t.Fatal(err)
	}
	if restored != 0 || into.Count() != 0 {
		t.Errorf("restored %d fragments with the wrong key, want 0", restored)
	}
}
