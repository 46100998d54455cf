package identity

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadOrCreate_Persistence(t *testing.T) {
	dir := t.TempDir()

	id1, err := LoadOrCreate(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(id1.NodeID()), "weave-") {
		t.Errorf("NodeID = %q, want weave- prefix", id1.NodeID())
	}

	// A second load must restore the same identity and key material.
	id2, err := LoadOrCreate(dir)
	if err != nil {
		t.Fatal(err)
	}
	if id1.NodeID() != id2.NodeID() {
		t.Errorf("NodeID changed across reload: %q vs %q", id1.NodeID(), id2.NodeID())
	}
	if !bytes.Equal(id1.key, id2.key) {
		t.Error("derived key changed across reload")
	}
}

func TestLoadOrCreate_FreshNodesDiffer(t *testing.T) {
	id1, err := LoadOrCreate(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id2, err := LoadOrCreate(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if id1.NodeID() == id2.NodeID() {
		t.Errorf("two fresh nodes share node id %q", id1.NodeID())
	}
	if bytes.Equal(id1.salt, id2.salt) {
		t.Error("two fresh nodes share a salt")
	}
}

func TestLoadOrCreate_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, identityFile), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrCreate(dir); err == nil {
		t.Error("expected error for corrupt identity file")
	}
}

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	id := Ephemeral()
	plain := []byte("concepts only, never content")

	sealed, err := id.Encrypt(plain)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(sealed, plain) {
		t.Error("ciphertext contains plaintext")
	}

	opened, err := id.Decrypt(sealed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(opened, plain) {
		t.Errorf("Decrypt = %q, want %q", opened, plain)
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	sealed, err := Ephemeral().Encrypt([]byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Ephemeral().Decrypt(sealed); err == nil {
		t.Error("expected decryption failure with a different node's key")
	}
}

func TestDecrypt_TooShort(t *testing.T) {
	if _, err := Ephemeral().Decrypt([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated ciphertext")
	}
}
