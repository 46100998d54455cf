// Package identity manages the node's stable identifier and symmetric key
// material. The key is derived deterministically from the node id with
// PBKDF2 so it can be regenerated after restart; the salt is random per
// node and persisted alongside the identity rather than hardcoded.
package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"

	"weave/pkg/types"
)

const (
	identityFile  = "identity.json"
	kdfIterations = 100000
	keyLength     = 32
	saltLength    = 16
)

// Identity holds the node id and derived key material. Key material never
// leaves the process; until a real peer handshake exists it secures local
// at-rest state only, not peer traffic.
type Identity struct {
	nodeID types.NodeID
	salt   []byte
	key    []byte
}

type identityRecord struct {
	NodeID types.NodeID `json:"node_id"`
	Salt   []byte       `json:"salt"`
}

// LoadOrCreate restores the identity persisted under dataDir, or generates
// and persists a fresh one.
func LoadOrCreate(dataDir string) (*Identity, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	path := filepath.Join(dataDir, identityFile)
	if data, err := os.ReadFile(path); err == nil {
		var rec identityRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse identity file: %w", err)
		}
		if rec.NodeID == "" || len(rec.Salt) != saltLength {
			return nil, fmt.Errorf("identity file %s is corrupt", path)
		}
		return fromRecord(rec), nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read identity file: %w", err)
	}

	rec := identityRecord{
		NodeID: newNodeID(),
		Salt:   make([]byte, saltLength),
	}
	if _, err := rand.Read(rec.Salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode identity: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to persist identity: %w", err)
	}

	return fromRecord(rec), nil
}

// Ephemeral creates an identity that is never persisted. Used by tests and
// simulated in-process nodes.
func Ephemeral() *Identity {
	rec := identityRecord{
		NodeID: newNodeID(),
		Salt:   make([]byte, saltLength),
	}
	rand.Read(rec.Salt)
	return fromRecord(rec)
}

func newNodeID() types.NodeID {
	u := uuid.New()
	return types.NodeID(fmt.Sprintf("weave-%x", u[:6]))
}

func fromRecord(rec identityRecord) *Identity {
	password := []byte(fmt.Sprintf("weave-%s", rec.NodeID))
	key := pbkdf2.Key(password, rec.Salt, kdfIterations, keyLength, sha256.New)
	return &Identity{
		nodeID: rec.NodeID,
		salt:   rec.Salt,
		key:    key,
	}
}

// NodeID returns the stable node identifier.
func (id *Identity) NodeID() types.NodeID {
	return id.nodeID
}

// Encrypt seals a payload with AES-256-GCM under the derived key. The
// nonce is prepended to the ciphertext.
func (id *Identity) Encrypt(payload []byte) ([]byte, error) {
	gcm, err := id.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, payload, nil), nil
}

// Decrypt opens a payload produced by Encrypt.
func (id *Identity) Decrypt(ciphertext []byte) ([]byte, error) {
	gcm, err := id.aead()
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt payload: %w", err)
	}
	return plain, nil
}

func (id *Identity) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(id.key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}
	return gcm, nil
}
