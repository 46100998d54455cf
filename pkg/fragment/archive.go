package fragment

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"weave/pkg/identity"
	"weave/pkg/types"
)

// Archive persists the fragment store to a local sqlite database so a node
// restores its fragments across restarts. The fragment body is sealed with
// the node's symmetric key before it touches disk; this is the at-rest
// state the derived key currently protects.
type Archive struct {
	db     *sql.DB
	id     *identity.Identity
	logger *zap.Logger
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS fragments (
	fragment_id TEXT PRIMARY KEY,
	sealed      BLOB NOT NULL,
	updated_at  TEXT NOT NULL
);`

// OpenArchive opens (or creates) the archive database under dataDir.
func OpenArchive(dataDir string, id *identity.Identity, logger *zap.Logger) (*Archive, error) {
	path := filepath.Join(dataDir, "fragments.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fragment archive: %w", err)
	}
	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize fragment archive: %w", err)
	}
	return &Archive{db: db, id: id, logger: logger}, nil
}

// Save writes every fragment in the store, replacing prior rows with the
// same id.
func (a *Archive) Save(store *Store) error {
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO fragments (fragment_id, sealed, updated_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare archive insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range store.List() {
		plain, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("failed to encode fragment %s: %w", f.FragmentID, err)
		}
		sealed, err := a.id.Encrypt(plain)
		if err != nil {
			return fmt.Errorf("failed to seal fragment %s: %w", f.FragmentID, err)
		}
		if _, err := stmt.Exec(string(f.FragmentID), sealed, f.LastUpdated.Format("2006-01-02T15:04:05Z07:00")); err != nil {
			return fmt.Errorf("failed to write fragment %s: %w", f.FragmentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive: %w", err)
	}
	return nil
}

// Load restores archived fragments into the store. Rows that cannot be
// unsealed (key changed, corruption) are skipped and logged; a partial
// restore beats none.
func (a *Archive) Load(store *Store) (int, error) {
	rows, err := a.db.Query(`SELECT fragment_id, sealed FROM fragments`)
	if err != nil {
		return 0, fmt.Errorf("failed to read fragment archive: %w", err)
	}
	defer rows.Close()

	restored := 0
	for rows.Next() {
		var id string
		var sealed []byte
		if err := rows.Scan(&id, &sealed); err != nil {
			return restored, fmt.Errorf("failed to scan archive row: %w", err)
		}

		plain, err := a.id.Decrypt(sealed)
		if err != nil {
			a.logger.Warn("skipping unreadable archived fragment", zap.String("fragment_id", id), zap.Error(err))
			continue
		}
		var f types.KnowledgeFragment
		if err := json.Unmarshal(plain, &f); err != nil {
			a.logger.Warn("skipping malformed archived fragment", zap.String("fragment_id", id), zap.Error(err))
			continue
		}

		store.Upsert(f)
		restored++
	}
	return restored, rows.Err()
}

func (a *Archive) Close() error {
	return a.db.Close()
}
