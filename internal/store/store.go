package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/outlineworks/outliner/internal/structure"
)

// ErrNotFound is returned when a document id has no stored tree.
var ErrNotFound = errors.New("document not found")

// Store persists built trees in a single SQLite file. The serialized tree is
// kept as a JSON column; where and how a caller sizes or splits storage is
// its own concern.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open opens or creates the store under dbDir.
func Open(dbDir string) (*Store, error) {
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dbPath := filepath.Join(dbDir, "outliner.db")

	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, dbPath: dbPath}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id                TEXT PRIMARY KEY,
	doc_name              TEXT NOT NULL,
	total_pages           INTEGER NOT NULL,
	verification_accuracy REAL NOT NULL,
	model                 TEXT NOT NULL,
	tree_json             TEXT NOT NULL,
	created_at            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);
`

// DocumentInfo is the listing row for a stored tree.
type DocumentInfo struct {
	DocID                string    `json:"doc_id"`
	DocName              string    `json:"doc_name"`
	TotalPages           int       `json:"total_pages"`
	VerificationAccuracy float64   `json:"verification_accuracy"`
	Model                string    `json:"model"`
	CreatedAt            time.Time `json:"created_at"`
}

// SaveTree inserts or replaces the tree for docID.
func (s *Store) SaveTree(ctx context.Context, docID string, tree *structure.Tree) error {
	blob, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("marshal tree: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO documents
		(doc_id, doc_name, total_pages, verification_accuracy, model, tree_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		docID, tree.DocName, tree.TotalPages, tree.VerificationAccuracy,
		tree.Model, string(blob), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save tree: %w", err)
	}
	return nil
}

// GetTree loads the tree stored for docID.
func (s *Store) GetTree(ctx context.Context, docID string) (*structure.Tree, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT tree_json FROM documents WHERE doc_id = ?`, docID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tree: %w", err)
	}
	var tree structure.Tree
	if err := json.Unmarshal([]byte(blob), &tree); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	return &tree, nil
}

// List returns stored documents, newest first.
func (s *Store) List(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, doc_name, total_pages, verification_accuracy, model, created_at
		FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentInfo
	for rows.Next() {
		var d DocumentInfo
		var created string
		if err := rows.Scan(&d.DocID, &d.DocName, &d.TotalPages,
			&d.VerificationAccuracy, &d.Model, &created); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Delete removes a stored document. Deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, docID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
