package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mnemon-ai/mnemon/internal/store"
)

// textual reports whether a content type should feed the lexical index.
func textual(contentType string) bool {
	return strings.HasPrefix(contentType, "text/") ||
		contentType == "application/json" ||
		contentType == "application/yaml"
}

// PutBlob writes a content unit, keyed by fingerprint. Re-putting an
// existing fingerprint is a no-op: first writer wins and the row never
// changes afterwards. Textual payloads are indexed for lexical search in
// the same transaction.
func (db *DB) PutBlob(ctx context.Context, b *store.ContentUnit) error {
	if b.Fingerprint == "" {
		b.Fingerprint = store.Fingerprint(b.Payload)
	}
	if b.ContentType == "" {
		b.ContentType = "text/plain"
	}
	b.ByteSize = int64(len(b.Payload))
	if b.CreatedAt == 0 {
		b.CreatedAt = time.Now().UnixMilli()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put blob: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO blobs (fingerprint, payload, content_type, byte_size, embedding, quarantined, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(fingerprint) DO NOTHING
	`, b.Fingerprint, b.Payload, b.ContentType, b.ByteSize, encodeVec(b.Embedding), b.CreatedAt)
	if err != nil {
		return fmt.Errorf("put blob: %w", err)
	}

	// Only a fresh row gets indexed; a duplicate put already has one.
	if n, _ := res.RowsAffected(); n > 0 && textual(b.ContentType) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO blobs_fts (fingerprint, content) VALUES (?, ?)
		`, b.Fingerprint, string(b.Payload)); err != nil {
			return fmt.Errorf("index blob: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put blob: %w", err)
	}
	return nil
}

// GetBlob returns a content unit by fingerprint, excluding quarantined units.
func (db *DB) GetBlob(ctx context.Context, fingerprint string) (*store.ContentUnit, error) {
	return db.getBlob(ctx, fingerprint, false)
}

// GetBlobAny returns a content unit regardless of its quarantine flag.
func (db *DB) GetBlobAny(ctx context.Context, fingerprint string) (*store.ContentUnit, error) {
	return db.getBlob(ctx, fingerprint, true)
}

func (db *DB) getBlob(ctx context.Context, fingerprint string, includeQuarantined bool) (*store.ContentUnit, error) {
	query := `
		SELECT fingerprint, payload, content_type, byte_size, embedding, quarantined, created_at
		FROM blobs WHERE fingerprint = ?`
	if !includeQuarantined {
		query += " AND quarantined = 0"
	}

	var b store.ContentUnit
	var emb []byte
	var quarantined int
	err := db.QueryRowContext(ctx, query, fingerprint).Scan(
		&b.Fingerprint, &b.Payload, &b.ContentType, &b.ByteSize, &emb, &quarantined, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("blob %s: %w", fingerprint, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}
	b.Embedding = decodeVec(emb)
	b.Quarantined = quarantined != 0
	return &b, nil
}

// SetQuarantine flips the quarantine flag on a content unit. The flag is
// written by the external review surface; everything else only reads it.
func (db *DB) SetQuarantine(ctx context.Context, fingerprint string, quarantined bool) error {
	q := 0
	if quarantined {
		q = 1
	}
	res, err := db.ExecContext(ctx,
		"UPDATE blobs SET quarantined = ? WHERE fingerprint = ?", q, fingerprint)
	if err != nil {
		return fmt.Errorf("set quarantine: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("blob %s: %w", fingerprint, store.ErrNotFound)
	}
	return nil
}
