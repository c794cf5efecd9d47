package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mnemon-ai/mnemon/internal/store"
)

// textual reports whether a content type should feed the lexical index.
func textual(contentType string) bool {
	return strings.HasPrefix(contentType, "text/") ||
		contentType == "application/json" ||
		contentType == "application/yaml"
}

// PutBlob writes a content unit, keyed by fingerprint. First writer wins;
// re-putting an existing fingerprint changes nothing. Textual payloads also
// land in payload_text, which the full text index covers.
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

	var payloadText any
	if textual(b.ContentType) {
		payloadText = string(b.Payload)
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO blobs (fingerprint, payload, payload_text, content_type, byte_size, embedding, quarantined, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (fingerprint) DO NOTHING
	`, b.Fingerprint, b.Payload, payloadText, b.ContentType, b.ByteSize, vecParam(b.Embedding), b.CreatedAt)
	if err != nil {
		return fmt.Errorf("put blob: %w", err)
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
		SELECT fingerprint, payload, content_type, byte_size, COALESCE(embedding::text, ''), quarantined, created_at
		FROM blobs WHERE fingerprint = $1`
	if !includeQuarantined {
		query += " AND NOT quarantined"
	}

	var b store.ContentUnit
	var embText string
	err := db.Pool.QueryRow(ctx, query, fingerprint).Scan(
		&b.Fingerprint, &b.Payload, &b.ContentType, &b.ByteSize, &embText, &b.Quarantined, &b.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("blob %s: %w", fingerprint, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}
	b.Embedding = vecSlice(embText)
	return &b, nil
}

// SetQuarantine flips the quarantine flag on a content unit.
func (db *DB) SetQuarantine(ctx context.Context, fingerprint string, quarantined bool) error {
	ct, err := db.Pool.Exec(ctx,
		"UPDATE blobs SET quarantined = $1 WHERE fingerprint = $2", quarantined, fingerprint)
	if err != nil {
		return fmt.Errorf("set quarantine: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("blob %s: %w", fingerprint, store.ErrNotFound)
	}
	return nil
}
