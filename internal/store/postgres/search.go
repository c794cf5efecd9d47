package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/mnemon-ai/mnemon/internal/store"
)

// branchScope restricts hits to blobs referenced by a commit on the branch.
// An empty branch matches everything. Queries using it bind the branch as $2.
const branchScope = `($2 = '' OR EXISTS (
	SELECT 1 FROM tree_entries te JOIN commits c ON c.tree_id = te.tree_id
	WHERE te.fingerprint = b.fingerprint AND c.branch = $2))`

// LexicalSearch ranks textual blobs with ts_rank_cd over the simple
// configuration. plainto_tsquery strips operator syntax, so user input
// cannot inject query structure. Quarantined units never surface.
func (db *DB) LexicalSearch(ctx context.Context, query, branch string, limit int) ([]store.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT b.fingerprint,
			ts_rank_cd(to_tsvector('simple', b.payload_text), plainto_tsquery('simple', $1)) AS score,
			b.content_type, LEFT(b.payload_text, 240)
		FROM blobs b
		WHERE b.payload_text IS NOT NULL
			AND to_tsvector('simple', b.payload_text) @@ plainto_tsquery('simple', $1)
			AND NOT b.quarantined
			AND `+branchScope+`
		ORDER BY score DESC, b.fingerprint
		LIMIT $3
	`, query, branch, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var hits []store.SearchHit
	for rows.Next() {
		var h store.SearchHit
		if err := rows.Scan(&h.Fingerprint, &h.Score, &h.ContentType, &h.Excerpt); err != nil {
			return nil, fmt.Errorf("scan lexical hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := db.fillProvenance(ctx, hits); err != nil {
		return nil, err
	}
	return hits, nil
}

// VectorSearch ranks embedded blobs by cosine similarity against the query
// vector, ordered by the pgvector distance operator so the hnsw index
// carries the scan.
func (db *DB) VectorSearch(ctx context.Context, embedding []float32, branch string, limit int) ([]store.SearchHit, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT b.fingerprint, 1 - (b.embedding <=> $1) AS score,
			b.content_type, COALESCE(LEFT(b.payload_text, 240), '')
		FROM blobs b
		WHERE b.embedding IS NOT NULL AND NOT b.quarantined AND `+branchScope+`
		ORDER BY b.embedding <=> $1, b.fingerprint
		LIMIT $3
	`, pgvector.NewVector(embedding), branch, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var hits []store.SearchHit
	for rows.Next() {
		var h store.SearchHit
		if err := rows.Scan(&h.Fingerprint, &h.Score, &h.ContentType, &h.Excerpt); err != nil {
			return nil, fmt.Errorf("scan vector hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := db.fillProvenance(ctx, hits); err != nil {
		return nil, err
	}
	return hits, nil
}

// fillProvenance stamps each hit with the newest commit referencing it.
func (db *DB) fillProvenance(ctx context.Context, hits []store.SearchHit) error {
	if len(hits) == 0 {
		return nil
	}

	fps := make([]string, len(hits))
	for i, h := range hits {
		fps[i] = h.Fingerprint
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT DISTINCT ON (te.fingerprint) te.fingerprint, c.commit_id, c.branch
		FROM tree_entries te JOIN commits c ON c.tree_id = te.tree_id
		WHERE te.fingerprint = ANY($1)
		ORDER BY te.fingerprint, c.created_at DESC
	`, fps)
	if err != nil {
		return fmt.Errorf("hit provenance: %w", err)
	}
	defer rows.Close()

	type prov struct{ commitID, branch string }
	byFP := make(map[string]prov, len(hits))
	for rows.Next() {
		var fp, commitID, branch string
		if err := rows.Scan(&fp, &commitID, &branch); err != nil {
			return fmt.Errorf("scan provenance: %w", err)
		}
		byFP[fp] = prov{commitID, branch}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range hits {
		if p, ok := byFP[hits[i].Fingerprint]; ok {
			hits[i].CommitID = p.commitID
			hits[i].Branch = p.branch
		}
	}
	return nil
}
