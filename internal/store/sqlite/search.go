package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mnemon-ai/mnemon/internal/store"
)

// excerptExpr pulls a short preview out of textual payloads; binary payloads
// get an empty excerpt.
const excerptExpr = `CASE WHEN b.content_type LIKE 'text/%' OR b.content_type IN ('application/json', 'application/yaml')
	THEN substr(CAST(b.payload AS TEXT), 1, 240) ELSE '' END`

// branchScope restricts hits to blobs referenced by a commit on the branch.
// An empty branch matches everything.
const branchScope = `(? = '' OR EXISTS (
	SELECT 1 FROM tree_entries te JOIN commits c ON c.tree_id = te.tree_id
	WHERE te.fingerprint = b.fingerprint AND c.branch = ?))`

// ftsQuery turns free text into an FTS5 OR-query of quoted terms so user
// input can never inject match syntax.
func ftsQuery(q string) string {
	words := strings.Fields(q)
	for i := range words {
		words[i] = `"` + strings.ReplaceAll(words[i], `"`, `""`) + `"`
	}
	return strings.Join(words, " OR ")
}

// LexicalSearch ranks textual blobs with FTS5 bm25. Quarantined units never
// surface. Scores are negated rank so higher is better.
func (db *DB) LexicalSearch(ctx context.Context, query, branch string, limit int) ([]store.SearchHit, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.QueryContext(ctx, `
		SELECT blobs_fts.fingerprint, -blobs_fts.rank AS score, b.content_type, `+excerptExpr+`
		FROM blobs_fts
		JOIN blobs b ON b.fingerprint = blobs_fts.fingerprint
		WHERE blobs_fts MATCH ? AND b.quarantined = 0 AND `+branchScope+`
		ORDER BY blobs_fts.rank
		LIMIT ?
	`, match, branch, branch, limit)
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
// vector. The candidate set is filtered in SQL, the similarity loop runs in
// Go over the packed embeddings.
func (db *DB) VectorSearch(ctx context.Context, embedding []float32, branch string, limit int) ([]store.SearchHit, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.QueryContext(ctx, `
		SELECT b.fingerprint, b.embedding, b.content_type, `+excerptExpr+`
		FROM blobs b
		WHERE b.embedding IS NOT NULL AND b.quarantined = 0 AND `+branchScope+`
	`, branch, branch)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var hits []store.SearchHit
	for rows.Next() {
		var h store.SearchHit
		var emb []byte
		if err := rows.Scan(&h.Fingerprint, &emb, &h.ContentType, &h.Excerpt); err != nil {
			return nil, fmt.Errorf("scan vector hit: %w", err)
		}
		h.Score = cosine(embedding, decodeVec(emb))
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Fingerprint < hits[j].Fingerprint
	})
	if len(hits) > limit {
		hits = hits[:limit]
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

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(hits)), ",")
	args := make([]any, len(hits))
	for i, h := range hits {
		args[i] = h.Fingerprint
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT te.fingerprint, c.commit_id, c.branch, MAX(c.created_at)
		FROM tree_entries te JOIN commits c ON c.tree_id = te.tree_id
		WHERE te.fingerprint IN (%s)
		GROUP BY te.fingerprint
	`, placeholders), args...)
	if err != nil {
		return fmt.Errorf("hit provenance: %w", err)
	}
	defer rows.Close()

	type prov struct{ commitID, branch string }
	byFP := make(map[string]prov, len(hits))
	for rows.Next() {
		var fp, commitID, branch string
		var ts int64
		if err := rows.Scan(&fp, &commitID, &branch, &ts); err != nil {
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
