package postgres

import (
	"context"
	"fmt"
)

// schemaStatements renders the idempotent DDL for a given vector dimension.
func schemaStatements(dimension int) []string {
	tables := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS blobs (
    fingerprint  TEXT PRIMARY KEY,
    payload      BYTEA NOT NULL,
    payload_text TEXT,
    content_type TEXT NOT NULL DEFAULT 'text/plain',
    byte_size    BIGINT NOT NULL,
    embedding    VECTOR(%[1]d),
    quarantined  BOOLEAN NOT NULL DEFAULT FALSE,
    created_at   BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS trees (
    tree_id    TEXT PRIMARY KEY,
    branch     TEXT NOT NULL,
    created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS tree_entries (
    tree_id     TEXT NOT NULL REFERENCES trees(tree_id),
    position    INT NOT NULL,
    name        TEXT NOT NULL,
    fingerprint TEXT NOT NULL REFERENCES blobs(fingerprint),
    mode        TEXT NOT NULL DEFAULT 'memory',
    PRIMARY KEY (tree_id, position)
);

CREATE TABLE IF NOT EXISTS commits (
    commit_id    TEXT PRIMARY KEY,
    tree_id      TEXT NOT NULL REFERENCES trees(tree_id),
    parent_id    TEXT NOT NULL DEFAULT '',
    branch       TEXT NOT NULL,
    author       TEXT NOT NULL DEFAULT '',
    message      TEXT NOT NULL,
    agent_id     TEXT NOT NULL DEFAULT '',
    parent_agent TEXT NOT NULL DEFAULT '',
    depth        INT NOT NULL DEFAULT 0,
    run_id       TEXT NOT NULL DEFAULT '',
    created_at   BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS branches (
    name       TEXT PRIMARY KEY,
    head       TEXT NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS branch_fingerprints (
    branch       TEXT PRIMARY KEY,
    centroid     VECTOR(%[1]d) NOT NULL,
    commit_count BIGINT NOT NULL DEFAULT 0,
    health       DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    updated_at   BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS candidates (
    id              TEXT PRIMARY KEY,
    branch          TEXT NOT NULL,
    payload         BYTEA NOT NULL,
    content_type    TEXT NOT NULL DEFAULT 'text/plain',
    content_vec     VECTOR(%[1]d),
    context_vec     VECTOR(%[1]d),
    salience        DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    replay_count    BIGINT NOT NULL DEFAULT 0,
    status          TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'cooling', 'promoted', 'expired')),
    created_at      BIGINT NOT NULL,
    expires_at      BIGINT NOT NULL,
    promoted_commit TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS replay_events (
    id           BIGSERIAL PRIMARY KEY,
    candidate_id TEXT NOT NULL REFERENCES candidates(id),
    session_id   TEXT NOT NULL DEFAULT '',
    similarity   DOUBLE PRECISION NOT NULL,
    threshold    DOUBLE PRECISION NOT NULL,
    fired        BOOLEAN NOT NULL DEFAULT FALSE,
    created_at   BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS trail_edges (
    source          TEXT NOT NULL,
    target          TEXT NOT NULL,
    traversal_count BIGINT NOT NULL DEFAULT 1,
    stability       DOUBLE PRECISION NOT NULL,
    last_traversed  BIGINT NOT NULL,
    created_at      BIGINT NOT NULL,
    PRIMARY KEY (source, target)
);

CREATE TABLE IF NOT EXISTS links (
    id         BIGSERIAL PRIMARY KEY,
    source     TEXT NOT NULL,
    target     TEXT NOT NULL,
    link_type  TEXT NOT NULL CHECK (link_type IN ('resonance', 'causal', 'contradiction', 'elaboration', 'application')),
    weight     DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    reasoning  TEXT NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS commit_tags (
    tag        TEXT NOT NULL,
    commit_id  TEXT NOT NULL,
    branch     TEXT NOT NULL,
    created_at BIGINT NOT NULL,
    PRIMARY KEY (tag, commit_id)
);

CREATE TABLE IF NOT EXISTS consolidation_runs (
    run_id      TEXT PRIMARY KEY,
    started_at  BIGINT NOT NULL,
    duration_ms BIGINT NOT NULL,
    evaluated   INT NOT NULL,
    promoted    INT NOT NULL,
    expired     INT NOT NULL,
    cooled      INT NOT NULL,
    threshold   DOUBLE PRECISION NOT NULL,
    commit_ids  JSONB NOT NULL DEFAULT '[]'::jsonb,
    error       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS agent_sessions (
    id          TEXT PRIMARY KEY,
    agent       TEXT NOT NULL DEFAULT '',
    branch      TEXT NOT NULL DEFAULT '',
    checkpoint  TEXT NOT NULL DEFAULT '',
    context_vec VECTOR(%[1]d),
    started_at  BIGINT NOT NULL,
    updated_at  BIGINT NOT NULL,
    resumed_at  BIGINT
);
`, dimension)

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_commits_branch ON commits(branch, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_commits_parent ON commits(parent_id)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_commits_root ON commits(branch) WHERE parent_id = ''",
		"CREATE INDEX IF NOT EXISTS idx_entries_fingerprint ON tree_entries(fingerprint)",
		"CREATE INDEX IF NOT EXISTS idx_blobs_embedding ON blobs USING hnsw (embedding vector_cosine_ops)",
		"CREATE INDEX IF NOT EXISTS idx_blobs_fts ON blobs USING GIN (to_tsvector('simple', payload_text)) WHERE payload_text IS NOT NULL",
		"CREATE INDEX IF NOT EXISTS idx_candidates_status ON candidates(status, branch)",
		"CREATE INDEX IF NOT EXISTS idx_candidates_expiry ON candidates(expires_at)",
		"CREATE INDEX IF NOT EXISTS idx_replay_candidate ON replay_events(candidate_id)",
		"CREATE INDEX IF NOT EXISTS idx_trails_source ON trail_edges(source)",
		"CREATE INDEX IF NOT EXISTS idx_trails_target ON trail_edges(target)",
		"CREATE INDEX IF NOT EXISTS idx_links_source ON links(source)",
		"CREATE INDEX IF NOT EXISTS idx_links_target ON links(target)",
		"CREATE INDEX IF NOT EXISTS idx_tags_branch ON commit_tags(branch)",
	}
	return append([]string{tables}, indexes...)
}

// EnsureSchema creates the vector extension, tables, and indexes. Every
// statement is idempotent so repeated startups are safe.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	for _, stmt := range schemaStatements(db.dim) {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
