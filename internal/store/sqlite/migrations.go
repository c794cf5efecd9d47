package sqlite

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "commit graph: blobs, trees, commits, branches",
		SQL: `
CREATE TABLE blobs (
    fingerprint  TEXT PRIMARY KEY,
    payload      BLOB NOT NULL,
    content_type TEXT NOT NULL DEFAULT 'text/plain',
    byte_size    INTEGER NOT NULL,
    embedding    BLOB,
    quarantined  INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL
);

CREATE TABLE trees (
    tree_id    TEXT PRIMARY KEY,
    branch     TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE tree_entries (
    tree_id     TEXT NOT NULL,
    position    INTEGER NOT NULL,
    name        TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    mode        TEXT NOT NULL DEFAULT 'memory',
    PRIMARY KEY (tree_id, position),
    FOREIGN KEY (tree_id) REFERENCES trees(tree_id),
    FOREIGN KEY (fingerprint) REFERENCES blobs(fingerprint)
);

CREATE TABLE commits (
    commit_id    TEXT PRIMARY KEY,
    tree_id      TEXT NOT NULL,
    parent_id    TEXT NOT NULL DEFAULT '',
    branch       TEXT NOT NULL,
    author       TEXT NOT NULL DEFAULT '',
    message      TEXT NOT NULL,
    agent_id     TEXT NOT NULL DEFAULT '',
    parent_agent TEXT NOT NULL DEFAULT '',
    depth        INTEGER NOT NULL DEFAULT 0,
    run_id       TEXT NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL,
    FOREIGN KEY (tree_id) REFERENCES trees(tree_id)
);

CREATE INDEX idx_commits_branch ON commits(branch, created_at DESC);
CREATE INDEX idx_commits_parent ON commits(parent_id);
CREATE UNIQUE INDEX idx_commits_root ON commits(branch) WHERE parent_id = '';
CREATE INDEX idx_entries_fingerprint ON tree_entries(fingerprint);

CREATE TABLE branches (
    name       TEXT PRIMARY KEY,
    head       TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "blobs_fts: lexical index over textual payloads",
		SQL: `
CREATE VIRTUAL TABLE blobs_fts USING fts5(
    fingerprint UNINDEXED,
    content,
    tokenize = 'porter unicode61'
);
`,
	},
	{
		Version:     3,
		Description: "branch_fingerprints + candidates: routing and staging",
		SQL: `
CREATE TABLE branch_fingerprints (
    branch       TEXT PRIMARY KEY,
    centroid     BLOB NOT NULL,
    commit_count INTEGER NOT NULL DEFAULT 0,
    health       REAL NOT NULL DEFAULT 1.0,
    updated_at   INTEGER NOT NULL
);

CREATE TABLE candidates (
    id              TEXT PRIMARY KEY,
    branch          TEXT NOT NULL,
    payload         BLOB NOT NULL,
    content_type    TEXT NOT NULL DEFAULT 'text/plain',
    content_vec     BLOB,
    context_vec     BLOB,
    salience        REAL NOT NULL DEFAULT 0.5,
    replay_count    INTEGER NOT NULL DEFAULT 0,
    status          TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'cooling', 'promoted', 'expired')),
    created_at      INTEGER NOT NULL,
    expires_at      INTEGER NOT NULL,
    promoted_commit TEXT NOT NULL DEFAULT ''
);

CREATE INDEX idx_candidates_status ON candidates(status, branch);
CREATE INDEX idx_candidates_expiry ON candidates(expires_at);

CREATE TABLE replay_events (
    id           INTEGER PRIMARY KEY,
    candidate_id TEXT NOT NULL,
    session_id   TEXT NOT NULL DEFAULT '',
    similarity   REAL NOT NULL,
    threshold    REAL NOT NULL,
    fired        INTEGER NOT NULL,
    created_at   INTEGER NOT NULL,
    FOREIGN KEY (candidate_id) REFERENCES candidates(id)
);

CREATE INDEX idx_replay_candidate ON replay_events(candidate_id);
`,
	},
	{
		Version:     4,
		Description: "trail_edges + links: associative graph",
		SQL: `
CREATE TABLE trail_edges (
    source          TEXT NOT NULL,
    target          TEXT NOT NULL,
    traversal_count INTEGER NOT NULL DEFAULT 1,
    stability       REAL NOT NULL,
    last_traversed  INTEGER NOT NULL,
    created_at      INTEGER NOT NULL,
    PRIMARY KEY (source, target)
);

CREATE INDEX idx_trails_source ON trail_edges(source);
CREATE INDEX idx_trails_target ON trail_edges(target);

CREATE TABLE links (
    id         INTEGER PRIMARY KEY,
    source     TEXT NOT NULL,
    target     TEXT NOT NULL,
    link_type  TEXT NOT NULL CHECK (link_type IN ('resonance', 'causal', 'contradiction', 'elaboration', 'application')),
    weight     REAL NOT NULL DEFAULT 0.5,
    reasoning  TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE INDEX idx_links_source ON links(source);
CREATE INDEX idx_links_target ON links(target);
`,
	},
	{
		Version:     5,
		Description: "tags, consolidation_runs, agent_sessions",
		SQL: `
CREATE TABLE commit_tags (
    tag        TEXT NOT NULL,
    commit_id  TEXT NOT NULL,
    branch     TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (tag, commit_id)
);

CREATE INDEX idx_tags_branch ON commit_tags(branch);

CREATE TABLE consolidation_runs (
    run_id      TEXT PRIMARY KEY,
    started_at  INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    evaluated   INTEGER NOT NULL,
    promoted    INTEGER NOT NULL,
    expired     INTEGER NOT NULL,
    cooled      INTEGER NOT NULL,
    threshold   REAL NOT NULL,
    commit_ids  TEXT NOT NULL DEFAULT '[]',
    error       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE agent_sessions (
    id          TEXT PRIMARY KEY,
    agent       TEXT NOT NULL DEFAULT '',
    branch      TEXT NOT NULL DEFAULT '',
    checkpoint  TEXT NOT NULL DEFAULT '',
    context_vec BLOB,
    started_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL,
    resumed_at  INTEGER
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
