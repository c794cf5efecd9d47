package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mnemon-ai/mnemon/internal/store"
)

// CreateLink records an explicit typed association between two units. The
// link type is validated here as well as by the schema check constraint.
func (db *DB) CreateLink(ctx context.Context, l *store.Link) error {
	if !store.LinkTypes[l.LinkType] {
		return store.Invalid("link_type", fmt.Sprintf("unknown type %q", l.LinkType))
	}
	if l.CreatedAt == 0 {
		l.CreatedAt = time.Now().UnixMilli()
	}
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO links (source, target, link_type, weight, reasoning, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, l.Source, l.Target, l.LinkType, l.Weight, l.Reasoning, l.CreatedAt).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("create link: %w", err)
	}
	return nil
}

func scanLinks(rows pgx.Rows) ([]store.Link, error) {
	var links []store.Link
	for rows.Next() {
		var l store.Link
		if err := rows.Scan(&l.ID, &l.Source, &l.Target, &l.LinkType, &l.Weight, &l.Reasoning, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// LinksFor returns every link touching a fingerprint, either side.
func (db *DB) LinksFor(ctx context.Context, fingerprint string) ([]store.Link, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, source, target, link_type, weight, reasoning, created_at
		FROM links WHERE source = $1 OR target = $1 ORDER BY created_at DESC
	`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("links for: %w", err)
	}
	defer rows.Close()
	return scanLinks(rows)
}

// RecentLinks returns the newest links.
func (db *DB) RecentLinks(ctx context.Context, limit int) ([]store.Link, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT id, source, target, link_type, weight, reasoning, created_at
		FROM links ORDER BY created_at DESC, id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent links: %w", err)
	}
	defer rows.Close()
	return scanLinks(rows)
}

// LinkDegrees returns fingerprints with at least min links on either side,
// most connected first.
func (db *DB) LinkDegrees(ctx context.Context, min int) ([]store.LinkDegree, error) {
	if min <= 0 {
		min = 1
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT fp, COUNT(*) AS degree FROM (
			SELECT source AS fp FROM links
			UNION ALL
			SELECT target AS fp FROM links
		) sides
		GROUP BY fp HAVING COUNT(*) >= $1
		ORDER BY degree DESC, fp
	`, min)
	if err != nil {
		return nil, fmt.Errorf("link degrees: %w", err)
	}
	defer rows.Close()

	var out []store.LinkDegree
	for rows.Next() {
		var d store.LinkDegree
		if err := rows.Scan(&d.Fingerprint, &d.Degree); err != nil {
			return nil, fmt.Errorf("scan degree: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
