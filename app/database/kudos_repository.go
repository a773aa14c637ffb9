package database

import (
	"fmt"
	"time"
)

// KudosRepository handles database operations for kudos entries
type KudosRepository struct {
	db *DB
}

func NewKudosRepository(db *DB) *KudosRepository {
	return &KudosRepository{db: db}
}

// InsertBatch persists pending entries in one transaction. Conflicts on
// (path, interaction_id) are ignored so replays across restarts are
// absorbed by the primary key.
func (r *KudosRepository) InsertBatch(entries []KudosEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin kudos flush transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO kudos (path, interaction_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (path, interaction_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare kudos insert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		if _, err := stmt.Exec(entry.Path, entry.InteractionID, entry.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert kudos for %s: %w", entry.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit kudos flush: %w", err)
	}

	return nil
}

// CountsByPath returns the total kudos count for every path that has
// at least one entry.
func (r *KudosRepository) CountsByPath() (map[string]int64, error) {
	rows, err := r.db.Query(`
		SELECT path, COUNT(*)
		FROM kudos
		GROUP BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load kudos counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var path string
		var count int64
		if err := rows.Scan(&path, &count); err != nil {
			return nil, fmt.Errorf("failed to scan kudos count row: %w", err)
		}
		counts[path] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating kudos count rows: %w", err)
	}

	return counts, nil
}

// Overview reports how many paths and entries the kudos table holds.
func (r *KudosRepository) Overview() (KudosOverview, error) {
	var overview KudosOverview
	err := r.db.QueryRow(`
		SELECT COUNT(DISTINCT path), COUNT(*)
		FROM kudos
	`).Scan(&overview.Paths, &overview.Total)
	if err != nil {
		return KudosOverview{}, fmt.Errorf("failed to load kudos overview: %w", err)
	}

	return overview, nil
}

// EntriesSince returns entries created at or after the given time. The
// cache warms today's interaction sets from it.
func (r *KudosRepository) EntriesSince(since time.Time) ([]KudosEntry, error) {
	rows, err := r.db.Query(`
		SELECT path, interaction_id, created_at
		FROM kudos
		WHERE created_at >= ?
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to load recent kudos entries: %w", err)
	}
	defer rows.Close()

	var entries []KudosEntry
	for rows.Next() {
		var entry KudosEntry
		if err := rows.Scan(&entry.Path, &entry.InteractionID, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan kudos entry row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating kudos entry rows: %w", err)
	}

	return entries, nil
}
