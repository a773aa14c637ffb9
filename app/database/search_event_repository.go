package database

import (
	"fmt"
	"time"
)

// SearchEventRepository records executed searches for later analysis
type SearchEventRepository struct {
	db *DB
}

func NewSearchEventRepository(db *DB) *SearchEventRepository {
	return &SearchEventRepository{db: db}
}

// Insert records one search. Callers treat failures as best-effort.
func (r *SearchEventRepository) Insert(ev SearchEvent) error {
	_, err := r.db.Exec(`
		INSERT INTO search_events (query, result_count, elapsed_ms)
		VALUES (?, ?, ?)
	`, ev.Query, ev.ResultCount, ev.ElapsedMS)
	if err != nil {
		return fmt.Errorf("failed to insert search event: %w", err)
	}

	return nil
}

// Stats aggregates the events between from and to inclusive. created_at
// is plain CURRENT_TIMESTAMP text, so the range filter compares epoch
// seconds on both sides instead of mixing text formats.
func (r *SearchEventRepository) Stats(from, to time.Time, limit int) (SearchStats, error) {
	var stats SearchStats
	err := r.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN result_count = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(elapsed_ms), 0)
		FROM search_events
		WHERE CAST(strftime('%s', created_at) AS INTEGER) BETWEEN ? AND ?
	`, from.UTC().Unix(), to.UTC().Unix()).Scan(&stats.Total, &stats.ZeroResults, &stats.AvgElapsedMS)
	if err != nil {
		return SearchStats{}, fmt.Errorf("failed to load search stats: %w", err)
	}

	rows, err := r.db.Query(`
		SELECT query, COUNT(*),
		       SUM(CASE WHEN result_count = 0 THEN 1 ELSE 0 END),
		       AVG(elapsed_ms)
		FROM search_events
		WHERE CAST(strftime('%s', created_at) AS INTEGER) BETWEEN ? AND ?
		GROUP BY query
		ORDER BY COUNT(*) DESC, query ASC
		LIMIT ?
	`, from.UTC().Unix(), to.UTC().Unix(), limit)
	if err != nil {
		return SearchStats{}, fmt.Errorf("failed to load top queries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var q SearchQueryStat
		if err := rows.Scan(&q.Query, &q.Count, &q.ZeroResults, &q.AvgElapsedMS); err != nil {
			return SearchStats{}, fmt.Errorf("failed to scan top query row: %w", err)
		}
		stats.TopQueries = append(stats.TopQueries, q)
	}
	if err := rows.Err(); err != nil {
		return SearchStats{}, fmt.Errorf("error iterating top query rows: %w", err)
	}

	return stats, nil
}
