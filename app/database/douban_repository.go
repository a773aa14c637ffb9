package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DoubanRepository handles database operations for Douban marks
type DoubanRepository struct {
	db *DB
}

func NewDoubanRepository(db *DB) *DoubanRepository {
	return &DoubanRepository{db: db}
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(raw), nil
}

// Upsert replaces every column of the given items. Used by rebuild
// crawls where remote edits must win.
func (r *DoubanRepository) Upsert(items []DoubanItem) error {
	return r.insert(items, `
		ON CONFLICT (type, id) DO UPDATE SET
			title = excluded.title,
			poster = excluded.poster,
			rating = excluded.rating,
			tags = excluded.tags,
			comment = excluded.comment,
			date = excluded.date
	`, nil)
}

// InsertIgnore inserts only unseen items and reports how many rows were
// actually added. The crawler stops paginating once a page adds
// nothing new.
func (r *DoubanRepository) InsertIgnore(items []DoubanItem) (int64, error) {
	var inserted int64
	err := r.insert(items, "ON CONFLICT (type, id) DO NOTHING", &inserted)
	return inserted, err
}

func (r *DoubanRepository) insert(items []DoubanItem, conflictClause string, inserted *int64) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin douban transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO douban_items (type, id, title, poster, rating, tags, comment, date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	` + conflictClause)
	if err != nil {
		return fmt.Errorf("failed to prepare douban insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		tags, err := encodeTags(item.Tags)
		if err != nil {
			return err
		}

		var rating interface{}
		if item.Rating > 0 {
			rating = item.Rating
		}
		var date interface{}
		if item.Date != nil {
			date = item.Date.UTC().Format("2006-01-02")
		}

		res, err := stmt.Exec(item.Type, item.ID, item.Title, nullableString(item.Poster),
			rating, tags, nullableString(item.Comment), date)
		if err != nil {
			return fmt.Errorf("failed to insert douban item %s/%s: %w", item.Type, item.ID, err)
		}
		if inserted != nil {
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read affected rows: %w", err)
			}
			*inserted += n
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit douban transaction: %w", err)
	}

	return nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Overview summarizes the stored marks for diagnostics.
func (r *DoubanRepository) Overview() (DoubanOverview, error) {
	var overview DoubanOverview
	var lastDate sql.NullString
	err := r.db.QueryRow(`
		SELECT COUNT(*), COUNT(date), MAX(date)
		FROM douban_items
	`).Scan(&overview.Total, &overview.WithDate, &lastDate)
	if err != nil {
		return DoubanOverview{}, fmt.Errorf("failed to load douban overview: %w", err)
	}
	overview.LastDate = lastDate.String

	rows, err := r.db.Query(`
		SELECT type, COUNT(*)
		FROM douban_items
		GROUP BY type
		ORDER BY type ASC
	`)
	if err != nil {
		return DoubanOverview{}, fmt.Errorf("failed to load douban type counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tc DoubanTypeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return DoubanOverview{}, fmt.Errorf("failed to scan douban type row: %w", err)
		}
		overview.Types = append(overview.Types, tc)
	}
	if err := rows.Err(); err != nil {
		return DoubanOverview{}, fmt.Errorf("error iterating douban type rows: %w", err)
	}

	return overview, nil
}

// MarksByYear returns dated items within the given calendar year,
// oldest first.
func (r *DoubanRepository) MarksByYear(year int) ([]DoubanItem, error) {
	start := fmt.Sprintf("%04d-01-01", year)
	end := fmt.Sprintf("%04d-01-01", year+1)

	rows, err := r.db.Query(`
		SELECT type, id, title, COALESCE(poster, ''), COALESCE(rating, 0),
		       tags, COALESCE(comment, ''), date
		FROM douban_items
		WHERE date IS NOT NULL AND date >= ? AND date < ?
		ORDER BY date ASC, id ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load douban marks: %w", err)
	}
	defer rows.Close()

	var items []DoubanItem
	for rows.Next() {
		var item DoubanItem
		var tagsRaw string
		var dateRaw sql.NullString
		if err := rows.Scan(&item.Type, &item.ID, &item.Title, &item.Poster,
			&item.Rating, &tagsRaw, &item.Comment, &dateRaw); err != nil {
			return nil, fmt.Errorf("failed to scan douban row: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsRaw), &item.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags for %s/%s: %w", item.Type, item.ID, err)
		}
		if dateRaw.Valid {
			d, err := time.ParseInLocation("2006-01-02", dateRaw.String, time.UTC)
			if err != nil {
				return nil, fmt.Errorf("failed to parse date for %s/%s: %w", item.Type, item.ID, err)
			}
			item.Date = &d
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating douban rows: %w", err)
	}

	return items, nil
}
