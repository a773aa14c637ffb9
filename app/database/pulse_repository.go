package database

import (
	"database/sql"
	"fmt"
	"time"
)

const sessionGap = 30 * time.Minute

// PulseRepository handles database operations for page-view analytics
type PulseRepository struct {
	db *DB
}

func NewPulseRepository(db *DB) *PulseRepository {
	return &PulseRepository{db: db}
}

// InsertPageView records one page view. A replayed page_instance_id
// refreshes the attributes but never clobbers an engagement duration
// that already arrived.
func (r *PulseRepository) InsertPageView(ev PulseEvent) error {
	_, err := r.db.Exec(`
		INSERT INTO pulse_events (
			page_instance_id, duration_ms, user_stats_id, path, site,
			ts, session_start_ts, ua_family, device, source_type, ref_host, country
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (page_instance_id) DO UPDATE SET
			user_stats_id = excluded.user_stats_id,
			path = excluded.path,
			site = excluded.site,
			ts = excluded.ts,
			session_start_ts = excluded.session_start_ts,
			ua_family = excluded.ua_family,
			device = excluded.device,
			source_type = excluded.source_type,
			ref_host = excluded.ref_host,
			country = excluded.country
	`, ev.PageInstanceID, ev.DurationMS, ev.UserStatsID, ev.Path, ev.Site,
		ev.TS.UTC(), ev.SessionStartTS.UTC(), ev.UAFamily, ev.Device,
		ev.SourceType, ev.RefHost, ev.Country)
	if err != nil {
		return fmt.Errorf("failed to insert pulse event: %w", err)
	}

	return nil
}

// UpsertVisitor updates the per-visitor session row. A visitor silent
// for more than 30 minutes starts a new session: session_start_ts and
// the entry attributes reset to the current event's values.
func (r *PulseRepository) UpsertVisitor(site, userStatsID string, seenAt time.Time, sourceType, refHost string) error {
	seenAt = seenAt.UTC()

	var lastSeen time.Time
	err := r.db.QueryRow(`
		SELECT last_seen_ts
		FROM pulse_visitors
		WHERE site = ? AND user_stats_id = ?
	`, site, userStatsID).Scan(&lastSeen)

	if err == sql.ErrNoRows {
		_, err = r.db.Exec(`
			INSERT INTO pulse_visitors (
				site, user_stats_id, first_seen_ts, last_seen_ts,
				session_start_ts, entry_source_type, entry_ref_host
			)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, site, userStatsID, seenAt, seenAt, seenAt, sourceType, refHost)
		if err != nil {
			return fmt.Errorf("failed to insert pulse visitor: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load pulse visitor: %w", err)
	}

	if seenAt.Sub(lastSeen) > sessionGap {
		_, err = r.db.Exec(`
			UPDATE pulse_visitors
			SET last_seen_ts = ?, session_start_ts = ?,
			    entry_source_type = ?, entry_ref_host = ?
			WHERE site = ? AND user_stats_id = ?
		`, seenAt, seenAt, sourceType, refHost, site, userStatsID)
	} else {
		_, err = r.db.Exec(`
			UPDATE pulse_visitors
			SET last_seen_ts = ?
			WHERE site = ? AND user_stats_id = ?
		`, seenAt, site, userStatsID)
	}
	if err != nil {
		return fmt.Errorf("failed to update pulse visitor: %w", err)
	}

	return nil
}

// SiteOverview aggregates events and distinct visitors per site. The
// last event time goes through strftime because MAX() strips the column
// type the driver needs to hand back a time.Time.
func (r *PulseRepository) SiteOverview() ([]PulseSiteOverview, error) {
	rows, err := r.db.Query(`
		SELECT site, COUNT(*), COUNT(DISTINCT user_stats_id),
		       strftime('%s', MAX(ts))
		FROM pulse_events
		GROUP BY site
		ORDER BY site ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load pulse site overview: %w", err)
	}
	defer rows.Close()

	var sites []PulseSiteOverview
	for rows.Next() {
		var site PulseSiteOverview
		var lastEpoch sql.NullInt64
		if err := rows.Scan(&site.Site, &site.Events, &site.Visitors, &lastEpoch); err != nil {
			return nil, fmt.Errorf("failed to scan pulse site row: %w", err)
		}
		if lastEpoch.Valid {
			site.LastEventAt = time.Unix(lastEpoch.Int64, 0).UTC()
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pulse site rows: %w", err)
	}

	return sites, nil
}

// UpdateEngagement sets duration_ms for an existing page view. A
// missing row is not an error: the pv may have raced the engagement
// beacon and lost.
func (r *PulseRepository) UpdateEngagement(pageInstanceID string, durationMS int64) error {
	_, err := r.db.Exec(`
		UPDATE pulse_events
		SET duration_ms = ?
		WHERE page_instance_id = ?
	`, durationMS, pageInstanceID)
	if err != nil {
		return fmt.Errorf("failed to update engagement: %w", err)
	}

	return nil
}
