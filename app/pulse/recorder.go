package pulse

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/itswincer/inkstone/app/database"
	"github.com/itswincer/inkstone/app/paths"
)

const maxPathLen = 512

// DefaultSite groups events when the client does not name a site.
const DefaultSite = "main"

// Repository is the persistence surface the recorder needs.
type Repository interface {
	InsertPageView(ev database.PulseEvent) error
	UpsertVisitor(site, userStatsID string, seenAt time.Time, sourceType, refHost string) error
	UpdateEngagement(pageInstanceID string, durationMS int64) error
}

// ValidationError marks client mistakes the HTTP layer maps to 400.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErr(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// ErrPathNotFound is returned for paths outside the allow-list.
var ErrPathNotFound = fmt.Errorf("path is not allowed")

// ErrNotReady is returned before the first valid-paths load.
var ErrNotReady = fmt.Errorf("valid paths not loaded")

// PageView carries everything the pv endpoint extracted from the
// request. Classification happens here, not in the handler.
type PageView struct {
	PageInstanceID string
	Path           string
	Site           string
	UserStatsID    string
	UserAgent      string
	Referer        string
	CFCountry      string
	ForwardedFor   string
}

// Recorder validates and persists page views and engagement updates.
type Recorder struct {
	repo     Repository
	validSet *paths.Set
}

func NewRecorder(repo Repository, validSet *paths.Set) *Recorder {
	return &Recorder{repo: repo, validSet: validSet}
}

// RecordPageView validates the event, derives the visitor attributes
// and writes both the event row and the per-visitor session row.
func (r *Recorder) RecordPageView(pv PageView) error {
	id, err := parsePageInstanceID(pv.PageInstanceID)
	if err != nil {
		return err
	}
	path, err := normalizePath(pv.Path)
	if err != nil {
		return err
	}

	if !r.validSet.Ready() {
		return ErrNotReady
	}
	if !r.validSet.Contains(path) {
		return ErrPathNotFound
	}

	site := strings.TrimSpace(pv.Site)
	if site == "" {
		site = DefaultSite
	}

	now := time.Now().UTC()
	host := refHost(pv.Referer)
	ev := database.PulseEvent{
		PageInstanceID: id,
		UserStatsID:    pv.UserStatsID,
		Path:           path,
		Site:           site,
		TS:             now,
		SessionStartTS: now,
		UAFamily:       uaFamily(pv.UserAgent),
		Device:         uaDevice(pv.UserAgent),
		SourceType:     sourceType(host),
		RefHost:        host,
		Country:        country(pv.CFCountry, pv.ForwardedFor),
	}

	if err := r.repo.InsertPageView(ev); err != nil {
		return err
	}
	if err := r.repo.UpsertVisitor(site, pv.UserStatsID, now, ev.SourceType, host); err != nil {
		// The event row landed; losing one session update is
		// preferable to failing the beacon.
		slog.Warn("Failed to upsert pulse visitor", "error", err)
	}

	return nil
}

// RecordEngagement updates the dwell time of an already-recorded page
// view. Unknown instances are accepted silently.
func (r *Recorder) RecordEngagement(pageInstanceID string, durationMS int64) error {
	id, err := parsePageInstanceID(pageInstanceID)
	if err != nil {
		return err
	}
	if durationMS < 0 {
		return validationErr("duration_ms is invalid")
	}

	return r.repo.UpdateEngagement(id, durationMS)
}

func parsePageInstanceID(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", validationErr("page_instance_id is required")
	}
	id, err := uuid.Parse(trimmed)
	if err != nil {
		return "", validationErr("page_instance_id is invalid")
	}
	return id.String(), nil
}

func normalizePath(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", validationErr("path is required")
	}
	if len(trimmed) > maxPathLen || !strings.HasPrefix(trimmed, "/") || strings.ContainsAny(trimmed, " \t") {
		return "", validationErr("path is invalid")
	}
	return trimmed, nil
}
