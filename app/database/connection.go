package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the shared sql.DB handle.
type DB struct {
	*sql.DB
}

// NewConnection opens the SQLite database at databaseURL (a file path
// or ":memory:") and applies the connection pragmas. The sqlite time
// format makes driver-bound timestamps readable by SQLite's own date
// functions; the Go default format is not.
func NewConnection(databaseURL string) (*DB, error) {
	dsn := databaseURL + "?_time_format=sqlite"
	if strings.Contains(databaseURL, "?") {
		dsn = databaseURL + "&_time_format=sqlite"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a small pool keeps readers flowing
	// while writes serialize on the busy timeout. An in-memory
	// database exists per connection, so it must stay on one.
	if databaseURL == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(4)
	}
	db.SetConnMaxLifetime(time.Hour)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}
