// Package sqlite keeps one row per site plus one row per retained check.
// Check rows carry an increasing seq per site, so a save only appends and trims.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/hamed0406/sitestatus/internal/domain"
	"github.com/hamed0406/sitestatus/internal/repo"
)

type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database file and runs migrations.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path))
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS sites (
	url        TEXT PRIMARY KEY,
	last_up    INTEGER,
	last_down  INTEGER,
	down_since INTEGER
);

CREATE TABLE IF NOT EXISTS site_checks (
	url           TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	checked_at    INTEGER NOT NULL,
	status        INTEGER NOT NULL,
	response_time INTEGER NOT NULL,
	PRIMARY KEY (url, seq),
	FOREIGN KEY (url) REFERENCES sites(url) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Load(ctx context.Context) (*domain.Document, error) {
	var lastUpdate string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'last_update'`).Scan(&lastUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read last_update: %w", err)
	}

	doc := domain.NewDocument()
	if doc.LastUpdate, err = strconv.ParseInt(lastUpdate, 10, 64); err != nil {
		return nil, fmt.Errorf("parse last_update %q: %w: %w", lastUpdate, repo.ErrCorrupt, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT url, last_up, last_down, down_since FROM sites`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	for rows.Next() {
		var (
			url                      string
			lastUp, lastDown, downSc sql.NullInt64
		)
		if err := rows.Scan(&url, &lastUp, &lastDown, &downSc); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan site: %w", err)
		}
		rec := domain.NewSiteRecord()
		rec.LastUp, rec.LastDown, rec.DownSince = nullable(lastUp), nullable(lastDown), nullable(downSc)
		doc.Sites[url] = rec
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	checks, err := s.db.QueryContext(ctx, `SELECT url, checked_at, status, response_time FROM site_checks ORDER BY url, seq`)
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	defer checks.Close()
	for checks.Next() {
		var (
			url string
			e   domain.HistoryEntry
		)
		if err := checks.Scan(&url, &e.Timestamp, &e.StatusCode, &e.LatencyMS); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		if rec := doc.Sites[url]; rec != nil {
			rec.History = append(rec.History, e)
		}
	}
	return doc.Normalize(), checks.Err()
}

// storedSite is what the database currently holds for one URL.
type storedSite struct {
	lastUp, lastDown, downSince *int64
	seqs                        []int64
	entries                     []domain.HistoryEntry
}

func (s *Store) readStored(ctx context.Context, tx *sql.Tx) (map[string]*storedSite, error) {
	out := make(map[string]*storedSite)
	rows, err := tx.QueryContext(ctx, `SELECT url, last_up, last_down, down_since FROM sites`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	for rows.Next() {
		var (
			url                      string
			lastUp, lastDown, downSc sql.NullInt64
		)
		if err := rows.Scan(&url, &lastUp, &lastDown, &downSc); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan site: %w", err)
		}
		out[url] = &storedSite{lastUp: nullable(lastUp), lastDown: nullable(lastDown), downSince: nullable(downSc)}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	checks, err := tx.QueryContext(ctx, `SELECT url, seq, checked_at, status, response_time FROM site_checks ORDER BY url, seq`)
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	defer checks.Close()
	for checks.Next() {
		var (
			url string
			seq int64
			e   domain.HistoryEntry
		)
		if err := checks.Scan(&url, &seq, &e.Timestamp, &e.StatusCode, &e.LatencyMS); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		if st := out[url]; st != nil {
			st.seqs = append(st.seqs, seq)
			st.entries = append(st.entries, e)
		}
	}
	return out, checks.Err()
}

// overlap returns how many stored entries were trimmed from the front: the
// smallest d for which stored[d:] is a prefix of next. Everything after that
// prefix in next is new.
func overlap(stored, next []domain.HistoryEntry) int {
	for d := max(0, len(stored)-len(next)); d < len(stored); d++ {
		if slices.Equal(stored[d:], next[:len(stored)-d]) {
			return d
		}
	}
	return len(stored)
}

func sameTS(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Save brings the database in line with doc inside one transaction. Only
// changed site rows are updated; for the checks, only entries trimmed off the
// front are deleted and only new entries are inserted.
func (s *Store) Save(ctx context.Context, doc *domain.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	stored, err := s.readStored(ctx, tx)
	if err != nil {
		return err
	}

	for url, rec := range doc.Sites {
		if rec == nil {
			continue
		}
		st := stored[url]
		if st == nil || !sameTS(st.lastUp, rec.LastUp) || !sameTS(st.lastDown, rec.LastDown) || !sameTS(st.downSince, rec.DownSince) {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO sites (url, last_up, last_down, down_since) VALUES (?, ?, ?, ?)
ON CONFLICT(url) DO UPDATE SET last_up = excluded.last_up, last_down = excluded.last_down, down_since = excluded.down_since`,
				url, rec.LastUp, rec.LastDown, rec.DownSince); err != nil {
				return fmt.Errorf("upsert site %s: %w", url, err)
			}
		}
		if st == nil {
			st = &storedSite{}
		}

		trimmed := overlap(st.entries, rec.History)
		switch {
		case trimmed == len(st.entries) && trimmed > 0:
			if _, err := tx.ExecContext(ctx, `DELETE FROM site_checks WHERE url = ?`, url); err != nil {
				return fmt.Errorf("clear checks %s: %w", url, err)
			}
		case trimmed > 0:
			if _, err := tx.ExecContext(ctx, `DELETE FROM site_checks WHERE url = ? AND seq < ?`, url, st.seqs[trimmed]); err != nil {
				return fmt.Errorf("trim checks %s: %w", url, err)
			}
		}

		next := int64(0)
		if n := len(st.seqs); n > 0 {
			next = st.seqs[n-1] + 1
		}
		for _, e := range rec.History[len(st.entries)-trimmed:] {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO site_checks (url, seq, checked_at, status, response_time) VALUES (?, ?, ?, ?, ?)`,
				url, next, e.Timestamp, e.StatusCode, e.LatencyMS); err != nil {
				return fmt.Errorf("insert check %s: %w", url, err)
			}
			next++
		}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO meta (key, value) VALUES ('last_update', ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.FormatInt(doc.LastUpdate, 10)); err != nil {
		return fmt.Errorf("write last_update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func nullable(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return domain.TS(v.Int64)
}

var _ repo.HistoryStore = (*Store)(nil)
