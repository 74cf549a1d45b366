package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/sitestatus/internal/domain"
	"github.com/hamed0406/sitestatus/internal/repo"
)

var _ repo.HistoryStore = (*Store)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS site_history (
  url        TEXT PRIMARY KEY,
  record     JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS history_meta (
  id          SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
  last_update BIGINT NOT NULL
);
`

// Store keeps each SiteRecord as a JSONB row keyed by its URL.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	log.Info("postgres_store_ready")
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (*domain.Document, error) {
	doc := domain.NewDocument()
	err := s.pool.QueryRow(ctx, `SELECT last_update FROM history_meta WHERE id = 1`).Scan(&doc.LastUpdate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT url, record FROM site_history`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			url string
			rec domain.SiteRecord
		)
		if err := rows.Scan(&url, &rec); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		doc.Sites[url] = &rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return doc.Normalize(), nil
}

// Save upserts every site row and the meta row in one transaction.
func (s *Store) Save(ctx context.Context, doc *domain.Document) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for url, rec := range doc.Sites {
		if rec == nil {
			continue
		}
		batch.Queue(`
INSERT INTO site_history (url, record, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (url) DO UPDATE SET record = EXCLUDED.record, updated_at = EXCLUDED.updated_at`,
			url, rec)
	}
	batch.Queue(`
INSERT INTO history_meta (id, last_update) VALUES (1, $1)
ON CONFLICT (id) DO UPDATE SET last_update = EXCLUDED.last_update`, doc.LastUpdate)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert history: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
