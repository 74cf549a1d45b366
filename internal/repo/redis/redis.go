// Package redis keeps the History Document in a Redis hash, one field per site.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/hamed0406/sitestatus/internal/domain"
	"github.com/hamed0406/sitestatus/internal/repo"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const DefaultPrefix = "sitestatus:"

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type Store struct {
	client *redis.Client
	prefix string
}

func New(ctx context.Context, opt Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opt.Addr,
		Password: opt.Password,
		DB:       opt.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewWithClient(client, opt.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) sitesKey() string      { return s.prefix + "sites" }
func (s *Store) lastUpdateKey() string { return s.prefix + "last_update" }

func (s *Store) Load(ctx context.Context) (*domain.Document, error) {
	lu, err := s.client.Get(ctx, s.lastUpdateKey()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get last_update: %w", err)
	}

	doc := domain.NewDocument()
	if doc.LastUpdate, err = strconv.ParseInt(lu, 10, 64); err != nil {
		return nil, fmt.Errorf("parse last_update %q: %w: %w", lu, repo.ErrCorrupt, err)
	}

	fields, err := s.client.HGetAll(ctx, s.sitesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall sites: %w", err)
	}
	for url, raw := range fields {
		var rec domain.SiteRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode site %s: %w: %w", url, repo.ErrCorrupt, err)
		}
		doc.Sites[url] = &rec
	}
	return doc.Normalize(), nil
}

// Save writes every site field and last_update in one MULTI/EXEC.
func (s *Store) Save(ctx context.Context, doc *domain.Document) error {
	values := make(map[string]any, len(doc.Sites))
	for url, rec := range doc.Sites {
		if rec == nil {
			continue
		}
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode site %s: %w", url, err)
		}
		values[url] = b
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(values) > 0 {
			pipe.HSet(ctx, s.sitesKey(), values)
		}
		pipe.Set(ctx, s.lastUpdateKey(), doc.LastUpdate, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

var _ repo.HistoryStore = (*Store)(nil)
