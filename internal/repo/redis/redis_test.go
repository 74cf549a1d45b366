package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/hamed0406/sitestatus/internal/domain"
	"github.com/hamed0406/sitestatus/internal/repo"
)

func TestRedisStore_SaveLoad(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping Redis integration test")
	}

	ctx := context.Background()
	prefix := fmt.Sprintf("sitestatus-test-%d:", time.Now().UnixNano())
	s, err := New(ctx, Options{Addr: addr, Prefix: prefix})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() {
		s.client.Del(ctx, s.sitesKey(), s.lastUpdateKey())
		s.Close()
	}()

	if _, err := s.Load(ctx); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on fresh prefix, got %v", err)
	}

	doc := domain.NewDocument()
	doc.LastUpdate = 99
	doc.Sites["https://a"] = &domain.SiteRecord{
		History: []domain.HistoryEntry{{Timestamp: 99, StatusCode: 200, LatencyMS: 3}},
		LastUp:  domain.TS(99),
	}
	if err := s.Save(ctx, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.LastUpdate != 99 || got.Sites["https://a"] == nil || *got.Sites["https://a"].LastUp != 99 {
		t.Fatalf("unexpected document: %+v", got)
	}
}
