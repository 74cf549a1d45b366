package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hamed0406/sitestatus/internal/domain"
	"github.com/hamed0406/sitestatus/internal/repo"
)

func TestFileStore_MissingIsNotFound(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nope.json"))
	_, err := s.Load(context.Background())
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStore_CorruptIsDecodeError(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sites_status.json")
	if err := os.WriteFile(p, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := New(p).Load(context.Background())
	if !errors.Is(err, repo.ErrCorrupt) || errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "nested", "sites_status.json")
	s := New(p)

	doc := domain.NewDocument()
	doc.LastUpdate = 1700000100
	doc.Sites["https://a.example"] = &domain.SiteRecord{
		History: []domain.HistoryEntry{
			{Timestamp: 1700000000, StatusCode: 200, LatencyMS: 40},
			{Timestamp: 1700000100, StatusCode: 0, LatencyMS: 10000},
		},
		LastUp:    domain.TS(1700000000),
		LastDown:  domain.TS(1700000100),
		DownSince: domain.TS(1700000100),
	}
	if err := s.Save(ctx, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(raw), `"response_time": 10000`) {
		t.Fatalf("expected indented on-disk field names, got %s", raw)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rec := got.Sites["https://a.example"]
	if got.LastUpdate != doc.LastUpdate || rec == nil || len(rec.History) != 2 {
		t.Fatalf("unexpected document: %+v", got)
	}
	if rec.DownSince == nil || *rec.DownSince != 1700000100 || *rec.LastUp != 1700000000 {
		t.Fatalf("timestamps not preserved: %+v", rec)
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(p), "*.tmp"))
	if len(matches) != 0 {
		t.Fatalf("temp files left behind: %v", matches)
	}
}

func TestFileStore_IgnoresUnknownKeys(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sites_status.json")
	raw := `{"last_update":3,"generator":"legacy","sites":{"https://b":{"history":[{"timestamp":3,"status":200,"response_time":1}],"last_up":3}}}`
	if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := New(p).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec := got.Sites["https://b"]; rec == nil || rec.LastDown != nil || len(rec.History) != 1 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestFileStore_LoadsFloatLatenciesFromPHPPage(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sites_status.json")
	raw := `{
    "last_update": 1700000060,
    "sites": {
        "https:\/\/example.com": {
            "history": [
                {"timestamp": 1700000000, "status": 200, "response_time": 123.0},
                {"timestamp": 1700000060, "status": 0, "response_time": 10000.4}
            ],
            "last_up": 1700000000,
            "last_down": 1700000060,
            "down_since": 1700000060
        }
    }
}`
	if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := New(p).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rec := got.Sites["https://example.com"]
	if rec == nil || len(rec.History) != 2 {
		t.Fatalf("unexpected document: %+v", got.Sites)
	}
	if rec.History[0].LatencyMS != 123 || rec.History[1].LatencyMS != 10000 || rec.History[1].StatusCode != 0 {
		t.Fatalf("latencies not decoded: %+v", rec.History)
	}
	if rec.DownSince == nil || *rec.DownSince != 1700000060 {
		t.Fatalf("down_since lost: %+v", rec)
	}
}
