package memory

import (
	"context"
	"sync"

	"github.com/hamed0406/sitestatus/internal/domain"
	"github.com/hamed0406/sitestatus/internal/repo"
)

// Store keeps the History Document in process. Nothing survives a restart.
type Store struct {
	mu    sync.RWMutex
	doc   *domain.Document
	saves int
}

func New() *Store {
	return &Store{}
}

// Seed returns a store that already holds doc.
func Seed(doc *domain.Document) *Store {
	return &Store{doc: doc.Clone()}
}

func (m *Store) Load(ctx context.Context) (*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.doc == nil {
		return nil, repo.ErrNotFound
	}
	return m.doc.Clone().Normalize(), nil
}

func (m *Store) Save(ctx context.Context, doc *domain.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = doc.Clone()
	m.saves++
	return nil
}

// Saves reports how many times Save succeeded.
func (m *Store) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

var _ repo.HistoryStore = (*Store)(nil)
