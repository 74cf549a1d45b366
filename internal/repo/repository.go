package repo

import (
	"context"
	"errors"

	"github.com/hamed0406/sitestatus/internal/domain"
)

// ErrNotFound is returned by Load when nothing has been persisted yet.
var ErrNotFound = errors.New("history document not found")

// ErrCorrupt wraps Load errors caused by stored content that cannot be decoded.
// Callers may start over from an empty document; any other Load error means
// the store could not be read and nothing should be written back.
var ErrCorrupt = errors.New("history document corrupt")

// HistoryStore persists the whole History Document. Save replaces what is
// stored with doc; Load returns a fresh, normalized copy the caller may mutate.
type HistoryStore interface {
	Load(ctx context.Context) (*domain.Document, error)
	Save(ctx context.Context, doc *domain.Document) error
}

// Closer is implemented by stores that hold a connection.
type Closer interface {
	Close() error
}
