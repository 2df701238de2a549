package store

import (
	"context"
	"time"
)

// CursorRepository tracks how far each process's output has been read.
type CursorRepository interface {
	Cursor(ctx context.Context, process string) (string, error)
	SaveCursor(ctx context.Context, process, cursor string) error
}

// SeenRepository remembers dispatched event ids.
type SeenRepository interface {
	MarkSeen(ctx context.Context, id string) (bool, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}
