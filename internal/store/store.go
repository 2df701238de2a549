// Package store provides database access for event cursors and dispatched events.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rudransh-shrivastava/ao-chat/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	_ CursorRepository = (*CursorStore)(nil)
	_ SeenRepository   = (*SeenStore)(nil)
)

type CursorStore struct {
	db *gorm.DB
}

func NewCursorStore(gdb *gorm.DB) *CursorStore {
	return &CursorStore{db: gdb}
}

// Cursor returns the saved cursor for process, or "" when none is stored.
func (cs *CursorStore) Cursor(ctx context.Context, process string) (string, error) {
	var c db.Cursor
	err := cs.db.WithContext(ctx).Where("process = ?", process).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return c.Value, nil
}

func (cs *CursorStore) SaveCursor(ctx context.Context, process, cursor string) error {
	return cs.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "process"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&db.Cursor{Process: process, Value: cursor}).Error
}

type SeenStore struct {
	db *gorm.DB
}

func NewSeenStore(gdb *gorm.DB) *SeenStore {
	return &SeenStore{db: gdb}
}

// MarkSeen records id and reports whether this is the first time it was seen.
func (ss *SeenStore) MarkSeen(ctx context.Context, id string) (bool, error) {
	res := ss.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&db.SeenEvent{ID: id})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (ss *SeenStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := ss.db.WithContext(ctx).Where("created_at < ?", before).Delete(&db.SeenEvent{})
	return res.RowsAffected, res.Error
}
