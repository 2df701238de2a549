package db

import "time"

// Cursor is the last compute unit position read for a process.
type Cursor struct {
	Process   string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

// SeenEvent records an event that has already been dispatched.
type SeenEvent struct {
	ID        string    `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"index"`
}
