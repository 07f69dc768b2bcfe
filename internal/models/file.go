package models

import (
	"time"

	"gorm.io/gorm"
)

// File is one document stored on Telegram.
type File struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Transport-specific content identifier. Bot uploads always have a real
	// file_id; user-mode uploads store a synthetic document token.
	TGFileID string `gorm:"index;not null" json:"file_id"`

	Name string `gorm:"not null" json:"name"`
	Size int64  `gorm:"not null" json:"size"`

	// Message reference for user-mode downloads. Set together or not at all.
	ChatID    *string `gorm:"size:64" json:"-"`
	MessageID *int64  `json:"-"`
}

// HasMessageRef reports whether the row carries a full chat/message
// reference, the preferred retrieval path in user mode.
func (f *File) HasMessageRef() bool {
	return f.ChatID != nil && f.MessageID != nil
}
