package models

import (
	"time"

	"github.com/google/uuid"
)

type Note struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Title      string    `json:"title"`
	OriginKind string    `json:"origin_kind"`
	Content    string    `json:"content"`
	SourceText string    `json:"-"`
	WordCount  int       `json:"word_count"`
	CreatedAt  time.Time `json:"created_at"`
}
