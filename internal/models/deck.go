package models

import (
	"time"

	"github.com/google/uuid"
)

// Deck source tags. Chunked decks come from the non-AI sentence-split
// degradation path and must stay distinguishable from AI-authored decks.
const (
	DeckSourceAI      = "ai"
	DeckSourceChunked = "chunked"
)

type Deck struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Title      string    `json:"title"`
	OriginKind string    `json:"origin_kind"` // "text" | "url" | "youtube" | "video" | "pdf" | "pptx" | "unknown"
	Source     string    `json:"source"`      // "ai" | "chunked"
	SourceText string    `json:"-"`           // verbatim extracted text, kept for regeneration
	CardCount  int       `json:"card_count"`
	CreatedAt  time.Time `json:"created_at"`
}

type Card struct {
	ID             uuid.UUID  `json:"id"`
	DeckID         uuid.UUID  `json:"deck_id"`
	Question       string     `json:"question"`
	Answer         string     `json:"answer"`
	IntervalDays   int        `json:"interval_days"`
	EaseFactor     float64    `json:"ease_factor"`
	Repetitions    int        `json:"repetitions"`
	NextReviewAt   time.Time  `json:"next_review_at"`
	LastReviewedAt *time.Time `json:"last_reviewed_at"`
}

type CardRatingRequest struct {
	Rating int `json:"rating"` // 0=Again, 1=Hard, 2=Good, 3=Easy
}

type DeckStats struct {
	TotalCards  int     `json:"total_cards"`
	Mastered    int     `json:"mastered"`
	Learning    int     `json:"learning"`
	New         int     `json:"new"`
	DueToday    int     `json:"due_today"`
	MasteryRate float64 `json:"mastery_rate"`
}
