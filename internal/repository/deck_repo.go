package repository

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"cardforge-backend/internal/models"
)

type DeckRepo struct {
	pool *pgxpool.Pool
}

func NewDeckRepo(pool *pgxpool.Pool) *DeckRepo {
	return &DeckRepo{pool: pool}
}

// Deck operations

func (r *DeckRepo) Create(ctx context.Context, d *models.Deck) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}

	query := `INSERT INTO decks (id, user_id, title, origin_kind, source, source_text, card_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		d.ID, d.UserID, d.Title, d.OriginKind, d.Source, d.SourceText, d.CardCount,
	).Scan(&d.CreatedAt)
}

func (r *DeckRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Deck, error) {
	d := &models.Deck{}
	query := `SELECT id, user_id, title, origin_kind, source, source_text, card_count, created_at
		FROM decks WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.UserID, &d.Title, &d.OriginKind, &d.Source, &d.SourceText, &d.CardCount, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *DeckRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Deck, error) {
	query := `SELECT id, user_id, title, origin_kind, source, card_count, created_at
		FROM decks WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decks []*models.Deck
	for rows.Next() {
		d := &models.Deck{}
		err := rows.Scan(&d.ID, &d.UserID, &d.Title, &d.OriginKind, &d.Source, &d.CardCount, &d.CreatedAt)
		if err != nil {
			return nil, err
		}
		decks = append(decks, d)
	}
	return decks, rows.Err()
}

func (r *DeckRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM decks WHERE id = $1", id)
	return err
}

// UpdateGeneration swaps in a fresh generation result: metadata and source
// text on the deck row, old cards dropped, caller inserts the new set.
func (r *DeckRepo) UpdateGeneration(ctx context.Context, id uuid.UUID, originKind, source, sourceText string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM cards WHERE deck_id = $1", id); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx,
		"UPDATE decks SET origin_kind = $1, source = $2, source_text = $3 WHERE id = $4",
		originKind, source, sourceText, id,
	)
	return err
}

// Card operations

func (r *DeckRepo) CreateCards(ctx context.Context, deckID uuid.UUID, cards []models.Card) error {
	for i := range cards {
		cards[i].ID = uuid.New()
		cards[i].DeckID = deckID

		_, err := r.pool.Exec(ctx,
			`INSERT INTO cards (id, deck_id, question, answer, interval_days, ease_factor, repetitions, next_review_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			cards[i].ID, deckID, cards[i].Question, cards[i].Answer,
			1, 2.50, 0, time.Now().AddDate(0, 0, 1),
		)
		if err != nil {
			return err
		}
	}

	_, err := r.pool.Exec(ctx, "UPDATE decks SET card_count = $1 WHERE id = $2", len(cards), deckID)
	return err
}

func (r *DeckRepo) GetCards(ctx context.Context, deckID uuid.UUID) ([]models.Card, error) {
	query := `SELECT id, deck_id, question, answer, interval_days, ease_factor, repetitions, next_review_at, last_reviewed_at
		FROM cards WHERE deck_id = $1 ORDER BY next_review_at ASC`

	rows, err := r.pool.Query(ctx, query, deckID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []models.Card
	for rows.Next() {
		c := models.Card{}
		err := rows.Scan(
			&c.ID, &c.DeckID, &c.Question, &c.Answer,
			&c.IntervalDays, &c.EaseFactor, &c.Repetitions, &c.NextReviewAt, &c.LastReviewedAt,
		)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// RateCard applies the SM-2 update for a 0-3 rating. Pure arithmetic, no
// model involvement.
func (r *DeckRepo) RateCard(ctx context.Context, cardID uuid.UUID, rating int) error {
	var interval int
	var easeFactor float64
	var repetitions int

	err := r.pool.QueryRow(ctx,
		"SELECT interval_days, ease_factor, repetitions FROM cards WHERE id = $1",
		cardID,
	).Scan(&interval, &easeFactor, &repetitions)
	if err != nil {
		return err
	}

	if rating < 2 {
		// Again or Hard resets the run
		repetitions = 0
		interval = 1
	} else {
		repetitions++
		switch repetitions {
		case 1:
			interval = 1
		case 2:
			interval = 6
		default:
			interval = int(math.Round(float64(interval) * easeFactor))
		}
	}

	// EF' = EF + (0.1 - (3 - rating) * (0.08 + (3 - rating) * 0.02))
	easeFactor = easeFactor + (0.1 - float64(3-rating)*(0.08+float64(3-rating)*0.02))
	if easeFactor < 1.3 {
		easeFactor = 1.3
	}

	nextReview := time.Now().AddDate(0, 0, interval)

	_, err = r.pool.Exec(ctx,
		`UPDATE cards SET interval_days = $1, ease_factor = $2, repetitions = $3,
		 next_review_at = $4, last_reviewed_at = NOW() WHERE id = $5`,
		interval, easeFactor, repetitions, nextReview, cardID,
	)
	return err
}

func (r *DeckRepo) GetStats(ctx context.Context, deckID uuid.UUID) (*models.DeckStats, error) {
	stats := &models.DeckStats{}

	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM cards WHERE deck_id = $1", deckID).Scan(&stats.TotalCards)
	if err != nil {
		return nil, err
	}

	r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM cards WHERE deck_id = $1 AND repetitions >= 3 AND ease_factor >= 2.5",
		deckID).Scan(&stats.Mastered)

	r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM cards WHERE deck_id = $1 AND repetitions > 0 AND (repetitions < 3 OR ease_factor < 2.5)",
		deckID).Scan(&stats.Learning)

	r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM cards WHERE deck_id = $1 AND repetitions = 0",
		deckID).Scan(&stats.New)

	r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM cards WHERE deck_id = $1 AND next_review_at <= CURRENT_DATE",
		deckID).Scan(&stats.DueToday)

	if stats.TotalCards > 0 {
		stats.MasteryRate = float64(stats.Mastered) / float64(stats.TotalCards) * 100
	}

	return stats, nil
}
