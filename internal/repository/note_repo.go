package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"cardforge-backend/internal/models"
)

type NoteRepo struct {
	pool *pgxpool.Pool
}

func NewNoteRepo(pool *pgxpool.Pool) *NoteRepo {
	return &NoteRepo{pool: pool}
}

func (r *NoteRepo) Create(ctx context.Context, n *models.Note) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}

	query := `INSERT INTO notes (id, user_id, title, origin_kind, content, source_text, word_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		n.ID, n.UserID, n.Title, n.OriginKind, n.Content, n.SourceText, n.WordCount,
	).Scan(&n.CreatedAt)
}

// UpdateContent fills in the generated note body on an existing row (rows
// are created up front so the job has a stable reference id).
func (r *NoteRepo) UpdateContent(ctx context.Context, id uuid.UUID, originKind, content string, wordCount int, sourceText string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE notes SET origin_kind = $1, content = $2, word_count = $3, source_text = $4 WHERE id = $5",
		originKind, content, wordCount, sourceText, id,
	)
	return err
}

func (r *NoteRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Note, error) {
	n := &models.Note{}
	query := `SELECT id, user_id, title, origin_kind, content, word_count, created_at
		FROM notes WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&n.ID, &n.UserID, &n.Title, &n.OriginKind, &n.Content, &n.WordCount, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (r *NoteRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Note, error) {
	query := `SELECT id, user_id, title, origin_kind, word_count, created_at
		FROM notes WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []*models.Note
	for rows.Next() {
		n := &models.Note{}
		err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.OriginKind, &n.WordCount, &n.CreatedAt)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (r *NoteRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM notes WHERE id = $1", id)
	return err
}
