package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskwatchhq/deskwatch/pkg/types"
)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL using the supplied connection string.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	// Verify connection on startup.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases database resources.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

func (p *PostgresStore) LogInteraction(ctx context.Context, in types.Interaction) (types.Interaction, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return types.Interaction{}, errors.New("user id required")
	}
	if strings.TrimSpace(in.Question) == "" {
		return types.Interaction{}, errors.New("question required")
	}

	if existing, err := p.find(ctx, in.UserID, in.Question); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrInteractionNotFound) {
		return types.Interaction{}, err
	}

	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	if in.Feedback == "" {
		in.Feedback = types.FeedbackPending
	}
	if in.Manager == "" {
		in.Manager = types.ManagerNone
	}

	const insert = `
INSERT INTO interactions (
    id, user_id, user_name, question, answer, feedback, manager, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8);
`
	_, err := p.pool.Exec(ctx, insert,
		in.ID,
		in.UserID,
		in.UserName,
		in.Question,
		in.Answer,
		in.Feedback,
		in.Manager,
		in.CreatedAt,
	)
	if err != nil {
		return types.Interaction{}, err
	}
	return in, nil
}

func (p *PostgresStore) UpdateFeedback(ctx context.Context, userID, question, feedback, manager string) error {
	const update = `
UPDATE interactions
   SET feedback = $3,
       manager = CASE WHEN $4 = '' THEN manager ELSE $4 END
 WHERE user_id = $1 AND LOWER(TRIM(question)) = LOWER(TRIM($2));
`
	tag, err := p.pool.Exec(ctx, update, userID, question, feedback, manager)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInteractionNotFound
	}
	return nil
}

func (p *PostgresStore) ListInteractions(ctx context.Context, limit int) ([]types.Interaction, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
SELECT id, user_id, user_name, question, answer, feedback, manager, created_at
  FROM interactions
 ORDER BY created_at DESC
 LIMIT $1;
`
	rows, err := p.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []types.Interaction
	for rows.Next() {
		var in types.Interaction
		if err := rows.Scan(&in.ID, &in.UserID, &in.UserName, &in.Question, &in.Answer, &in.Feedback, &in.Manager, &in.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, in)
	}
	return results, rows.Err()
}

func (p *PostgresStore) find(ctx context.Context, userID, question string) (types.Interaction, error) {
	const query = `
SELECT id, user_id, user_name, question, answer, feedback, manager, created_at
  FROM interactions
 WHERE user_id = $1 AND LOWER(TRIM(question)) = LOWER(TRIM($2));
`
	row := p.pool.QueryRow(ctx, query, userID, question)
	var in types.Interaction
	if err := row.Scan(&in.ID, &in.UserID, &in.UserName, &in.Question, &in.Answer, &in.Feedback, &in.Manager, &in.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Interaction{}, ErrInteractionNotFound
		}
		return types.Interaction{}, err
	}
	return in, nil
}
