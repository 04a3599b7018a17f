package questions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sealvault/internal/common"
	"github.com/dmitrijs2005/sealvault/internal/dbx"
	"github.com/dmitrijs2005/sealvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) LockUser(ctx context.Context, userID string) error {
	if err := dbx.AdvisoryXactLock(ctx, r.db, "questions:"+userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Create(ctx context.Context, q *models.SecurityQuestion) (*models.SecurityQuestion, error) {
	query :=
		`INSERT INTO security_questions (id, user_id, question_text, answer_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at
		 `

	if err := r.db.QueryRowContext(ctx, query, q.ID, q.UserID, q.QuestionText, q.AnswerHash).Scan(&q.CreatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return q, nil
}

func (r *PostgresRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM security_questions WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]models.SecurityQuestion, error) {
	query :=
		`SELECT id, user_id, question_text, answer_hash, created_at FROM security_questions
		 WHERE user_id = $1
		 ORDER BY created_at, id
		 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var items []models.SecurityQuestion
	for rows.Next() {
		var q models.SecurityQuestion
		if err := rows.Scan(&q.ID, &q.UserID, &q.QuestionText, &q.AnswerHash, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		items = append(items, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return items, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.SecurityQuestion, error) {
	query :=
		`SELECT id, user_id, question_text, answer_hash, created_at FROM security_questions
		 WHERE id = $1
		 `

	q := &models.SecurityQuestion{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&q.ID, &q.UserID, &q.QuestionText, &q.AnswerHash, &q.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return q, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM security_questions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM security_questions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}
