package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/qrave1/RandomTalk/internal/domain"
	"github.com/qrave1/RandomTalk/internal/domain/models"
)

// MatchHistoryRepository хранит историю пар; живое состояние сессий остается в памяти
type MatchHistoryRepository interface {
	Create(ctx context.Context, record *models.MatchRecord) error
	MarkConnected(ctx context.Context, sessionID string, at time.Time) error

	// Finish закрывает запись один раз; повторный вызов ничего не меняет
	Finish(ctx context.Context, sessionID string, reason models.EndReason, at time.Time) error

	GetBySessionID(ctx context.Context, sessionID string) (*models.MatchRecord, error)
}

type matchHistoryRepo struct {
	db *sqlx.DB
}

func NewMatchHistoryRepo(db *sqlx.DB) MatchHistoryRepository {
	return &matchHistoryRepo{db: db}
}

func (r *matchHistoryRepo) Create(ctx context.Context, record *models.MatchRecord) error {
	query := `
		INSERT INTO matches (session_id, pool, participant_a, participant_b, score, created_at)
		VALUES (:session_id, :pool, :participant_a, :participant_b, :score, :created_at)`

	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create match record: %w", err)
	}

	return nil
}

func (r *matchHistoryRepo) MarkConnected(ctx context.Context, sessionID string, at time.Time) error {
	query := "UPDATE matches SET connected_at = $2 WHERE session_id = $1 AND connected_at IS NULL"

	if _, err := r.db.ExecContext(ctx, query, sessionID, at); err != nil {
		return fmt.Errorf("mark match connected: %w", err)
	}

	return nil
}

func (r *matchHistoryRepo) Finish(ctx context.Context, sessionID string, reason models.EndReason, at time.Time) error {
	query := "UPDATE matches SET ended_at = $2, end_reason = $3 WHERE session_id = $1 AND ended_at IS NULL"

	if _, err := r.db.ExecContext(ctx, query, sessionID, at, string(reason)); err != nil {
		return fmt.Errorf("finish match record: %w", err)
	}

	return nil
}

func (r *matchHistoryRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.MatchRecord, error) {
	var record models.MatchRecord

	query := `
		SELECT session_id, pool, participant_a, participant_b, score, created_at, connected_at, ended_at, end_reason
		FROM matches
		WHERE session_id = $1`

	err := r.db.GetContext(ctx, &record, query, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("match %s: %w", sessionID, domain.ErrNotFound)
		}

		return nil, fmt.Errorf("get match record: %w", err)
	}

	return &record, nil
}
