package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/qrave1/RandomTalk/internal/domain"
	"github.com/qrave1/RandomTalk/internal/domain/models"
)

const (
	MinReputation = 0
	MaxReputation = 100
)

type ReputationRepository interface {
	// Get возвращает domain.ErrNotFound для участника без записи
	Get(ctx context.Context, participantID models.ParticipantID) (*models.Reputation, error)

	// Adjust меняет репутацию на delta в пределах [0, 100]; отсутствующая запись создается от base
	Adjust(ctx context.Context, participantID models.ParticipantID, base, delta int) (*models.Reputation, error)
}

type reputationRepo struct {
	db *sqlx.DB
}

func NewReputationRepo(db *sqlx.DB) ReputationRepository {
	return &reputationRepo{db: db}
}

func (r *reputationRepo) Get(ctx context.Context, participantID models.ParticipantID) (*models.Reputation, error) {
	var rep models.Reputation

	query := "SELECT participant_id, score, premium, updated_at FROM reputations WHERE participant_id = $1"

	err := r.db.GetContext(ctx, &rep, query, participantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reputation %s: %w", participantID, domain.ErrNotFound)
		}

		return nil, fmt.Errorf("get reputation: %w", err)
	}

	return &rep, nil
}

func (r *reputationRepo) Adjust(
	ctx context.Context,
	participantID models.ParticipantID,
	base, delta int,
) (*models.Reputation, error) {
	var rep models.Reputation

	query := `
		INSERT INTO reputations (participant_id, score)
		VALUES ($1, GREATEST($4, LEAST($5, $2::int + $3::int)))
		ON CONFLICT (participant_id) DO UPDATE
		SET score      = GREATEST($4, LEAST($5, reputations.score + $3::int)),
		    updated_at = NOW()
		RETURNING participant_id, score, premium, updated_at`

	err := r.db.GetContext(ctx, &rep, query, participantID, base, delta, MinReputation, MaxReputation)
	if err != nil {
		return nil, fmt.Errorf("adjust reputation: %w", err)
	}

	return &rep, nil
}
