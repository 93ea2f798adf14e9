package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/qrave1/RandomTalk/internal/domain/models"
)

type ReportRepository interface {
	// Create возвращает false, если этот участник уже жаловался на эту сессию
	Create(ctx context.Context, report *models.AbuseReport) (bool, error)
}

type reportRepo struct {
	db *sqlx.DB
}

func NewReportRepo(db *sqlx.DB) ReportRepository {
	return &reportRepo{db: db}
}

func (r *reportRepo) Create(ctx context.Context, report *models.AbuseReport) (bool, error) {
	query := `
		INSERT INTO abuse_reports (session_id, reporter_id, reported_id, reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, reporter_id) DO NOTHING
		RETURNING id, created_at`

	err := r.db.QueryRowxContext(
		ctx,
		query,
		report.SessionID,
		report.Reporter,
		report.Reported,
		report.Reason,
	).Scan(&report.ID, &report.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}

		return false, fmt.Errorf("create abuse report: %w", err)
	}

	return true, nil
}
