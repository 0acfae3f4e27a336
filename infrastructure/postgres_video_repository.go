// infrastructure/postgres_video_repository.go
package infrastructure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/domain"
)

const videoJobColumns = `id, user_id, COALESCE(config_id::text, ''), reference_kind, reference_id, reference_url,
	COALESCE(caption, ''), COALESCE(gameplay_id::text, ''), status, COALESCE(processing_errors, ''), created_at, updated_at`

// PostgresVideoRepository is the job ledger.
type PostgresVideoRepository struct {
	DB     *sql.DB
	Logger *zap.Logger
}

func NewPostgresVideoRepository(db *sql.DB, logger *zap.Logger) *PostgresVideoRepository {
	return &PostgresVideoRepository{DB: db, Logger: logger.Named("PostgresVideoRepository")}
}

func (r *PostgresVideoRepository) Create(ctx context.Context, job *domain.VideoJob) error {
	query := `INSERT INTO video_jobs (id, user_id, config_id, reference_kind, reference_id, reference_url, caption, status, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, NULLIF($7, ''), $8, $9, $9)`
	_, err := r.DB.ExecContext(ctx, query,
		job.ID, job.UserID, job.ConfigID,
		job.Reference.Kind, job.Reference.ID, job.Reference.URL,
		job.Caption, job.Status, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert video job %s: %w", job.ID, err)
	}
	return nil
}

func (r *PostgresVideoRepository) UpdateStatus(ctx context.Context, jobID string, status domain.VideoStatus, errorMessage string) error {
	query := `UPDATE video_jobs SET status = $1, processing_errors = NULLIF($2, ''), updated_at = NOW() WHERE id = $3`
	return r.execOne(ctx, jobID, query, status, errorMessage, jobID)
}

func (r *PostgresVideoRepository) UpdateCaption(ctx context.Context, jobID, caption string) error {
	query := `UPDATE video_jobs SET caption = $1, updated_at = NOW() WHERE id = $2`
	return r.execOne(ctx, jobID, query, caption, jobID)
}

func (r *PostgresVideoRepository) AssignGameplay(ctx context.Context, jobID, gameplayID string) error {
	query := `UPDATE video_jobs SET gameplay_id = $1, updated_at = NOW() WHERE id = $2`
	return r.execOne(ctx, jobID, query, gameplayID, jobID)
}

func (r *PostgresVideoRepository) execOne(ctx context.Context, jobID, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update video job %s: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update video job %s: %w", jobID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: video job %s", domain.ErrNotFound, jobID)
	}
	return nil
}

func (r *PostgresVideoRepository) FindByID(ctx context.Context, jobID string) (*domain.VideoJob, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+videoJobColumns+` FROM video_jobs WHERE id = $1`, jobID)
	job, err := scanVideoJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: video job %s", domain.ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("query video job %s: %w", jobID, err)
	}
	return job, nil
}

func (r *PostgresVideoRepository) FindByUserID(ctx context.Context, userID string) ([]domain.VideoJob, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+videoJobColumns+` FROM video_jobs WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query video jobs: %w", err)
	}
	defer rows.Close()

	jobs := []domain.VideoJob{}
	for rows.Next() {
		job, err := scanVideoJob(rows)
		if err != nil {
			r.Logger.Warn("Error scanning video job row", zap.String("userID", userID), zap.Error(err))
			continue
		}
		jobs = append(jobs, *job)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over video jobs: %w", err)
	}
	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideoJob(row rowScanner) (*domain.VideoJob, error) {
	var j domain.VideoJob
	err := row.Scan(
		&j.ID, &j.UserID, &j.ConfigID,
		&j.Reference.Kind, &j.Reference.ID, &j.Reference.URL,
		&j.Caption, &j.GameplayID, &j.Status, &j.ErrorMessage,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Reference.Title = j.Caption
	return &j, nil
}
