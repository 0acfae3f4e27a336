// infrastructure/postgres_account_repository.go
package infrastructure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/domain"
)

const accountSelect = `SELECT u.id, u.email, COALESCE(u.ig_id, ''), COALESCE(u.ig_username, ''),
	COALESCE(u.default_config_id::text, ''), COALESCE(ca.account_token, '')
	FROM users u
	LEFT JOIN connected_accounts ca ON ca.user_id = u.id AND ca.platform = 'instagram'`

type PostgresAccountRepository struct {
	DB *sql.DB
}

func NewPostgresAccountRepository(db *sql.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{DB: db}
}

func (r *PostgresAccountRepository) FindByID(ctx context.Context, userID string) (*domain.Account, error) {
	return r.findOne(ctx, accountSelect+` WHERE u.id = $1 LIMIT 1`, userID)
}

func (r *PostgresAccountRepository) FindBySenderID(ctx context.Context, senderID string) (*domain.Account, error) {
	return r.findOne(ctx, accountSelect+` WHERE u.ig_id = $1 LIMIT 1`, senderID)
}

func (r *PostgresAccountRepository) findOne(ctx context.Context, query, key string) (*domain.Account, error) {
	var a domain.Account
	err := r.DB.QueryRowContext(ctx, query, key).Scan(
		&a.ID, &a.Email, &a.SenderID, &a.Username, &a.DefaultConfigID, &a.AccessToken,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", domain.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("query account %s: %w", key, err)
	}
	return &a, nil
}

func (r *PostgresAccountRepository) LinkSender(ctx context.Context, username, senderID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET ig_id = $1 WHERE ig_username = $2`, senderID, username)
	if err != nil {
		return false, fmt.Errorf("link sender %s: %w", senderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("link sender %s: %w", senderID, err)
	}
	return n > 0, nil
}

// PostgresConfigurationRepository reads editing templates and their gameplay
// pools. Rows that fail layout validation are skipped with a warning.
type PostgresConfigurationRepository struct {
	DB     *sql.DB
	Logger *zap.Logger
}

func NewPostgresConfigurationRepository(db *sql.DB, logger *zap.Logger) *PostgresConfigurationRepository {
	return &PostgresConfigurationRepository{DB: db, Logger: logger.Named("PostgresConfigurationRepository")}
}

const configurationSelect = `SELECT id, user_id, config_name, split_type, COALESCE(video_position, ''),
	original_video_percentage, COALESCE(edit_type, '') FROM video_configurations`

func (r *PostgresConfigurationRepository) FindByID(ctx context.Context, configID string) (*domain.Configuration, error) {
	row := r.DB.QueryRowContext(ctx, configurationSelect+` WHERE id = $1`, configID)
	cfg, err := scanConfiguration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: configuration %s", domain.ErrNotFound, configID)
	}
	if err != nil {
		return nil, fmt.Errorf("query configuration %s: %w", configID, err)
	}
	return cfg, nil
}

func (r *PostgresConfigurationRepository) ListByUser(ctx context.Context, userID string) ([]domain.Configuration, error) {
	rows, err := r.DB.QueryContext(ctx, configurationSelect+` WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("query configurations: %w", err)
	}
	defer rows.Close()

	var configs []domain.Configuration
	for rows.Next() {
		cfg, err := scanConfiguration(rows)
		if err != nil {
			r.Logger.Warn("Skipping configuration row", zap.String("userID", userID), zap.Error(err))
			continue
		}
		configs = append(configs, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate configurations: %w", err)
	}
	return configs, nil
}

func (r *PostgresConfigurationRepository) ListGameplays(ctx context.Context, configID string) ([]domain.Gameplay, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT g.id, g.title, g.category
		FROM config_gameplays cg JOIN gameplays g ON g.id = cg.gameplay_id
		WHERE cg.config_id = $1 ORDER BY g.id`, configID)
	if err != nil {
		return nil, fmt.Errorf("query gameplays: %w", err)
	}
	defer rows.Close()

	var gameplays []domain.Gameplay
	for rows.Next() {
		var g domain.Gameplay
		if err := rows.Scan(&g.ID, &g.Title, &g.Category); err != nil {
			return nil, fmt.Errorf("scan gameplay: %w", err)
		}
		gameplays = append(gameplays, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gameplays: %w", err)
	}
	return gameplays, nil
}

func scanConfiguration(row rowScanner) (*domain.Configuration, error) {
	var (
		cfg                       domain.Configuration
		split, position, editType string
		percentage                int
	)
	if err := row.Scan(&cfg.ID, &cfg.UserID, &cfg.Name, &split, &position, &percentage, &editType); err != nil {
		return nil, err
	}
	l, err := domain.NewLayout(split, position, percentage, editType)
	if err != nil {
		return nil, fmt.Errorf("configuration %s: %w", cfg.ID, err)
	}
	cfg.Layout = l
	return &cfg, nil
}
