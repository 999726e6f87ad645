package postgres

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/depscan-io/depscan/internal/domain/integrations"
)

type IntegrationRepository struct{ db *sql.DB }

func NewIntegrationRepository(db *sql.DB) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

const integrationColumns = `id, user_id, name, type, config_json, webhook_token, is_active, created_at, last_used_at`

func (r *IntegrationRepository) Create(ctx context.Context, i *domain.Integration) error {
	created := i.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	cfg := i.Config
	if cfg == "" {
		cfg = "{}"
	}
	err := r.db.QueryRowContext(ctx, `
INSERT INTO integrations (user_id, name, type, config_json, webhook_token, is_active, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id;`,
		i.UserID, i.Name, i.Type, cfg, i.WebhookToken, i.IsActive, created,
	).Scan(&i.ID)
	if err != nil {
		return err
	}
	i.CreatedAt = created
	return nil
}

func integrationRow(row interface{ Scan(...any) error }) (*domain.Integration, error) {
	var i domain.Integration
	var lastUsed sql.NullTime
	if err := row.Scan(&i.ID, &i.UserID, &i.Name, &i.Type, &i.Config,
		&i.WebhookToken, &i.IsActive, &i.CreatedAt, &lastUsed); err != nil {
		return nil, err
	}
	i.LastUsedAt = timePtr(lastUsed)
	return &i, nil
}

func (r *IntegrationRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Integration, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+integrationColumns+` FROM integrations WHERE user_id=$1 ORDER BY created_at DESC;`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Integration
	for rows.Next() {
		i, err := integrationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (r *IntegrationRepository) Get(ctx context.Context, userID, id int64) (*domain.Integration, error) {
	return integrationRow(r.db.QueryRowContext(ctx,
		`SELECT `+integrationColumns+` FROM integrations WHERE user_id=$1 AND id=$2 LIMIT 1;`, userID, id))
}

func (r *IntegrationRepository) Delete(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM integrations WHERE user_id=$1 AND id=$2;`, userID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *IntegrationRepository) ByWebhookToken(ctx context.Context, token string) (*domain.Integration, error) {
	return integrationRow(r.db.QueryRowContext(ctx,
		`SELECT `+integrationColumns+` FROM integrations WHERE webhook_token=$1 AND is_active=TRUE LIMIT 1;`, token))
}

func (r *IntegrationRepository) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE integrations SET last_used_at=$1 WHERE id=$2;`, at, id)
	return err
}
