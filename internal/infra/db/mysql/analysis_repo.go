package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	domain "github.com/depscan-io/depscan/internal/domain/analyses"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Save inserts an analysis record
func (r *AnalysisRepository) Save(ctx context.Context, a *domain.Analysis) error {
	result := a.Result
	if strings.TrimSpace(result) == "" {
		// result_json column should hold valid JSON; use empty object
		result = "{}"
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO scan_analyses (id, user_id, scan_id, result_json, created_at)
VALUES (?,?,?,?,?);`,
		a.ID, a.UserID, a.ScanID, result, createdAt,
	)
	return err
}

// ListByScan returns analysis runs for a scan, newest first
func (r *AnalysisRepository) ListByScan(ctx context.Context, userID int64, scanID string, limit int) ([]*domain.Analysis, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, scan_id, result_json, created_at
FROM scan_analyses
WHERE user_id=? AND scan_id=?
ORDER BY created_at DESC, id DESC
LIMIT ?;`, userID, scanID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Analysis
	for rows.Next() {
		var a domain.Analysis
		if err := rows.Scan(&a.ID, &a.UserID, &a.ScanID, &a.Result, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
