package postgres

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/depscan-io/depscan/internal/domain/scans"
)

type ScanRepository struct{ db *sql.DB }

func NewScanRepository(db *sql.DB) *ScanRepository { return &ScanRepository{db: db} }

const scanColumns = `id, user_id, filename, original_filename, status, error_message,
       critical, high, medium, low, findings_total,
       report_url, source, created_at, completed_at`

// Save insert/update Scan record
func (r *ScanRepository) Save(ctx context.Context, s *domain.Scan) error {
	const q = `
INSERT INTO scans
(id, user_id, filename, original_filename, status, error_message,
 critical, high, medium, low, findings_total,
 report_url, source, created_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO UPDATE SET
 status = EXCLUDED.status,
 error_message = EXCLUDED.error_message,
 critical = EXCLUDED.critical,
 high = EXCLUDED.high,
 medium = EXCLUDED.medium,
 low = EXCLUDED.low,
 findings_total = EXCLUDED.findings_total,
 report_url = EXCLUDED.report_url,
 completed_at = EXCLUDED.completed_at;`

	created := s.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		s.ID, s.UserID, s.Filename, s.OriginalFilename, s.Status, nullStr(s.ErrorMessage),
		s.Counts.Critical, s.Counts.High, s.Counts.Medium, s.Counts.Low, s.Counts.Total,
		nullStr(s.ReportURL), s.Source, created, nullTime(s.CompletedAt),
	)
	return err
}

func scanRow(row interface{ Scan(...any) error }) (*domain.Scan, error) {
	var s domain.Scan
	var errMsg, reportURL sql.NullString
	var completed sql.NullTime
	if err := row.Scan(
		&s.ID, &s.UserID, &s.Filename, &s.OriginalFilename, &s.Status, &errMsg,
		&s.Counts.Critical, &s.Counts.High, &s.Counts.Medium, &s.Counts.Low, &s.Counts.Total,
		&reportURL, &s.Source, &s.CreatedAt, &completed,
	); err != nil {
		return nil, err
	}
	s.ErrorMessage = strOrEmpty(errMsg)
	s.ReportURL = strOrEmpty(reportURL)
	s.CompletedAt = timePtr(completed)
	return &s, nil
}

func (r *ScanRepository) Get(ctx context.Context, userID int64, id domain.ScanID) (*domain.Scan, error) {
	const q = `SELECT ` + scanColumns + ` FROM scans WHERE user_id=$1 AND id=$2 LIMIT 1;`
	return scanRow(r.db.QueryRowContext(ctx, q, userID, id))
}

func (r *ScanRepository) List(ctx context.Context, userID int64, offset, limit int) ([]*domain.Scan, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const q = `SELECT ` + scanColumns + ` FROM scans
WHERE user_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3;`
	rows, err := r.db.QueryContext(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Scan
	for rows.Next() {
		s, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ScanRepository) Delete(ctx context.Context, userID int64, id domain.ScanID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scans WHERE user_id=$1 AND id=$2;`, userID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *ScanRepository) Summary(ctx context.Context, userID int64, sinceDays int) (int, int, int, int, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	cut := time.Now().AddDate(0, 0, -sinceDays)

	const q = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE status=$1),
       COUNT(*) FILTER (WHERE status=$2),
       COALESCE(SUM(findings_total),0)
FROM scans WHERE user_id=$3 AND created_at >= $4;`
	var total, completed, failed, findings int
	if err := r.db.QueryRowContext(ctx, q,
		domain.StatusCompleted, domain.StatusFailed, userID, cut,
	).Scan(&total, &completed, &failed, &findings); err != nil {
		return 0, 0, 0, 0, err
	}
	return total, completed, failed, findings, nil
}

func (r *ScanRepository) MarkRunning(ctx context.Context, id domain.ScanID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scans SET status=$1 WHERE id=$2 AND status=$3;`,
		domain.StatusRunning, id, domain.StatusPending,
	)
	return err
}

func (r *ScanRepository) MarkCompleted(ctx context.Context, id domain.ScanID, reportURL string, counts domain.SeverityCounts, at time.Time) error {
	const q = `
UPDATE scans
SET status=$1, report_url=$2,
    critical=$3, high=$4, medium=$5, low=$6, findings_total=$7,
    completed_at=$8
WHERE id=$9 AND status=$10;`
	_, err := r.db.ExecContext(ctx, q,
		domain.StatusCompleted, nullStr(reportURL),
		counts.Critical, counts.High, counts.Medium, counts.Low, counts.Total,
		at, id, domain.StatusRunning,
	)
	return err
}

func (r *ScanRepository) MarkFailed(ctx context.Context, id domain.ScanID, errMsg string, at time.Time) error {
	const q = `
UPDATE scans
SET status=$1, error_message=$2, completed_at=$3
WHERE id=$4 AND status IN ($5,$6);`
	_, err := r.db.ExecContext(ctx, q,
		domain.StatusFailed, nullStr(errMsg), at,
		id, domain.StatusPending, domain.StatusRunning,
	)
	return err
}
