package mysql

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/depscan-io/depscan/internal/domain/scans"
)

type ScanRepository struct {
	db *sql.DB
}

func NewScanRepository(db *sql.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

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
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 status=VALUES(status), error_message=VALUES(error_message),
 critical=VALUES(critical), high=VALUES(high), medium=VALUES(medium), low=VALUES(low),
 findings_total=VALUES(findings_total),
 report_url=VALUES(report_url), completed_at=VALUES(completed_at);
`
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

// Get by ID + owner
func (r *ScanRepository) Get(ctx context.Context, userID int64, id domain.ScanID) (*domain.Scan, error) {
	const q = `SELECT ` + scanColumns + ` FROM scans WHERE user_id=? AND id=? LIMIT 1;`
	return scanRow(r.db.QueryRowContext(ctx, q, userID, id))
}

// List scans per owner, newest first
func (r *ScanRepository) List(ctx context.Context, userID int64, offset, limit int) ([]*domain.Scan, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const q = `SELECT ` + scanColumns + ` FROM scans
WHERE user_id=? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?;`
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

// Delete removes a scan row (vulnerabilities are deleted by the service).
func (r *ScanRepository) Delete(ctx context.Context, userID int64, id domain.ScanID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scans WHERE user_id=? AND id=?;`, userID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Summary counts scan results since N days
func (r *ScanRepository) Summary(ctx context.Context, userID int64, sinceDays int) (int, int, int, int, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	cut := time.Now().AddDate(0, 0, -sinceDays)

	const q = `
SELECT COUNT(*) AS total_scans,
       COUNT(CASE WHEN status=? THEN 1 END) AS completed,
       COUNT(CASE WHEN status=? THEN 1 END) AS failed,
       COALESCE(SUM(findings_total),0)      AS findings
FROM scans
WHERE user_id=? AND created_at >= ?;
`
	var total, completed, failed, findings int
	if err := r.db.QueryRowContext(ctx, q,
		domain.StatusCompleted, domain.StatusFailed, userID, cut,
	).Scan(&total, &completed, &failed, &findings); err != nil {
		return 0, 0, 0, 0, err
	}
	return total, completed, failed, findings, nil
}

// MarkRunning moves pending -> running. The WHERE clause enforces the
// monotonic transition: a terminal row is never revived.
func (r *ScanRepository) MarkRunning(ctx context.Context, id domain.ScanID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scans SET status=? WHERE id=? AND status=?;`,
		domain.StatusRunning, id, domain.StatusPending,
	)
	return err
}

// MarkCompleted finishes a running scan with its results.
func (r *ScanRepository) MarkCompleted(ctx context.Context, id domain.ScanID, reportURL string, counts domain.SeverityCounts, at time.Time) error {
	const q = `
UPDATE scans
SET status=?, report_url=?,
    critical=?, high=?, medium=?, low=?, findings_total=?,
    completed_at=?
WHERE id=? AND status=?;`
	_, err := r.db.ExecContext(ctx, q,
		domain.StatusCompleted, nullStr(reportURL),
		counts.Critical, counts.High, counts.Medium, counts.Low, counts.Total,
		at, id, domain.StatusRunning,
	)
	return err
}

// MarkFailed records the failure message on a non-terminal scan.
func (r *ScanRepository) MarkFailed(ctx context.Context, id domain.ScanID, errMsg string, at time.Time) error {
	const q = `
UPDATE scans
SET status=?, error_message=?, completed_at=?
WHERE id=? AND status IN (?,?);`
	_, err := r.db.ExecContext(ctx, q,
		domain.StatusFailed, nullStr(errMsg), at,
		id, domain.StatusPending, domain.StatusRunning,
	)
	return err
}
