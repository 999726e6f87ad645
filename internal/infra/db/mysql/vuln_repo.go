package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	domain "github.com/depscan-io/depscan/internal/domain/vulns"
)

const vulnBatchSize = 100

type VulnRepository struct {
	db *sql.DB
}

func NewVulnRepository(db *sql.DB) *VulnRepository {
	return &VulnRepository{db: db}
}

const vulnColumns = `id, scan_id, dependency_name, dependency_version, dependency_file,
       cve_id, severity, cvss_v2, cvss_v3, description, refs_json, cwe_ids,
       ai_analysis, ai_is_false_positive, ai_confidence, ai_reasoning,
       is_suppressed, created_at`

// BulkInsert writes findings in multi-value batches; large reports can carry
// thousands of rows.
func (r *VulnRepository) BulkInsert(ctx context.Context, rows []*domain.Vulnerability) error {
	for start := 0; start < len(rows); start += vulnBatchSize {
		end := start + vulnBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		var sb strings.Builder
		sb.WriteString(`INSERT INTO vulnerabilities
(scan_id, dependency_name, dependency_version, dependency_file,
 cve_id, severity, cvss_v2, cvss_v3, description, refs_json, cwe_ids,
 is_suppressed, created_at) VALUES `)

		args := make([]any, 0, len(chunk)*13)
		for i, v := range chunk {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?,?,?,?,?,?,?,?,?,?,?,?,?)")
			created := v.CreatedAt
			if created.IsZero() {
				created = time.Now()
			}
			args = append(args,
				v.ScanID, v.DependencyName, nullStr(v.DependencyVersion), nullStr(v.DependencyFile),
				v.CVEID, v.Severity, nullFloat(v.CVSSv2), nullFloat(v.CVSSv3),
				v.Description, nullStr(v.References), nullStr(v.CWEIDs),
				v.IsSuppressed, created,
			)
		}
		if _, err := r.db.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("bulk insert vulnerabilities: %w", err)
		}
	}
	return nil
}

func vulnRow(row interface{ Scan(...any) error }) (*domain.Vulnerability, error) {
	var v domain.Vulnerability
	var depVer, depFile, refs, cwes, aiAnalysis, aiReasoning sql.NullString
	var cvss2, cvss3, aiConf sql.NullFloat64
	var aiFP sql.NullBool
	if err := row.Scan(
		&v.ID, &v.ScanID, &v.DependencyName, &depVer, &depFile,
		&v.CVEID, &v.Severity, &cvss2, &cvss3, &v.Description, &refs, &cwes,
		&aiAnalysis, &aiFP, &aiConf, &aiReasoning,
		&v.IsSuppressed, &v.CreatedAt,
	); err != nil {
		return nil, err
	}
	v.DependencyVersion = strOrEmpty(depVer)
	v.DependencyFile = strOrEmpty(depFile)
	v.References = strOrEmpty(refs)
	v.CWEIDs = strOrEmpty(cwes)
	v.AIAnalysis = strOrEmpty(aiAnalysis)
	v.AIReasoning = strOrEmpty(aiReasoning)
	v.CVSSv2 = floatPtr(cvss2)
	v.CVSSv3 = floatPtr(cvss3)
	v.AIConfidence = floatPtr(aiConf)
	v.AIIsFalsePositive = boolPtr(aiFP)
	return &v, nil
}

func (r *VulnRepository) ListByScan(ctx context.Context, scanID string) ([]*domain.Vulnerability, error) {
	const q = `SELECT ` + vulnColumns + ` FROM vulnerabilities WHERE scan_id=? ORDER BY id;`
	return r.queryVulns(ctx, q, scanID)
}

func (r *VulnRepository) GetByIDs(ctx context.Context, scanID string, ids []int64) ([]*domain.Vulnerability, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	q := `SELECT ` + vulnColumns + ` FROM vulnerabilities
WHERE scan_id=? AND id IN (` + placeholders + `) ORDER BY id;`
	args := make([]any, 0, len(ids)+1)
	args = append(args, scanID)
	for _, id := range ids {
		args = append(args, id)
	}
	return r.queryVulns(ctx, q, args...)
}

func (r *VulnRepository) queryVulns(ctx context.Context, q string, args ...any) ([]*domain.Vulnerability, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Vulnerability
	for rows.Next() {
		v, err := vulnRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *VulnRepository) Get(ctx context.Context, scanID string, id int64) (*domain.Vulnerability, error) {
	const q = `SELECT ` + vulnColumns + ` FROM vulnerabilities WHERE scan_id=? AND id=? LIMIT 1;`
	return vulnRow(r.db.QueryRowContext(ctx, q, scanID, id))
}

func (r *VulnRepository) UpdateAI(ctx context.Context, id int64, verdict domain.AIVerdict) error {
	const q = `
UPDATE vulnerabilities
SET ai_analysis=?, ai_is_false_positive=?, ai_confidence=?, ai_reasoning=?
WHERE id=?;`
	_, err := r.db.ExecContext(ctx, q,
		nullStr(verdict.Analysis), nullBool(verdict.IsFalsePositive),
		nullFloat(verdict.Confidence), nullStr(verdict.Reasoning), id,
	)
	return err
}

func (r *VulnRepository) SetSuppressed(ctx context.Context, id int64, suppressed bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE vulnerabilities SET is_suppressed=? WHERE id=?;`, suppressed, id)
	return err
}

func (r *VulnRepository) DeleteByScan(ctx context.Context, scanID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM vulnerabilities WHERE scan_id=?;`, scanID)
	return err
}
