package vulns

import "context"

// AIVerdict carries the per-row result of an AI analysis run.
type AIVerdict struct {
	IsFalsePositive *bool
	Confidence      *float64
	Reasoning       string
	Analysis        string
}

// Repository port for vulnerability rows
type Repository interface {
	BulkInsert(ctx context.Context, rows []*Vulnerability) error
	ListByScan(ctx context.Context, scanID string) ([]*Vulnerability, error)
	GetByIDs(ctx context.Context, scanID string, ids []int64) ([]*Vulnerability, error)
	Get(ctx context.Context, scanID string, id int64) (*Vulnerability, error)
	UpdateAI(ctx context.Context, id int64, verdict AIVerdict) error
	SetSuppressed(ctx context.Context, id int64, suppressed bool) error
	DeleteByScan(ctx context.Context, scanID string) error
}
