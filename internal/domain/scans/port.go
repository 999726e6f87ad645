package scans

import (
	"context"
	"time"
)

// Repository port (interface untuk persistence)
type Repository interface {
	Save(ctx context.Context, s *Scan) error
	Get(ctx context.Context, userID int64, id ScanID) (*Scan, error)
	List(ctx context.Context, userID int64, offset, limit int) ([]*Scan, error)
	Delete(ctx context.Context, userID int64, id ScanID) error
	Summary(ctx context.Context, userID int64, sinceDays int) (int, int, int, int, error)

	// Status writes honor the monotonic transition rule at the SQL level:
	// the WHERE clause names the states the row may currently be in.
	MarkRunning(ctx context.Context, id ScanID) error
	MarkCompleted(ctx context.Context, id ScanID, reportURL string, counts SeverityCounts, at time.Time) error
	MarkFailed(ctx context.Context, id ScanID, errMsg string, at time.Time) error
}

// Runner port (interface untuk eksekusi scanner CLI)
type Runner interface {
	Run(ctx context.Context, req RunRequest) (RunResult, error)
}

// ArtifactStore port (interface untuk penyimpanan report)
type ArtifactStore interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
	UploadAndCleanup(ctx context.Context, localPath, key string) (string, error)
}
