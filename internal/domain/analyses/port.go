package analyses

import "context"

// Repository port for persisting and querying AI analysis runs
type Repository interface {
	Save(ctx context.Context, a *Analysis) error
	ListByScan(ctx context.Context, userID int64, scanID string, limit int) ([]*Analysis, error)
}
