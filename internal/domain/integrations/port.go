package integrations

import (
	"context"
	"time"
)

// Repository port for integration persistence
type Repository interface {
	Create(ctx context.Context, i *Integration) error
	ListByUser(ctx context.Context, userID int64) ([]*Integration, error)
	Get(ctx context.Context, userID, id int64) (*Integration, error)
	Delete(ctx context.Context, userID, id int64) error
	ByWebhookToken(ctx context.Context, token string) (*Integration, error)
	TouchLastUsed(ctx context.Context, id int64, at time.Time) error
}

// PipelineClient port: triggers and inspects a remote CI/CD system.
type PipelineClient interface {
	Trigger(ctx context.Context, i *Integration, params TriggerParams) (map[string]any, error)
	ListResources(ctx context.Context, i *Integration) ([]map[string]any, error)
}
