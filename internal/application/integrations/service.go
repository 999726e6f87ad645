package integrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/depscan-io/depscan/internal/application"
	domain "github.com/depscan-io/depscan/internal/domain/integrations"
)

// ErrUpstream marks failures talking to the external CI/CD system, mapped to
// 502 by the HTTP layer.
var ErrUpstream = errors.New("upstream CI/CD request failed")

// Service manages CI/CD integrations and pipeline triggers.
type Service struct {
	Repo   domain.Repository
	Client domain.PipelineClient
	Clock  application.Clock
}

type CreateCommand struct {
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Config map[string]string `json:"config"`
}

func (s *Service) Create(ctx context.Context, userID int64, cmd CreateCommand) (*domain.Integration, error) {
	typ := strings.ToLower(cmd.Type)
	if !domain.ValidType(typ) {
		return nil, fmt.Errorf("unknown integration type: %s", cmd.Type)
	}
	if cmd.Name == "" {
		return nil, fmt.Errorf("integration name is required")
	}

	i := &domain.Integration{
		UserID:       userID,
		Name:         cmd.Name,
		Type:         domain.Type(typ),
		WebhookToken: newWebhookToken(),
		IsActive:     true,
		CreatedAt:    s.Clock.Now(),
	}
	i.SetConfig(cmd.Config)
	if err := s.Repo.Create(ctx, i); err != nil {
		return nil, err
	}
	return i, nil
}

func (s *Service) List(ctx context.Context, userID int64) ([]*domain.Integration, error) {
	return s.Repo.ListByUser(ctx, userID)
}

func (s *Service) Get(ctx context.Context, userID, id int64) (*domain.Integration, error) {
	return s.Repo.Get(ctx, userID, id)
}

func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	return s.Repo.Delete(ctx, userID, id)
}

// Trigger starts a pipeline run on the external system.
func (s *Service) Trigger(ctx context.Context, userID, id int64, params domain.TriggerParams) (map[string]any, error) {
	i, err := s.Repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	out, err := s.Client.Trigger(ctx, i, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if err := s.Repo.TouchLastUsed(ctx, i.ID, s.Clock.Now()); err != nil {
		log.Printf("integration %d: touch last used: %v", i.ID, err)
	}
	return out, nil
}

// ListResources enumerates the pipelines or jobs visible to the integration.
func (s *Service) ListResources(ctx context.Context, userID, id int64) ([]map[string]any, error) {
	i, err := s.Repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	out, err := s.Client.ListResources(ctx, i)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return out, nil
}

// ResolveWebhook looks up an active integration by its webhook token and
// marks it used. Unknown or inactive tokens return sql.ErrNoRows.
func (s *Service) ResolveWebhook(ctx context.Context, token string) (*domain.Integration, error) {
	if token == "" {
		return nil, sql.ErrNoRows
	}
	i, err := s.Repo.ByWebhookToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !i.IsActive {
		return nil, sql.ErrNoRows
	}
	if err := s.Repo.TouchLastUsed(ctx, i.ID, s.Clock.Now()); err != nil {
		log.Printf("integration %d: touch last used: %v", i.ID, err)
	}
	return i, nil
}

func newWebhookToken() string {
	// Two UUIDs back to back, dashes removed. Long enough to be unguessable
	// while staying URL-safe.
	return strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
}
