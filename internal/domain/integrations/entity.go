package integrations

import (
	"encoding/json"
	"time"
)

// Type enum for supported CI/CD systems
type Type string

const (
	TypeAzure   Type = "azure"
	TypeJenkins Type = "jenkins"
	TypeAWS     Type = "aws"
)

// ValidType reports whether the integration type is supported.
func ValidType(t string) bool {
	switch Type(t) {
	case TypeAzure, TypeJenkins, TypeAWS:
		return true
	}
	return false
}

// Integration is a stored CI/CD trigger configuration.
type Integration struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	Name         string     `json:"name"`
	Type         Type       `json:"type"`
	Config       string     `json:"-"` // JSON string, secrets included
	WebhookToken string     `json:"webhook_token"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

// DecodeConfig unpacks the stored JSON config.
func (i *Integration) DecodeConfig() map[string]string {
	out := map[string]string{}
	if i.Config != "" {
		_ = json.Unmarshal([]byte(i.Config), &out)
	}
	return out
}

// SetConfig stores the config map as JSON.
func (i *Integration) SetConfig(cfg map[string]string) {
	b, _ := json.Marshal(cfg)
	i.Config = string(b)
}

var secretKeys = map[string]bool{
	"pat":               true,
	"token":             true,
	"password":          true,
	"secret_access_key": true,
}

// MaskedConfig returns the config with secret values replaced, safe to return
// to API clients.
func (i *Integration) MaskedConfig() map[string]string {
	cfg := i.DecodeConfig()
	for k := range cfg {
		if secretKeys[k] {
			cfg[k] = "***"
		}
	}
	return cfg
}

// TriggerParams are per-request overrides for a pipeline trigger. Empty fields
// fall back to the stored config.
type TriggerParams struct {
	// Azure
	Project    string `json:"project,omitempty"`
	PipelineID string `json:"pipeline_id,omitempty"`
	// Jenkins
	JobName string `json:"job_name,omitempty"`
	// AWS
	PipelineName string `json:"pipeline_name,omitempty"`
	Region       string `json:"region,omitempty"`
}

// WebhookPayload is what CI/CD systems POST to the webhook endpoint.
type WebhookPayload struct {
	Source      string         `json:"source"`
	ProjectName string         `json:"project_name"`
	ArtifactURL string         `json:"artifact_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
