package cicd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	domain "github.com/depscan-io/depscan/internal/domain/integrations"
)

// Client implements the PipelineClient port, dispatching on integration type.
type Client struct {
	http *http.Client
}

func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *Client) Trigger(ctx context.Context, i *domain.Integration, params domain.TriggerParams) (map[string]any, error) {
	cfg := i.DecodeConfig()
	switch i.Type {
	case domain.TypeAzure:
		return c.triggerAzurePipeline(ctx,
			cfg["org_url"],
			orDefault(params.Project, cfg["project"]),
			orDefault(params.PipelineID, cfg["pipeline_id"]),
			cfg["pat"],
		)
	case domain.TypeJenkins:
		return c.triggerJenkinsJob(ctx,
			cfg["url"],
			orDefault(params.JobName, cfg["default_job"]),
			cfg["username"], cfg["token"],
		)
	case domain.TypeAWS:
		return c.startPipelineExecution(ctx,
			orDefault(params.PipelineName, cfg["pipeline_name"]),
			orDefault(params.Region, orDefault(cfg["region"], "us-east-1")),
			cfg["access_key_id"], cfg["secret_access_key"],
		)
	}
	return nil, fmt.Errorf("unknown integration type: %s", i.Type)
}

func (c *Client) ListResources(ctx context.Context, i *domain.Integration) ([]map[string]any, error) {
	cfg := i.DecodeConfig()
	switch i.Type {
	case domain.TypeAzure:
		return c.listAzurePipelines(ctx, cfg["org_url"], cfg["project"], cfg["pat"])
	case domain.TypeJenkins:
		return c.listJenkinsJobs(ctx, cfg["url"], cfg["username"], cfg["token"])
	case domain.TypeAWS:
		return c.listPipelines(ctx,
			orDefault(cfg["region"], "us-east-1"),
			cfg["access_key_id"], cfg["secret_access_key"],
		)
	}
	return nil, fmt.Errorf("unknown integration type: %s", i.Type)
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
