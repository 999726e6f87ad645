package cicd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// AWS CodePipeline via the JSON 1.1 protocol. Requests are POSTs against the
// regional endpoint with an X-Amz-Target header naming the operation, signed
// with SigV4.

const codePipelineTargetPrefix = "CodePipeline_20150709."

func (c *Client) callCodePipeline(ctx context.Context, region, accessKeyID, secretAccessKey, operation string, body map[string]any) (map[string]any, error) {
	endpoint := fmt.Sprintf("https://codepipeline.%s.amazonaws.com/", region)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", codePipelineTargetPrefix+operation)

	if err := signV4(req, payload, "codepipeline", region, accessKeyID, secretAccessKey, time.Now().UTC()); err != nil {
		return nil, err
	}

	return c.doJSON(req)
}

func (c *Client) startPipelineExecution(ctx context.Context, pipelineName, region, accessKeyID, secretAccessKey string) (map[string]any, error) {
	if pipelineName == "" {
		return nil, fmt.Errorf("pipeline name is required")
	}
	return c.callCodePipeline(ctx, region, accessKeyID, secretAccessKey,
		"StartPipelineExecution", map[string]any{"name": pipelineName})
}

func (c *Client) listPipelines(ctx context.Context, region, accessKeyID, secretAccessKey string) ([]map[string]any, error) {
	data, err := c.callCodePipeline(ctx, region, accessKeyID, secretAccessKey,
		"ListPipelines", map[string]any{})
	if err != nil {
		return nil, err
	}
	return extractList(data, "pipelines"), nil
}
