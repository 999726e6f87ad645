package cicd

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Azure DevOps pipeline REST API, api-version 7.1. Auth is Basic with an
// empty username and the PAT as password.

func azureAuthHeader(pat string) string {
	token := base64.StdEncoding.EncodeToString([]byte(":" + pat))
	return "Basic " + token
}

func (c *Client) triggerAzurePipeline(ctx context.Context, orgURL, project, pipelineID, pat string) (map[string]any, error) {
	url := fmt.Sprintf("%s/%s/_apis/pipelines/%s/runs?api-version=7.1",
		strings.TrimRight(orgURL, "/"), project, pipelineID)

	body := map[string]any{
		"resources": map[string]any{
			"repositories": map[string]any{
				"self": map[string]any{"refName": "refs/heads/main"},
			},
		},
	}
	payload, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", azureAuthHeader(pat))
	req.Header.Set("Content-Type", "application/json")

	return c.doJSON(req)
}

func (c *Client) listAzurePipelines(ctx context.Context, orgURL, project, pat string) ([]map[string]any, error) {
	url := fmt.Sprintf("%s/%s/_apis/pipelines?api-version=7.1",
		strings.TrimRight(orgURL, "/"), project)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", azureAuthHeader(pat))

	data, err := c.doJSON(req)
	if err != nil {
		return nil, err
	}
	return extractList(data, "value"), nil
}

// doJSON executes the request and decodes a JSON object response, returning a
// descriptive error on non-2xx status.
func (c *Client) doJSON(req *http.Request) (map[string]any, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: status %d", req.Method, req.URL.Host, resp.StatusCode)
	}

	out := map[string]any{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return out, nil
}

func extractList(data map[string]any, key string) []map[string]any {
	raw, ok := data[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
