package cicd

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Jenkins remote API. Build triggers return 201 with a queue item Location
// header and an empty body.

func (c *Client) triggerJenkinsJob(ctx context.Context, jenkinsURL, jobName, username, token string) (map[string]any, error) {
	url := fmt.Sprintf("%s/job/%s/build", strings.TrimRight(jenkinsURL, "/"), jobName)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(username, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("jenkins build trigger: status %d", resp.StatusCode)
	}

	return map[string]any{
		"status":    "triggered",
		"job":       jobName,
		"queue_url": resp.Header.Get("Location"),
	}, nil
}

func (c *Client) listJenkinsJobs(ctx context.Context, jenkinsURL, username, token string) ([]map[string]any, error) {
	url := strings.TrimRight(jenkinsURL, "/") + "/api/json?tree=jobs[name,url,color]"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(username, token)

	data, err := c.doJSON(req)
	if err != nil {
		return nil, err
	}
	return extractList(data, "jobs"), nil
}
