package cicd

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/depscan-io/depscan/internal/domain/integrations"
)

func testClient(srv *httptest.Server) *Client {
	return &Client{http: srv.Client()}
}

func newIntegration(t *testing.T, typ domain.Type, cfg map[string]string) *domain.Integration {
	t.Helper()
	i := &domain.Integration{Type: typ}
	i.SetConfig(cfg)
	return i
}

func TestTriggerJenkinsJob(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Location", "http://jenkins/queue/item/77/")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := testClient(srv)
	i := newIntegration(t, domain.TypeJenkins, map[string]string{
		"url": srv.URL, "username": "ci", "token": "t0ken", "default_job": "build-app",
	})

	out, err := c.Trigger(context.Background(), i, domain.TriggerParams{})
	require.NoError(t, err)

	assert.Equal(t, "/job/build-app/build", gotPath)
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("ci:t0ken"))
	assert.Equal(t, want, gotAuth)
	assert.Equal(t, "triggered", out["status"])
	assert.Equal(t, "http://jenkins/queue/item/77/", out["queue_url"])
}

func TestTriggerJenkinsJobUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := testClient(srv)
	i := newIntegration(t, domain.TypeJenkins, map[string]string{
		"url": srv.URL, "username": "ci", "token": "bad", "default_job": "build-app",
	})

	_, err := c.Trigger(context.Background(), i, domain.TriggerParams{})
	assert.Error(t, err)
}

func TestListJenkinsJobs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jobs":[{"name":"build-app","color":"blue"},{"name":"deploy","color":"red"}]}`))
	}))
	defer srv.Close()

	c := testClient(srv)
	i := newIntegration(t, domain.TypeJenkins, map[string]string{
		"url": srv.URL, "username": "ci", "token": "t0ken",
	})

	jobs, err := c.ListResources(context.Background(), i)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "build-app", jobs[0]["name"])
}

func TestTriggerAzurePipeline(t *testing.T) {
	var gotPath, gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":123,"state":"inProgress"}`))
	}))
	defer srv.Close()

	c := testClient(srv)
	i := newIntegration(t, domain.TypeAzure, map[string]string{
		"org_url": srv.URL, "project": "web", "pipeline_id": "9", "pat": "pat123",
	})

	out, err := c.Trigger(context.Background(), i, domain.TriggerParams{})
	require.NoError(t, err)

	assert.Equal(t, "/web/_apis/pipelines/9/runs", gotPath)
	assert.Equal(t, "api-version=7.1", gotQuery)
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte(":pat123"))
	assert.Equal(t, want, gotAuth)
	assert.Equal(t, "inProgress", out["state"])
}

func TestTriggerParamsOverrideConfig(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := testClient(srv)
	i := newIntegration(t, domain.TypeAzure, map[string]string{
		"org_url": srv.URL, "project": "web", "pipeline_id": "9", "pat": "pat123",
	})

	_, err := c.Trigger(context.Background(), i, domain.TriggerParams{Project: "mobile", PipelineID: "4"})
	require.NoError(t, err)
	assert.Equal(t, "/mobile/_apis/pipelines/4/runs", gotPath)
}

func TestTriggerUnknownType(t *testing.T) {
	c := NewClient()
	_, err := c.Trigger(context.Background(), &domain.Integration{Type: domain.Type("circleci")}, domain.TriggerParams{})
	assert.Error(t, err)
}

func TestStartPipelineExecutionRequiresName(t *testing.T) {
	c := NewClient()
	i := newIntegration(t, domain.TypeAWS, map[string]string{
		"region": "us-east-1", "access_key_id": "k", "secret_access_key": "s",
	})
	_, err := c.Trigger(context.Background(), i, domain.TriggerParams{})
	assert.ErrorContains(t, err, "pipeline name")
}
