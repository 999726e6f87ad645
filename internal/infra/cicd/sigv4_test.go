package cicd

import (
	"bytes"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSignedRequest(t *testing.T, now time.Time) *http.Request {
	t.Helper()
	payload := []byte(`{"name":"demo-pipeline"}`)
	req, err := http.NewRequest(http.MethodPost, "https://codepipeline.us-east-1.amazonaws.com/", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", "CodePipeline_20150709.StartPipelineExecution")

	err = signV4(req, payload, "codepipeline", "us-east-1", "AKIDEXAMPLE", "secret", now)
	require.NoError(t, err)
	return req
}

func TestSignV4HeaderShape(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	req := newSignedRequest(t, now)

	assert.Equal(t, "20240501T120000Z", req.Header.Get("X-Amz-Date"))

	auth := req.Header.Get("Authorization")
	assert.Contains(t, auth, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20240501/us-east-1/codepipeline/aws4_request")
	assert.Contains(t, auth, "SignedHeaders=")
	assert.Contains(t, auth, "content-type")
	assert.Contains(t, auth, "x-amz-date")
	assert.Contains(t, auth, "x-amz-target")
	assert.Regexp(t, `Signature=[0-9a-f]{64}$`, auth)
}

func TestSignV4Deterministic(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a := newSignedRequest(t, now).Header.Get("Authorization")
	b := newSignedRequest(t, now).Header.Get("Authorization")
	assert.Equal(t, a, b)

	// different signing time yields a different signature
	c := newSignedRequest(t, now.Add(time.Hour)).Header.Get("Authorization")
	assert.NotEqual(t, a, c)
}

func TestSignV4RequiresCredentials(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "https://codepipeline.us-east-1.amazonaws.com/", nil)
	require.NoError(t, err)
	err = signV4(req, nil, "codepipeline", "us-east-1", "", "", time.Now())
	assert.Error(t, err)
}
