package httpserver

import (
	"bytes"
	"context"
	"database/sql"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depscan-io/depscan/internal/application"
	appauth "github.com/depscan-io/depscan/internal/application/auth"
	appintegrations "github.com/depscan-io/depscan/internal/application/integrations"
	appscans "github.com/depscan-io/depscan/internal/application/scans"
	domintegrations "github.com/depscan-io/depscan/internal/domain/integrations"
)

var testJWTSecret = []byte("0123456789abcdef0123456789abcdef")

// fakeIntegrationRepo knows no integrations at all.
type fakeIntegrationRepo struct{}

func (fakeIntegrationRepo) Create(ctx context.Context, i *domintegrations.Integration) error {
	return nil
}
func (fakeIntegrationRepo) ListByUser(ctx context.Context, userID int64) ([]*domintegrations.Integration, error) {
	return nil, nil
}
func (fakeIntegrationRepo) Get(ctx context.Context, userID, id int64) (*domintegrations.Integration, error) {
	return nil, sql.ErrNoRows
}
func (fakeIntegrationRepo) Delete(ctx context.Context, userID, id int64) error {
	return sql.ErrNoRows
}
func (fakeIntegrationRepo) ByWebhookToken(ctx context.Context, token string) (*domintegrations.Integration, error) {
	return nil, sql.ErrNoRows
}
func (fakeIntegrationRepo) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	return nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	clock := application.SystemClock{}
	dir := t.TempDir()

	scansSvc := appscans.NewService(nil, nil, nil, nil, clock, dir, dir, 1<<20, 1)
	authSvc := &appauth.Service{JWTSecret: testJWTSecret, TokenTTL: time.Hour, Clock: clock}
	integrationsSvc := &appintegrations.Service{Repo: fakeIntegrationRepo{}, Clock: clock}

	return NewRouter(authSvc, scansSvc, nil, integrationsSvc, testJWTSecret, 1<<20, Options{
		AllowedOrigins: []string{"*"},
	})
}

func bearerToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"usr": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testJWTSecret)
	require.NoError(t, err)
	return token
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestRouter(t)

	for _, path := range []string{"/health", "/ready", "/live"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	h := newTestRouter(t)

	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/scans/"},
		{"POST", "/api/scans/upload"},
		{"GET", "/api/auth/profile"},
		{"GET", "/api/integrations/"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	h := newTestRouter(t)

	body := `{"username":"x","email":"not-an-email","password":"longenough"}`
	req := httptest.NewRequest("POST", "/api/auth/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookUnknownToken(t *testing.T) {
	h := newTestRouter(t)

	body := `{"artifact_url":"https://ci.example.com/app.jar"}`
	req := httptest.NewRequest("POST", "/api/integrations/webhook/deadbeef", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUploadUnsupportedExtension(t *testing.T) {
	h := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "malware.exe")
	require.NoError(t, err)
	fw.Write([]byte("MZ"))
	mw.Close()

	req := httptest.NewRequest("POST", "/api/scans/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+bearerToken(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported")
}

func TestScanIDValidation(t *testing.T) {
	h := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/scans/not-a-uuid", nil)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIntegrationNotFound(t *testing.T) {
	h := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/integrations/123", nil)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateIntegrationRejectsUnknownType(t *testing.T) {
	h := newTestRouter(t)

	body := `{"name":"ci","type":"circleci","config":{}}`
	req := httptest.NewRequest("POST", "/api/integrations/", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+bearerToken(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
