package scans

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depscan-io/depscan/internal/application"
	domain "github.com/depscan-io/depscan/internal/domain/scans"
	"github.com/depscan-io/depscan/internal/domain/vulns"
)

const sampleReport = `{
  "dependencies": [
    {
      "fileName": "log4j-core-2.14.1.jar",
      "filePath": "/work/log4j-core-2.14.1.jar",
      "packages": [{"id": "pkg:maven/org.apache.logging.log4j/log4j-core@2.14.1"}],
      "vulnerabilities": [
        {"name": "CVE-2021-44228", "severity": "CRITICAL", "cvssv3": {"baseScore": 10.0}}
      ]
    }
  ]
}`

type fakeRepo struct {
	mu    sync.Mutex
	scans map[domain.ScanID]*domain.Scan
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{scans: make(map[domain.ScanID]*domain.Scan)}
}

func (r *fakeRepo) Save(ctx context.Context, s *domain.Scan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.scans[s.ID] = &cp
	return nil
}

func (r *fakeRepo) Get(ctx context.Context, userID int64, id domain.ScanID) (*domain.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok || s.UserID != userID {
		return nil, sql.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) List(ctx context.Context, userID int64, offset, limit int) ([]*domain.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Scan
	for _, s := range r.scans {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeRepo) Delete(ctx context.Context, userID int64, id domain.ScanID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok || s.UserID != userID {
		return sql.ErrNoRows
	}
	delete(r.scans, id)
	return nil
}

func (r *fakeRepo) Summary(ctx context.Context, userID int64, sinceDays int) (int, int, int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total, completed, failed, findings := 0, 0, 0, 0
	for _, s := range r.scans {
		if s.UserID != userID {
			continue
		}
		total++
		switch s.Status {
		case domain.StatusCompleted:
			completed++
			findings += s.Counts.Total
		case domain.StatusFailed:
			failed++
		}
	}
	return total, completed, failed, findings, nil
}

func (r *fakeRepo) MarkRunning(ctx context.Context, id domain.ScanID) error {
	return r.transition(id, domain.StatusRunning, func(s *domain.Scan) {})
}

func (r *fakeRepo) MarkCompleted(ctx context.Context, id domain.ScanID, reportURL string, counts domain.SeverityCounts, at time.Time) error {
	return r.transition(id, domain.StatusCompleted, func(s *domain.Scan) {
		s.ReportURL = reportURL
		s.Counts = counts
		s.CompletedAt = &at
	})
}

func (r *fakeRepo) MarkFailed(ctx context.Context, id domain.ScanID, errMsg string, at time.Time) error {
	return r.transition(id, domain.StatusFailed, func(s *domain.Scan) {
		s.ErrorMessage = errMsg
		s.CompletedAt = &at
	})
}

func (r *fakeRepo) transition(id domain.ScanID, to domain.Status, apply func(*domain.Scan)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok {
		return sql.ErrNoRows
	}
	if !s.Status.CanTransition(to) {
		return sql.ErrNoRows
	}
	s.Status = to
	apply(s)
	return nil
}

type fakeVulnRepo struct {
	mu   sync.Mutex
	rows []*vulns.Vulnerability
}

func (r *fakeVulnRepo) BulkInsert(ctx context.Context, rows []*vulns.Vulnerability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, rows...)
	return nil
}

func (r *fakeVulnRepo) ListByScan(ctx context.Context, scanID string) ([]*vulns.Vulnerability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*vulns.Vulnerability
	for _, v := range r.rows {
		if v.ScanID == scanID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *fakeVulnRepo) GetByIDs(ctx context.Context, scanID string, ids []int64) ([]*vulns.Vulnerability, error) {
	return r.ListByScan(ctx, scanID)
}

func (r *fakeVulnRepo) Get(ctx context.Context, scanID string, id int64) (*vulns.Vulnerability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.rows {
		if v.ScanID == scanID && v.ID == id {
			return v, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *fakeVulnRepo) UpdateAI(ctx context.Context, id int64, verdict vulns.AIVerdict) error {
	return nil
}

func (r *fakeVulnRepo) SetSuppressed(ctx context.Context, id int64, suppressed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.rows {
		if v.ID == id {
			v.IsSuppressed = suppressed
			return nil
		}
	}
	return sql.ErrNoRows
}

func (r *fakeVulnRepo) DeleteByScan(ctx context.Context, scanID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.rows[:0]
	for _, v := range r.rows {
		if v.ScanID != scanID {
			kept = append(kept, v)
		}
	}
	r.rows = kept
	return nil
}

// fakeRunner writes a canned report into OutDir.
type fakeRunner struct {
	report string
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, req domain.RunRequest) (domain.RunResult, error) {
	if f.err != nil {
		return domain.RunResult{}, f.err
	}
	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return domain.RunResult{}, err
	}
	path := filepath.Join(req.OutDir, "dependency-check-report.json")
	if err := os.WriteFile(path, []byte(f.report), 0o644); err != nil {
		return domain.RunResult{}, err
	}
	return domain.RunResult{ReportPath: path, ExitCode: 0, DurationMS: 5}, nil
}

type fakeStore struct {
	mu      sync.Mutex
	cleaned []string
}

func (f *fakeStore) Upload(ctx context.Context, localPath, key string) (string, error) {
	return "http://minio.local/" + key, nil
}

func (f *fakeStore) UploadAndCleanup(ctx context.Context, localPath, key string) (string, error) {
	f.mu.Lock()
	f.cleaned = append(f.cleaned, key)
	f.mu.Unlock()
	os.Remove(localPath)
	return "http://minio.local/" + key, nil
}

func newTestService(t *testing.T, runner domain.Runner) (*Service, *fakeRepo, *fakeVulnRepo) {
	t.Helper()
	repo := newFakeRepo()
	vrepo := &fakeVulnRepo{}
	base := t.TempDir()
	svc := NewService(repo, vrepo, runner, &fakeStore{}, application.SystemClock{},
		filepath.Join(base, "uploads"), filepath.Join(base, "reports"), 1<<20, 1)
	return svc, repo, vrepo
}

func waitTerminal(t *testing.T, repo *fakeRepo, userID int64, id domain.ScanID) *domain.Scan {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s, err := repo.Get(context.Background(), userID, id)
		require.NoError(t, err)
		if s.Status.Terminal() {
			return s
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("scan never reached a terminal status")
	return nil
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeRunner{report: sampleReport})
	_, err := svc.Upload(context.Background(), 1, "malware.exe", strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeRunner{report: sampleReport})
	_, err := svc.Upload(context.Background(), 1, "app.jar", strings.NewReader("x"), 10<<20)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestUploadRunsScanToCompletion(t *testing.T) {
	svc, repo, vrepo := newTestService(t, &fakeRunner{report: sampleReport})

	scan, err := svc.Upload(context.Background(), 1, "app.jar", strings.NewReader("jarbytes"), 8)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, scan.Status)
	assert.Equal(t, domain.SourceUpload, scan.Source)
	assert.True(t, strings.HasSuffix(scan.Filename, ".jar"))
	assert.NotContains(t, scan.Filename, "app") // client name never used on disk

	done := waitTerminal(t, repo, 1, scan.ID)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Equal(t, 1, done.Counts.Critical)
	assert.Equal(t, 1, done.Counts.Total)
	assert.Contains(t, done.ReportURL, string(scan.ID))
	require.NotNil(t, done.CompletedAt)

	rows, err := vrepo.ListByScan(context.Background(), string(scan.ID))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "CVE-2021-44228", rows[0].CVEID)

	// artifact archived to object storage, local copy removed
	store := svc.Artifacts.(*fakeStore)
	require.Len(t, store.cleaned, 1)
	assert.Contains(t, store.cleaned[0], "artifact")
	assert.NoFileExists(t, filepath.Join(svc.UploadsDir, done.Filename))
}

func TestUploadRunnerFailureMarksFailed(t *testing.T) {
	svc, repo, _ := newTestService(t, &fakeRunner{err: assert.AnError})

	scan, err := svc.Upload(context.Background(), 1, "app.war", strings.NewReader("x"), 1)
	require.NoError(t, err)

	done := waitTerminal(t, repo, 1, scan.ID)
	assert.Equal(t, domain.StatusFailed, done.Status)
	assert.NotEmpty(t, done.ErrorMessage)
}

func TestDeleteRemovesScanAndFindings(t *testing.T) {
	svc, repo, vrepo := newTestService(t, &fakeRunner{report: sampleReport})

	scan, err := svc.Upload(context.Background(), 1, "app.jar", strings.NewReader("x"), 1)
	require.NoError(t, err)
	waitTerminal(t, repo, 1, scan.ID)

	require.NoError(t, svc.Delete(context.Background(), 1, scan.ID))

	_, err = repo.Get(context.Background(), 1, scan.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	rows, err := vrepo.ListByScan(context.Background(), string(scan.ID))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestGetEnforcesOwnership(t *testing.T) {
	svc, repo, _ := newTestService(t, &fakeRunner{report: sampleReport})

	scan, err := svc.Upload(context.Background(), 1, "app.jar", strings.NewReader("x"), 1)
	require.NoError(t, err)
	waitTerminal(t, repo, 1, scan.ID)

	_, _, err = svc.Get(context.Background(), 99, scan.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestReadLogPendingPlaceholder(t *testing.T) {
	svc, repo, _ := newTestService(t, &fakeRunner{report: sampleReport})

	// seed a pending scan directly, no background processing
	scan := &domain.Scan{ID: "11111111-2222-3333-4444-555555555555", UserID: 1, Status: domain.StatusPending, CreatedAt: time.Now()}
	require.NoError(t, repo.Save(context.Background(), scan))

	text, err := svc.ReadLog(context.Background(), 1, scan.ID)
	require.NoError(t, err)
	assert.Contains(t, text, "pending")
}

func TestExportCSV(t *testing.T) {
	svc, repo, _ := newTestService(t, &fakeRunner{report: sampleReport})

	scan, err := svc.Upload(context.Background(), 1, "app.jar", strings.NewReader("x"), 1)
	require.NoError(t, err)
	waitTerminal(t, repo, 1, scan.ID)

	var sb strings.Builder
	require.NoError(t, svc.ExportCSV(context.Background(), 1, scan.ID, &sb))

	out := sb.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "cve_id")
	assert.Contains(t, lines[1], "CVE-2021-44228")
	assert.Contains(t, lines[1], "CRITICAL")
}

func TestIngestRemoteReturnsBeforeDownload(t *testing.T) {
	svc, repo, _ := newTestService(t, &fakeRunner{report: sampleReport})

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte("jarbytes"))
	}))
	defer srv.Close()

	// the pending row comes back while the artifact host is still stalling
	scan, err := svc.IngestRemote(context.Background(), 1, srv.URL+"/builds/app.jar?token=x", "acme", domain.SourceJenkins)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, scan.Status)
	assert.Equal(t, "acme/app.jar", scan.OriginalFilename)
	assert.Equal(t, domain.SourceJenkins, scan.Source)

	close(release)
	done := waitTerminal(t, repo, 1, scan.ID)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Equal(t, 1, done.Counts.Total)
}

func TestIngestRemoteDownloadFailureMarksFailed(t *testing.T) {
	svc, repo, _ := newTestService(t, &fakeRunner{report: sampleReport})
	svc.downloadBackoff = time.Millisecond

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	scan, err := svc.IngestRemote(context.Background(), 1, srv.URL+"/builds/app.jar", "", domain.SourceJenkins)
	require.NoError(t, err)

	done := waitTerminal(t, repo, 1, scan.ID)
	assert.Equal(t, domain.StatusFailed, done.Status)
	assert.Contains(t, done.ErrorMessage, "download artifact")
}

func TestIngestRemoteRejectsUnsupportedURL(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeRunner{report: sampleReport})
	_, err := svc.IngestRemote(context.Background(), 1, "https://ci.example.com/build.exe", "", domain.SourceJenkins)
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}

type recordingObserver struct {
	mu       sync.Mutex
	started  int
	finished []string
}

func (o *recordingObserver) ScanStarted() {
	o.mu.Lock()
	o.started++
	o.mu.Unlock()
}

func (o *recordingObserver) ScanFinished(status string) {
	o.mu.Lock()
	o.finished = append(o.finished, status)
	o.mu.Unlock()
}

func (o *recordingObserver) snapshot() (int, []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started, append([]string(nil), o.finished...)
}

// markCompletedFailRepo simulates a DB error on the final status write.
type markCompletedFailRepo struct{ *fakeRepo }

func (r *markCompletedFailRepo) MarkCompleted(ctx context.Context, id domain.ScanID, reportURL string, counts domain.SeverityCounts, at time.Time) error {
	return assert.AnError
}

func TestObserverBalancedWhenMarkCompletedFails(t *testing.T) {
	svc, repo, _ := newTestService(t, &fakeRunner{report: sampleReport})
	obs := &recordingObserver{}
	svc.Observer = obs
	svc.Repo = &markCompletedFailRepo{repo}

	_, err := svc.Upload(context.Background(), 1, "app.jar", strings.NewReader("x"), 1)
	require.NoError(t, err)

	// every ScanStarted must be paired with a ScanFinished even when the
	// completion write fails, or the running gauge drifts
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		started, finished := obs.snapshot()
		if started == 1 && len(finished) == 1 {
			assert.Equal(t, string(domain.StatusFailed), finished[0])
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("observer never saw a finish for the started scan")
}

func TestSupportedExtension(t *testing.T) {
	assert.True(t, SupportedExtension("app.jar"))
	assert.True(t, SupportedExtension("APP.WAR"))
	assert.True(t, SupportedExtension("dist.tar.gz"))
	assert.True(t, SupportedExtension("pkg.whl"))
	assert.False(t, SupportedExtension("binary.exe"))
	assert.False(t, SupportedExtension("noext"))
}
