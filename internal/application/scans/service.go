package scans

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/depscan-io/depscan/internal/application"
	domain "github.com/depscan-io/depscan/internal/domain/scans"
	"github.com/depscan-io/depscan/internal/domain/vulns"
	"github.com/depscan-io/depscan/internal/infra/executor/depcheck"
)

var (
	ErrUnsupportedFile = errors.New("unsupported artifact type")
	ErrFileTooLarge    = errors.New("artifact exceeds the upload size limit")
)

// Artifact types OWASP Dependency Check can analyze.
var supportedExtensions = map[string]bool{
	".jar": true, ".war": true, ".ear": true, ".zip": true,
	".sar": true, ".apk": true, ".nupkg": true,
	".egg": true, ".whl": true,
	".tar": true, ".gz": true, ".tgz": true,
}

// SupportedExtension reports whether the filename carries an extension the
// scanner understands.
func SupportedExtension(filename string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Observer receives scan lifecycle events, used for metrics.
type Observer interface {
	ScanStarted()
	ScanFinished(status string)
}

type nopObserver struct{}

func (nopObserver) ScanStarted()               {}
func (nopObserver) ScanFinished(status string) {}

// Service implements artifact upload and scan lifecycle use-cases.
// Safe for concurrent use; background work is bounded by the semaphore.
type Service struct {
	Repo      domain.Repository
	Vulns     vulns.Repository
	Runner    domain.Runner
	Artifacts domain.ArtifactStore
	Clock     application.Clock
	Observer  Observer

	UploadsDir     string
	ReportsDir     string
	MaxUploadBytes int64

	sem             chan struct{}
	download        *http.Client
	downloadBackoff time.Duration
}

func NewService(repo domain.Repository, vrepo vulns.Repository, runner domain.Runner, artifacts domain.ArtifactStore, clock application.Clock, uploadsDir, reportsDir string, maxUploadBytes int64, maxConcurrent int) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Service{
		Repo:           repo,
		Vulns:          vrepo,
		Runner:         runner,
		Artifacts:      artifacts,
		Clock:          clock,
		Observer:       nopObserver{},
		UploadsDir:     uploadsDir,
		ReportsDir:     reportsDir,
		MaxUploadBytes: maxUploadBytes,
		sem:             make(chan struct{}, maxConcurrent),
		download:        &http.Client{Timeout: 5 * time.Minute},
		downloadBackoff: 2 * time.Second,
	}
}

// Upload stores the artifact under a generated name, records a pending scan
// and kicks off background processing. Returns immediately with the pending
// row.
func (s *Service) Upload(ctx context.Context, userID int64, originalFilename string, src io.Reader, size int64) (*domain.Scan, error) {
	if !SupportedExtension(originalFilename) {
		return nil, ErrUnsupportedFile
	}
	if s.MaxUploadBytes > 0 && size > s.MaxUploadBytes {
		return nil, ErrFileTooLarge
	}

	id := uuid.New().String()
	// Only the extension from the client name is trusted; everything else
	// comes from the generated ID.
	stored := id + strings.ToLower(filepath.Ext(originalFilename))
	dest := filepath.Join(s.UploadsDir, stored)

	if err := os.MkdirAll(s.UploadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("create artifact file: %w", err)
	}
	written, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return nil, fmt.Errorf("write artifact: %w", err)
	}
	if s.MaxUploadBytes > 0 && written > s.MaxUploadBytes {
		os.Remove(dest)
		return nil, ErrFileTooLarge
	}

	scan := &domain.Scan{
		ID:               domain.ScanID(id),
		UserID:           userID,
		Filename:         stored,
		OriginalFilename: originalFilename,
		Status:           domain.StatusPending,
		Source:           domain.SourceUpload,
		CreatedAt:        s.Clock.Now(),
	}
	if err := s.Repo.Save(ctx, scan); err != nil {
		os.Remove(dest)
		return nil, err
	}

	go s.process(scan.ID, dest, nil)
	return scan, nil
}

// process runs the scanner for one artifact. Called from a goroutine with
// context.Background() so client disconnects don't cancel a running scan.
// A non-nil fetch retrieves the artifact first; webhook ingests download
// here rather than on the caller's connection.
func (s *Service) process(id domain.ScanID, artifactPath string, fetch func(context.Context) error) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	ctx := context.Background()
	if err := s.Repo.MarkRunning(ctx, id); err != nil {
		log.Printf("scan %s: mark running: %v", id, err)
		return
	}
	s.Observer.ScanStarted()

	if fetch != nil {
		if err := fetch(ctx); err != nil {
			s.fail(ctx, id, err)
			return
		}
	}

	outDir := filepath.Join(s.ReportsDir, string(id))
	res, err := s.Runner.Run(ctx, domain.RunRequest{
		ScanID:       id,
		ArtifactPath: artifactPath,
		OutDir:       outDir,
	})
	if err != nil {
		s.fail(ctx, id, err)
		return
	}

	rows, counts, err := domain.ParseReport(res.ReportPath, id)
	if err != nil {
		s.fail(ctx, id, fmt.Errorf("parse report: %w", err))
		return
	}
	if err := s.Vulns.BulkInsert(ctx, rows); err != nil {
		s.fail(ctx, id, fmt.Errorf("store vulnerabilities: %w", err))
		return
	}

	key := fmt.Sprintf("scans/%s/%s", id, depcheck.ReportFilename)
	reportURL, err := s.Artifacts.Upload(ctx, res.ReportPath, key)
	if err != nil {
		// Results are already in the DB; keep the scan usable.
		log.Printf("scan %s: upload report: %v", id, err)
		reportURL = ""
	}

	// Archive the artifact and drop the local copy; failed scans keep
	// theirs on disk for rescanning.
	artifactKey := fmt.Sprintf("scans/%s/artifact/%s", id, filepath.Base(artifactPath))
	if _, err := s.Artifacts.UploadAndCleanup(ctx, artifactPath, artifactKey); err != nil {
		log.Printf("scan %s: archive artifact: %v", id, err)
	}

	if err := s.Repo.MarkCompleted(ctx, id, reportURL, counts, s.Clock.Now()); err != nil {
		log.Printf("scan %s: mark completed: %v", id, err)
		s.Observer.ScanFinished(string(domain.StatusFailed))
		return
	}
	s.Observer.ScanFinished(string(domain.StatusCompleted))
	log.Printf("scan %s: completed in %dms (%d findings)", id, res.DurationMS, counts.Total)
}

func (s *Service) fail(ctx context.Context, id domain.ScanID, cause error) {
	msg := cause.Error()
	if len(msg) > 1000 {
		msg = msg[:1000]
	}
	if err := s.Repo.MarkFailed(ctx, id, msg, s.Clock.Now()); err != nil {
		log.Printf("scan %s: mark failed: %v", id, err)
	}
	s.Observer.ScanFinished(string(domain.StatusFailed))
	log.Printf("scan %s: failed: %v", id, cause)
}

func (s *Service) Get(ctx context.Context, userID int64, id domain.ScanID) (*domain.Scan, []*vulns.Vulnerability, error) {
	scan, err := s.Repo.Get(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.Vulns.ListByScan(ctx, string(id))
	if err != nil {
		return nil, nil, err
	}
	return scan, rows, nil
}

func (s *Service) List(ctx context.Context, userID int64, offset, limit int) ([]*domain.Scan, error) {
	return s.Repo.List(ctx, userID, offset, limit)
}

// Delete removes the scan row, its vulnerabilities and local working files.
func (s *Service) Delete(ctx context.Context, userID int64, id domain.ScanID) error {
	scan, err := s.Repo.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.Vulns.DeleteByScan(ctx, string(id)); err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	os.Remove(filepath.Join(s.UploadsDir, scan.Filename))
	os.RemoveAll(filepath.Join(s.ReportsDir, string(id)))
	return nil
}

func (s *Service) Summary(ctx context.Context, userID int64, sinceDays int) (map[string]any, error) {
	total, completed, failed, findings, err := s.Repo.Summary(ctx, userID, sinceDays)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"total_scans":    total,
		"completed":      completed,
		"failed":         failed,
		"total_findings": findings,
		"since_days":     sinceDays,
	}, nil
}

// ReadLog returns the scanner output for a scan. For scans that haven't
// produced output yet it returns a placeholder line instead of an error.
func (s *Service) ReadLog(ctx context.Context, userID int64, id domain.ScanID) (string, error) {
	scan, err := s.Repo.Get(ctx, userID, id)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.ReportsDir, string(id), depcheck.LogFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !scan.Status.Terminal() {
			return fmt.Sprintf("scan is %s, no output yet\n", scan.Status), nil
		}
		return "", err
	}
	return string(data), nil
}

// ReportPath returns the local JSON report path for a completed scan.
func (s *Service) ReportPath(ctx context.Context, userID int64, id domain.ScanID) (string, error) {
	if _, err := s.Repo.Get(ctx, userID, id); err != nil {
		return "", err
	}
	path := filepath.Join(s.ReportsDir, string(id), depcheck.ReportFilename)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

// ExportCSV writes the scan's vulnerabilities as CSV rows.
func (s *Service) ExportCSV(ctx context.Context, userID int64, id domain.ScanID, w io.Writer) error {
	if _, err := s.Repo.Get(ctx, userID, id); err != nil {
		return err
	}
	rows, err := s.Vulns.ListByScan(ctx, string(id))
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{
		"cve_id", "dependency", "version", "severity",
		"cvss_v2", "cvss_v3", "ai_false_positive", "ai_confidence",
		"suppressed", "description",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, v := range rows {
		rec := []string{
			v.CVEID,
			v.DependencyName,
			v.DependencyVersion,
			string(v.Severity),
			formatFloat(v.CVSSv2),
			formatFloat(v.CVSSv3),
			formatBool(v.AIIsFalsePositive),
			formatFloat(v.AIConfidence),
			strconv.FormatBool(v.IsSuppressed),
			v.Description,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Suppress toggles the suppressed flag on one finding of the user's scan.
func (s *Service) Suppress(ctx context.Context, userID int64, id domain.ScanID, vulnID int64, suppressed bool) (*vulns.Vulnerability, error) {
	if _, err := s.Repo.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	if err := s.Vulns.SetSuppressed(ctx, vulnID, suppressed); err != nil {
		return nil, err
	}
	return s.Vulns.Get(ctx, string(id), vulnID)
}

// IngestRemote records a pending scan for a CI/CD webhook artifact and
// returns immediately; the download and scan happen in the background so a
// slow artifact host never stalls the webhook caller. The URL must already
// be validated by the caller.
func (s *Service) IngestRemote(ctx context.Context, userID int64, artifactURL, projectName string, source domain.Source) (*domain.Scan, error) {
	name := filepath.Base(strings.SplitN(artifactURL, "?", 2)[0])
	if !SupportedExtension(name) {
		return nil, ErrUnsupportedFile
	}

	id := uuid.New().String()
	stored := id + strings.ToLower(filepath.Ext(name))
	dest := filepath.Join(s.UploadsDir, stored)
	if err := os.MkdirAll(s.UploadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}

	original := name
	if projectName != "" {
		original = projectName + "/" + name
	}
	scan := &domain.Scan{
		ID:               domain.ScanID(id),
		UserID:           userID,
		Filename:         stored,
		OriginalFilename: original,
		Status:           domain.StatusPending,
		Source:           source,
		CreatedAt:        s.Clock.Now(),
	}
	if err := s.Repo.Save(ctx, scan); err != nil {
		return nil, err
	}

	go s.process(scan.ID, dest, func(ctx context.Context) error {
		return s.downloadWithRetry(ctx, artifactURL, dest)
	})
	return scan, nil
}

// downloadWithRetry fetches the artifact with jittered exponential backoff.
// CI systems often publish the artifact URL slightly before the blob is
// readable.
func (s *Service) downloadWithRetry(ctx context.Context, url, dest string) error {
	const attempts = 3
	backoff := s.downloadBackoff

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
		lastErr = s.downloadOnce(ctx, url, dest)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("download artifact: %w", lastErr)
}

func (s *Service) downloadOnce(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.download.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	var reader io.Reader = resp.Body
	if s.MaxUploadBytes > 0 {
		reader = io.LimitReader(resp.Body, s.MaxUploadBytes+1)
	}
	written, err := io.Copy(f, reader)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return err
	}
	if s.MaxUploadBytes > 0 && written > s.MaxUploadBytes {
		os.Remove(dest)
		return ErrFileTooLarge
	}
	return nil
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func formatBool(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}
