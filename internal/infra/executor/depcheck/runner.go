package depcheck

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	domain "github.com/depscan-io/depscan/internal/domain/scans"
)

// ReportFilename is what dependency-check names its JSON output.
const ReportFilename = "dependency-check-report.json"

// LogFilename holds the scanner's combined console output, polled by the
// frontend while the scan runs.
const LogFilename = "scan.log"

// Runner shells out to the OWASP Dependency Check CLI.
type Runner struct {
	CLIPath   string
	DataDir   string
	NVDAPIKey string
	Timeout   time.Duration
}

func NewRunner(cliPath, dataDir, nvdAPIKey string, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Runner{CLIPath: cliPath, DataDir: dataDir, NVDAPIKey: nvdAPIKey, Timeout: timeout}
}

func (r *Runner) Run(ctx context.Context, req domain.RunRequest) (domain.RunResult, error) {
	start := time.Now()

	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return domain.RunResult{}, fmt.Errorf("create report dir: %w", err)
	}
	reportPath := filepath.Join(req.OutDir, ReportFilename)
	logPath := filepath.Join(req.OutDir, LogFilename)

	args := []string{
		"--scan", req.ArtifactPath,
		"--format", "JSON",
		"--out", req.OutDir,
		"--prettyPrint",
		"--disableOssIndex",  // requires Sonatype credentials
		"--disableYarnAudit", // requires yarn CLI
		"--disableNodeAudit", // requires npm CLI
		"--disableNodeJS",
	}
	if r.DataDir != "" {
		args = append(args, "--data", r.DataDir)
	}
	if r.NVDAPIKey != "" {
		args = append(args, "--nvdApiKey", r.NVDAPIKey)
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	logFile, err := os.Create(logPath)
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("create scan log: %w", err)
	}
	defer logFile.Close()

	// Merge stderr into stdout so the log captures everything in order.
	cmd := exec.CommandContext(ctx, r.CLIPath, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	runErr := cmd.Run()
	duration := time.Since(start).Milliseconds()

	exitCode := 0
	if runErr != nil {
		var ee *exec.ExitError
		if errors.As(runErr, &ee) {
			exitCode = ee.ExitCode()
		} else {
			return domain.RunResult{}, fmt.Errorf("run dependency-check: %w", runErr)
		}
	}
	if ctx.Err() != nil {
		return domain.RunResult{}, fmt.Errorf("dependency-check timed out after %s", r.Timeout)
	}

	// A missing report means a silent failure (wrong CLI path, Java missing,
	// disk full) regardless of the exit code.
	if _, err := os.Stat(reportPath); err != nil {
		return domain.RunResult{}, fmt.Errorf(
			"dependency-check produced no report (exit %d): check the CLI path and that Java is available", exitCode)
	}

	// Exit codes: 0=clean, 1=vulns found, 2=analysis errors (non-fatal),
	// 4=update warnings. Anything else with a report present is a failure.
	switch exitCode {
	case 0, 1, 2, 4:
	default:
		return domain.RunResult{}, fmt.Errorf("dependency-check failed (exit %d)", exitCode)
	}

	return domain.RunResult{
		ReportPath: reportPath,
		LogPath:    logPath,
		ExitCode:   exitCode,
		DurationMS: duration,
	}, nil
}
