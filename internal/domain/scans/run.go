package scans

// RunRequest untuk Runner
type RunRequest struct {
	ScanID       ScanID
	ArtifactPath string
	OutDir       string
}

// RunResult hasil dari Runner
type RunResult struct {
	ReportPath string
	LogPath    string
	ExitCode   int
	DurationMS int64
}
