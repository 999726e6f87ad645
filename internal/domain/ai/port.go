package ai

import "context"

// Finding is the sanitized per-vulnerability payload sent to the AI provider.
// Only public CVE data and the bare third-party library name are included;
// never file paths, project names, or internal identifiers.
type Finding struct {
	ID             int64    `json:"id"`
	LibraryName    string   `json:"library_name"`
	LibraryVersion string   `json:"library_version"`
	CVEID          string   `json:"cve_id"`
	Severity       string   `json:"severity"`
	CVSSv2         *float64 `json:"cvss_v2,omitempty"`
	CVSSv3         *float64 `json:"cvss_v3,omitempty"`
	Description    string   `json:"description"`
	CWEIDs         []string `json:"cwe_ids"`
}

// Client port: asks the LLM to classify findings as likely false positives and
// returns its raw response text (a JSON document per the prompt schema).
type Client interface {
	AnalyzeFindings(ctx context.Context, findings []Finding) (string, error)
}
