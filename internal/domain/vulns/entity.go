package vulns

import (
	"encoding/json"
	"strings"
	"time"
)

// Severity enum, uppercase as reported by the scanner
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
	SeverityUnknown  Severity = "UNKNOWN"
)

// SeverityFromString normalizes a raw severity label.
func SeverityFromString(s string) Severity {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	case SeverityLow:
		return SeverityLow
	case SeverityInfo:
		return SeverityInfo
	default:
		return SeverityUnknown
	}
}

// Reference is one advisory link from the scan report.
type Reference struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Vulnerability is one CVE finding attached to a scan.
type Vulnerability struct {
	ID                int64    `json:"id"`
	ScanID            string   `json:"scan_id"`
	DependencyName    string   `json:"dependency_name"`
	DependencyVersion string   `json:"dependency_version,omitempty"`
	DependencyFile    string   `json:"dependency_file,omitempty"`
	CVEID             string   `json:"cve_id"`
	Severity          Severity `json:"severity"`
	CVSSv2            *float64 `json:"cvss_v2,omitempty"`
	CVSSv3            *float64 `json:"cvss_v3,omitempty"`
	Description       string   `json:"description"`

	// References and CWEIDs are stored as JSON strings, same shape the
	// scanner report uses.
	References string `json:"references,omitempty"`
	CWEIDs     string `json:"cwe_ids,omitempty"`

	AIAnalysis        string     `json:"ai_analysis,omitempty"`
	AIIsFalsePositive *bool      `json:"ai_is_false_positive,omitempty"`
	AIConfidence      *float64   `json:"ai_confidence,omitempty"`
	AIReasoning       string     `json:"ai_reasoning,omitempty"`
	IsSuppressed      bool       `json:"is_suppressed"`
	CreatedAt         time.Time  `json:"created_at"`
}

// DecodeReferences unpacks the stored JSON reference list.
func (v *Vulnerability) DecodeReferences() []Reference {
	if v.References == "" {
		return nil
	}
	var out []Reference
	if err := json.Unmarshal([]byte(v.References), &out); err != nil {
		return nil
	}
	return out
}

// DecodeCWEs unpacks the stored JSON CWE id list.
func (v *Vulnerability) DecodeCWEs() []string {
	if v.CWEIDs == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v.CWEIDs), &out); err != nil {
		return nil
	}
	return out
}
