package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/depscan-io/depscan/internal/domain/ai"
	"github.com/depscan-io/depscan/internal/domain/vulns"
)

// Matches the UUID prefix some pipelines add to artifact filenames,
// e.g. "3b7d9a1c-1234-5678-abcd-ef0123456789_log4j-core-2.14.jar".
var uuidPrefixRe = regexp.MustCompile(
	`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}[_-]`)

// Matches names that are nothing but a UUID plus extensions, the format
// uploads are stored under on disk ("<uuid>.jar", "<uuid>.tar.gz").
var uuidNameRe = regexp.MustCompile(
	`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}(\.[a-z0-9]+)*$`)

// SanitizeLibraryName strips path components and internal upload identifiers
// from a dependency filename so only the bare third-party library name leaves
// the server.
func SanitizeLibraryName(raw string) string {
	name := baseName(raw)
	name = uuidPrefixRe.ReplaceAllString(name, "")
	if name == "" || name == "." || uuidNameRe.MatchString(name) {
		return "unknown-library"
	}
	return name
}

// baseName is filepath.Base for both separators: scan reports may carry
// Windows paths regardless of the server platform.
func baseName(p string) string {
	last := -1
	for i := 0; i < len(p); i++ {
		if p[i] == '/' || p[i] == '\\' {
			last = i
		}
	}
	return p[last+1:]
}

// BuildFindings converts vulnerability rows into the sanitized payload sent to
// the AI provider. Only public CVE data and bare library names are included.
func BuildFindings(rows []*vulns.Vulnerability) []ai.Finding {
	out := make([]ai.Finding, 0, len(rows))
	for _, v := range rows {
		version := v.DependencyVersion
		if version == "" {
			version = "unknown"
		}
		desc := v.Description
		if len(desc) > 2000 {
			desc = desc[:2000]
		}
		cwes := v.DecodeCWEs()
		if cwes == nil {
			cwes = []string{}
		}
		out = append(out, ai.Finding{
			ID:             v.ID,
			LibraryName:    SanitizeLibraryName(v.DependencyName),
			LibraryVersion: version,
			CVEID:          v.CVEID,
			Severity:       string(v.Severity),
			CVSSv2:         v.CVSSv2,
			CVSSv3:         v.CVSSv3,
			Description:    desc,
			CWEIDs:         cwes,
		})
	}
	return out
}

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a senior application security engineer specializing in software composition analysis (SCA) and dependency vulnerability assessment. You are an expert at identifying false positives in OWASP Dependency Check results.

Common false positive patterns you know well:
1. CVEs that affect a specific function/class NOT present in the scanned artifact
2. CVEs for vulnerabilities in server-side components when only client-side JARs are used
3. CVEs where the affected version range doesn't actually match (version detection errors)
4. Test/optional dependencies that don't ship in production
5. CVEs reported against a shaded/relocated dependency with a different package name
6. Platform-specific vulnerabilities not relevant to the deployment platform
7. CVEs that require specific configuration or environment not present in typical deployments
8. Incorrectly matched CPE identifiers causing wrong library attribution

Output requirements:
- Produce one valid JSON object only (no markdown, no commentary, no code fences).
- confidence is a number between 0.0 and 1.0.
- reasoning is 2-3 sentences at most.

Schema:
{
  "analyses": [
    {
      "id": <vulnerability_id>,
      "is_false_positive": <true|false>,
      "confidence": <0.0-1.0>,
      "reasoning": "<brief explanation>",
      "risk_summary": "<1 sentence risk summary>"
    }
  ],
  "overall_assessment": "<overall risk summary>"
}`
}

// GetUserPrompt builds the user message around the sanitized findings.
func GetUserPrompt(findings []ai.Finding) string {
	payload, _ := json.MarshalIndent(findings, "", "  ")
	return fmt.Sprintf(`Analyze these OWASP Dependency Check vulnerabilities.

Note: only library names and public CVE data are provided below.

Vulnerabilities to analyze:
%s

For each vulnerability, determine whether it is likely a false positive, your confidence, brief reasoning, and a one-sentence risk summary. Respond with the JSON per schema.`, payload)
}
