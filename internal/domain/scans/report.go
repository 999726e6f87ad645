package scans

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/depscan-io/depscan/internal/domain/vulns"
)

// Subset of the OWASP Dependency Check JSON report schema we consume.
type dcReport struct {
	Dependencies []dcDependency `json:"dependencies"`
}

type dcDependency struct {
	FileName        string            `json:"fileName"`
	FilePath        string            `json:"filePath"`
	Packages        []dcPackage       `json:"packages"`
	Vulnerabilities []dcVulnerability `json:"vulnerabilities"`
}

type dcPackage struct {
	ID string `json:"id"`
}

type dcVulnerability struct {
	Name        string        `json:"name"`
	Severity    string        `json:"severity"`
	CVSSv2      dcCvssV2      `json:"cvssv2"`
	CVSSv3      dcCvssV3      `json:"cvssv3"`
	Description string        `json:"description"`
	CWEs        []string      `json:"cwes"`
	References  []dcReference `json:"references"`
}

type dcCvssV2 struct {
	Score *float64 `json:"score"`
}

type dcCvssV3 struct {
	BaseScore *float64 `json:"baseScore"`
}

type dcReference struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// ParseReport reads a dependency-check JSON report and flattens it into
// vulnerability rows plus severity counts for the scan header.
func ParseReport(reportPath string, scanID ScanID) ([]*vulns.Vulnerability, SeverityCounts, error) {
	data, err := os.ReadFile(reportPath)
	if err != nil {
		return nil, SeverityCounts{}, fmt.Errorf("read report: %w", err)
	}

	var report dcReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, SeverityCounts{}, fmt.Errorf("decode report: %w", err)
	}

	var out []*vulns.Vulnerability
	var counts SeverityCounts

	for _, dep := range report.Dependencies {
		name := dep.FileName
		if name == "" {
			name = "unknown"
		}

		// Version comes from the last segment of a package URL like
		// pkg:maven/org.apache/commons-io@2.11.0 or a GAV coordinate.
		version := packageVersion(dep.Packages)

		for _, dv := range dep.Vulnerabilities {
			sev := vulns.SeverityFromString(dv.Severity)

			refs := make([]vulns.Reference, 0, len(dv.References))
			for _, r := range dv.References {
				refs = append(refs, vulns.Reference{URL: r.URL, Name: r.Name})
			}
			refsJSON, _ := json.Marshal(refs)

			cwes := dv.CWEs
			if cwes == nil {
				cwes = []string{}
			}
			cwesJSON, _ := json.Marshal(cwes)

			cveID := dv.Name
			if cveID == "" {
				cveID = "UNKNOWN"
			}

			out = append(out, &vulns.Vulnerability{
				ScanID:            string(scanID),
				DependencyName:    name,
				DependencyVersion: version,
				DependencyFile:    dep.FilePath,
				CVEID:             cveID,
				Severity:          sev,
				CVSSv2:            dv.CVSSv2.Score,
				CVSSv3:            dv.CVSSv3.BaseScore,
				Description:       dv.Description,
				References:        string(refsJSON),
				CWEIDs:            string(cwesJSON),
			})

			switch sev {
			case vulns.SeverityCritical:
				counts.Critical++
			case vulns.SeverityHigh:
				counts.High++
			case vulns.SeverityMedium:
				counts.Medium++
			case vulns.SeverityLow:
				counts.Low++
			}
			counts.Total++
		}
	}

	return out, counts, nil
}

func packageVersion(pkgs []dcPackage) string {
	for _, p := range pkgs {
		if p.ID == "" {
			continue
		}
		// pkg url form: pkg:type/namespace/name@version
		if at := strings.LastIndex(p.ID, "@"); at >= 0 && at < len(p.ID)-1 {
			return p.ID[at+1:]
		}
		// GAV form: group:artifact:version
		parts := strings.Split(p.ID, ":")
		if len(parts) >= 3 {
			return parts[len(parts)-1]
		}
	}
	return ""
}
