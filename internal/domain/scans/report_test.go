package scans

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depscan-io/depscan/internal/domain/vulns"
)

func TestParseReport(t *testing.T) {
	path := filepath.Join("testdata", "dependency-check-report.json")

	rows, counts, err := ParseReport(path, ScanID("scan-1"))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, 1, counts.Critical)
	assert.Equal(t, 1, counts.High)
	assert.Equal(t, 1, counts.Medium)
	assert.Equal(t, 0, counts.Low)
	assert.Equal(t, 3, counts.Total)

	log4shell := rows[0]
	assert.Equal(t, "scan-1", log4shell.ScanID)
	assert.Equal(t, "CVE-2021-44228", log4shell.CVEID)
	assert.Equal(t, "log4j-core-2.14.1.jar", log4shell.DependencyName)
	assert.Equal(t, vulns.SeverityCritical, log4shell.Severity)
	// version extracted from the package URL
	assert.Equal(t, "2.14.1", log4shell.DependencyVersion)
	require.NotNil(t, log4shell.CVSSv3)
	assert.InDelta(t, 10.0, *log4shell.CVSSv3, 0.001)
	require.NotNil(t, log4shell.CVSSv2)
	assert.InDelta(t, 9.3, *log4shell.CVSSv2, 0.001)

	refs := log4shell.DecodeReferences()
	require.Len(t, refs, 1)
	assert.Equal(t, "https://nvd.nist.gov/vuln/detail/CVE-2021-44228", refs[0].URL)
	assert.Equal(t, []string{"CWE-502", "CWE-400"}, log4shell.DecodeCWEs())

	// missing cvssv2 stays nil rather than zero
	second := rows[1]
	assert.Nil(t, second.CVSSv2)
	require.NotNil(t, second.CVSSv3)

	// GAV coordinate version extraction
	commons := rows[2]
	assert.Equal(t, "2.6", commons.DependencyVersion)
	assert.Equal(t, vulns.SeverityMedium, commons.Severity)
}

func TestParseReportMissingFile(t *testing.T) {
	_, _, err := ParseReport(filepath.Join("testdata", "nope.json"), ScanID("x"))
	assert.Error(t, err)
}

func TestPackageVersion(t *testing.T) {
	assert.Equal(t, "2.14.1", packageVersion([]dcPackage{{ID: "pkg:maven/org.apache/log4j-core@2.14.1"}}))
	assert.Equal(t, "1.2.3", packageVersion([]dcPackage{{ID: "com.example:lib:1.2.3"}}))
	assert.Equal(t, "", packageVersion([]dcPackage{{ID: "plainstring"}}))
	assert.Equal(t, "", packageVersion(nil))
}
