// Package discovery locates test reports on disk and identifies which
// ones the healing pipeline can consume.
package discovery

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ReportType represents the type of test report
type ReportType string

const (
	ReportTypePlaywright ReportType = "playwright"
	ReportTypeJest       ReportType = "jest"
	ReportTypeJUnit      ReportType = "junit"
	ReportTypeUnknown    ReportType = "unknown"
)

// Report is a discovered test report file.
type Report struct {
	Path        string     `json:"path"`
	Type        ReportType `json:"type"`
	HasFailures bool       `json:"has_failures"`
	TotalTests  int        `json:"total_tests"`
	FailedTests int        `json:"failed_tests"`
}

// reportNamePatterns are file names that typically hold test reports.
var reportNamePatterns = []string{
	"report.json",
	"results.json",
	"test-results.json",
	"playwright-report.json",
}

// maxReportSize guards against scanning unrelated large JSON files.
const maxReportSize = 64 << 20

// Scan walks dir and returns every JSON file that looks like a test
// report, classified by framework. Unreadable files are skipped.
func Scan(dir string) ([]Report, error) {
	var found []Report
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "node_modules" || strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !matchesReportName(d.Name()) {
			return nil
		}
		if info, ierr := d.Info(); ierr != nil || info.Size() > maxReportSize {
			return nil
		}

		content, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil
		}
		rt, hasFailures, total, failed := detectReportType(content)
		if rt == ReportTypeUnknown {
			return nil
		}

		rel, rerr := filepath.Rel(dir, path)
		if rerr != nil {
			rel = path
		}
		found = append(found, Report{
			Path:        rel,
			Type:        rt,
			HasFailures: hasFailures,
			TotalTests:  total,
			FailedTests: failed,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func matchesReportName(name string) bool {
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, ".json") {
		return false
	}
	for _, pattern := range reportNamePatterns {
		if lower == pattern {
			return true
		}
	}
	return strings.Contains(lower, "report") || strings.Contains(lower, "results")
}

// detectReportType classifies raw report content and extracts failure
// counts where the format allows it.
func detectReportType(content []byte) (ReportType, bool, int, int) {
	var generic map[string]interface{}
	if err := json.Unmarshal(content, &generic); err != nil {
		return ReportTypeUnknown, false, 0, 0
	}

	// Check for Playwright report structure
	if _, hasSuites := generic["suites"]; hasSuites {
		if stats, hasStats := generic["stats"].(map[string]interface{}); hasStats {
			hasFailures, total, failed := analyzePlaywrightStats(stats)
			return ReportTypePlaywright, hasFailures, total, failed
		}
		if _, hasConfig := generic["config"]; hasConfig {
			return ReportTypePlaywright, false, 0, 0
		}
	}

	// Check for Jest report structure
	if _, hasTestResults := generic["testResults"]; hasTestResults {
		return ReportTypeJest, false, 0, 0
	}

	// Check for JUnit structure (typically has testsuite/testsuites)
	if _, hasTestsuite := generic["testsuite"]; hasTestsuite {
		return ReportTypeJUnit, false, 0, 0
	}
	if _, hasTestsuites := generic["testsuites"]; hasTestsuites {
		return ReportTypeJUnit, false, 0, 0
	}

	return ReportTypeUnknown, false, 0, 0
}

// analyzePlaywrightStats extracts failure info from Playwright stats
func analyzePlaywrightStats(stats map[string]interface{}) (bool, int, int) {
	var total, failed int

	// Try different stat formats
	if expected, ok := stats["expected"].(float64); ok {
		total += int(expected)
	}
	if unexpected, ok := stats["unexpected"].(float64); ok {
		failed = int(unexpected)
		total += failed
	}
	if flaky, ok := stats["flaky"].(float64); ok {
		total += int(flaky)
	}
	if skipped, ok := stats["skipped"].(float64); ok {
		total += int(skipped)
	}

	// Blob format uses passed/failed
	if passed, ok := stats["passed"].(float64); ok {
		total = int(passed)
	}
	if failedCount, ok := stats["failed"].(float64); ok {
		failed = int(failedCount)
		total += failed
	}
	if totalCount, ok := stats["total"].(float64); ok {
		total = int(totalCount)
	}

	return failed > 0, total, failed
}
