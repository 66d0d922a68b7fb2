// Package parser normalizes Playwright JSON reporter output into the
// framework-neutral report model.
package parser

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/kamilpajak/fring/pkg/models"
)

// PlaywrightParser parses Playwright JSON reports
type PlaywrightParser struct{}

// playwrightReport represents the raw Playwright JSON structure
type playwrightReport struct {
	Suites []playwrightSuite `json:"suites"`
	Stats  playwrightStats   `json:"stats"`
}

type playwrightStats struct {
	Expected   int     `json:"expected"`
	Unexpected int     `json:"unexpected"`
	Flaky      int     `json:"flaky"`
	Skipped    int     `json:"skipped"`
	Duration   float64 `json:"duration"`
	// Blob format uses these
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

type playwrightSuite struct {
	Title  string            `json:"title"`
	File   string            `json:"file"`
	Specs  []playwrightSpec  `json:"specs"`
	Suites []playwrightSuite `json:"suites"`
}

type playwrightSpec struct {
	Title string           `json:"title"`
	File  string           `json:"file"`
	Line  int              `json:"line"`
	OK    *bool            `json:"ok"`
	Tests []playwrightTest `json:"tests"`
}

type playwrightTest struct {
	Status  string             `json:"status"`
	Results []playwrightResult `json:"results"`
}

type playwrightResult struct {
	Status      string                 `json:"status"`
	Duration    int64                  `json:"duration"`
	Retry       int                    `json:"retry"`
	Errors      []playwrightError      `json:"errors"`
	Attachments []playwrightAttachment `json:"attachments"`
}

type playwrightError struct {
	Message  string              `json:"message"`
	Stack    string              `json:"stack"`
	Location *playwrightLocation `json:"location"`
}

type playwrightLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

type playwrightAttachment struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	ContentType string `json:"contentType"`
}

// Parse reads and parses a Playwright JSON report file
func (p *PlaywrightParser) Parse(path string) (*models.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	return p.ParseBytes(data)
}

// ParseBytes parses Playwright JSON from raw bytes
func (p *PlaywrightParser) ParseBytes(data []byte) (*models.Report, error) {
	var raw playwrightReport
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return p.normalize(raw), nil
}

func (p *PlaywrightParser) normalize(raw playwrightReport) *models.Report {
	// Support both JSON reporter (expected/unexpected) and blob format (passed/failed)
	passed := raw.Stats.Passed
	if passed == 0 {
		passed = raw.Stats.Expected
	}

	failed := raw.Stats.Failed
	if failed == 0 {
		failed = raw.Stats.Unexpected + raw.Stats.Flaky
	}

	total := raw.Stats.Total
	if total == 0 {
		total = passed + failed + raw.Stats.Skipped
	}

	report := &models.Report{
		Framework:    "playwright",
		TotalTests:   total,
		PassedTests:  passed,
		FailedTests:  failed,
		SkippedTests: raw.Stats.Skipped,
		DurationMS:   int64(raw.Stats.Duration),
		Results:      make([]models.TestResult, 0),
	}

	for _, suite := range raw.Suites {
		p.collectSuite(report, suite, nil)
	}

	return report
}

// collectSuite flattens nested describe blocks into results. Playwright
// nests one suite per file with describe suites below it; titles of the
// enclosing describes become part of the test name.
func (p *PlaywrightParser) collectSuite(report *models.Report, raw playwrightSuite, titles []string) {
	if raw.Title != "" && raw.Title != raw.File {
		titles = append(titles, raw.Title)
	}

	for _, spec := range raw.Specs {
		if res := p.normalizeSpec(spec, raw.File, titles); res != nil {
			report.Results = append(report.Results, *res)
		}
	}

	for _, nested := range raw.Suites {
		p.collectSuite(report, nested, titles)
	}
}

func (p *PlaywrightParser) normalizeSpec(spec playwrightSpec, suiteFile string, titles []string) *models.TestResult {
	if len(spec.Tests) == 0 {
		return nil
	}

	test := spec.Tests[0]
	if len(test.Results) == 0 {
		return nil
	}

	// The last result is the final outcome after retries.
	result := test.Results[len(test.Results)-1]

	path := spec.File
	if path == "" {
		path = suiteFile
	}

	res := &models.TestResult{
		TestPath:   path,
		TestName:   strings.Join(append(titles, spec.Title), " > "),
		DurationMS: result.Duration,
		Retry:      len(test.Results) - 1,
	}

	switch result.Status {
	case "passed":
		res.Status = models.StatusPassed
	case "skipped":
		res.Status = models.StatusSkipped
	default:
		res.Status = models.StatusFailed
	}

	if len(result.Errors) > 0 {
		first := result.Errors[0]
		res.Error = &models.TestError{
			Message: first.Message,
			Stack:   first.Stack,
		}
		if first.Location != nil {
			res.Error.Location = &models.Location{
				File:   first.Location.File,
				Line:   first.Location.Line,
				Column: first.Location.Column,
			}
		}
	} else if res.Status == models.StatusFailed {
		res.Error = &models.TestError{Message: "test failed without error output"}
	}

	for _, a := range result.Attachments {
		res.Attachments = append(res.Attachments, models.Attachment{
			Name:        a.Name,
			Path:        a.Path,
			ContentType: a.ContentType,
		})
	}

	return res
}
