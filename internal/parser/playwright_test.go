package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kamilpajak/fring/pkg/models"
)

func TestPlaywrightParser_ParseBytes(t *testing.T) {
	// Sample Playwright JSON report
	jsonData := []byte(`{
		"suites": [{
			"title": "products.spec.ts",
			"file": "products.spec.ts",
			"suites": [{
				"title": "Products API",
				"file": "products.spec.ts",
				"specs": [{
					"title": "should list products",
					"file": "products.spec.ts",
					"line": 10,
					"ok": true,
					"tests": [{
						"status": "expected",
						"results": [{
							"status": "passed",
							"duration": 100
						}]
					}]
				}, {
					"title": "should create a product",
					"file": "products.spec.ts",
					"line": 20,
					"ok": false,
					"tests": [{
						"status": "unexpected",
						"results": [{
							"status": "failed",
							"duration": 150,
							"retry": 0,
							"errors": [{
								"message": "expect(received).toBe(expected)\n\nExpected: 200\nReceived: 201"
							}]
						}, {
							"status": "failed",
							"duration": 200,
							"retry": 1,
							"errors": [{
								"message": "expect(received).toBe(expected)\n\nExpected: 200\nReceived: 201",
								"stack": "Error: expect(received).toBe(expected)\n    at products.spec.ts:25",
								"location": {"file": "products.spec.ts", "line": 25, "column": 40}
							}],
							"attachments": [{
								"name": "trace",
								"path": "test-results/trace.zip",
								"contentType": "application/zip"
							}]
						}]
					}]
				}]
			}]
		}],
		"stats": {
			"expected": 1,
			"unexpected": 1,
			"flaky": 0,
			"skipped": 0,
			"duration": 351.5
		}
	}`)

	p := &PlaywrightParser{}
	report, err := p.ParseBytes(jsonData)

	if err != nil {
		t.Fatalf("ParseBytes failed: %v", err)
	}

	// Check stats
	if report.Framework != "playwright" {
		t.Errorf("Expected framework 'playwright', got '%s'", report.Framework)
	}

	if report.TotalTests != 2 {
		t.Errorf("Expected 2 total tests, got %d", report.TotalTests)
	}

	if report.PassedTests != 1 {
		t.Errorf("Expected 1 passed test, got %d", report.PassedTests)
	}

	if report.FailedTests != 1 {
		t.Errorf("Expected 1 failed test, got %d", report.FailedTests)
	}

	if report.DurationMS != 351 {
		t.Errorf("Expected duration 351ms, got %d", report.DurationMS)
	}

	// Check HasFailures
	if !report.HasFailures() {
		t.Error("Expected HasFailures() to return true")
	}

	// Check failed tests extraction
	failed := report.FailedResults()
	if len(failed) != 1 {
		t.Fatalf("Expected 1 failed result, got %d", len(failed))
	}

	res := failed[0]
	if res.TestName != "Products API > should create a product" {
		t.Errorf("Unexpected failed test name: '%s'", res.TestName)
	}

	if res.TestPath != "products.spec.ts" {
		t.Errorf("Unexpected test path: '%s'", res.TestPath)
	}

	if res.Status != models.StatusFailed {
		t.Errorf("Expected status 'failed', got '%s'", res.Status)
	}

	// The final result after one retry carries the error details.
	if res.Retry != 1 {
		t.Errorf("Expected retry 1, got %d", res.Retry)
	}

	if res.Error == nil {
		t.Fatal("Expected error details on failed result")
	}

	if res.Error.Message == "" || res.Error.Stack == "" {
		t.Errorf("Expected error message and stack, got %+v", res.Error)
	}

	if res.Error.Location == nil || res.Error.Location.Line != 25 {
		t.Errorf("Unexpected error location: %+v", res.Error.Location)
	}

	if len(res.Attachments) != 1 || res.Attachments[0].Name != "trace" {
		t.Errorf("Unexpected attachments: %+v", res.Attachments)
	}

	// Passed test keeps its bare title and has no error.
	if report.Results[0].TestName != "Products API > should list products" {
		t.Errorf("Unexpected passed test name: '%s'", report.Results[0].TestName)
	}

	if report.Results[0].Error != nil {
		t.Errorf("Passed test should have no error, got %+v", report.Results[0].Error)
	}
}

func TestPlaywrightParser_ParseBytes_BlobFormat(t *testing.T) {
	// Blob format uses passed/failed instead of expected/unexpected
	jsonData := []byte(`{
		"suites": [{
			"title": "Blob Report Tests",
			"specs": [{
				"title": "Unknown",
				"tests": [{
					"status": "unexpected",
					"results": [{
						"status": "timedOut",
						"duration": 30000
					}]
				}]
			}]
		}],
		"stats": {
			"passed": 0,
			"failed": 1,
			"skipped": 0,
			"total": 1
		}
	}`)

	p := &PlaywrightParser{}
	report, err := p.ParseBytes(jsonData)

	if err != nil {
		t.Fatalf("ParseBytes failed: %v", err)
	}

	if report.FailedTests != 1 {
		t.Errorf("Expected 1 failed test, got %d", report.FailedTests)
	}

	if report.TotalTests != 1 {
		t.Errorf("Expected 1 total test, got %d", report.TotalTests)
	}

	// A failure without error output still gets a placeholder message so
	// downstream analysis has something to classify.
	if len(report.Results) != 1 || report.Results[0].Error == nil {
		t.Fatalf("Expected 1 result with error, got %+v", report.Results)
	}
}

func TestPlaywrightParser_ParseBytes_NoFailures(t *testing.T) {
	jsonData := []byte(`{
		"suites": [],
		"stats": {
			"expected": 5,
			"unexpected": 0,
			"flaky": 0,
			"skipped": 0
		}
	}`)

	p := &PlaywrightParser{}
	report, err := p.ParseBytes(jsonData)

	if err != nil {
		t.Fatalf("ParseBytes failed: %v", err)
	}

	if report.HasFailures() {
		t.Error("Expected HasFailures() to return false")
	}
}

func TestPlaywrightParser_ParseBytes_Invalid(t *testing.T) {
	p := &PlaywrightParser{}
	if _, err := p.ParseBytes([]byte(`{"suites": [`)); err == nil {
		t.Error("Expected error for malformed JSON")
	}
}

func TestPlaywrightParser_Parse_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	data := []byte(`{"suites": [], "stats": {"expected": 1}}`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	p := &PlaywrightParser{}
	report, err := p.Parse(path)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if report.PassedTests != 1 {
		t.Errorf("Expected 1 passed test, got %d", report.PassedTests)
	}

	if _, err := p.Parse(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}
