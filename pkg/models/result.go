package models

// TestStatus represents the status of a test case
type TestStatus string

const (
	StatusPassed  TestStatus = "passed"
	StatusFailed  TestStatus = "failed"
	StatusSkipped TestStatus = "skipped"
)

// Location identifies where in a test file an error occurred.
type Location struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// TestError carries the raw failure output of a test case.
type TestError struct {
	Message  string    `json:"message"`
	Stack    string    `json:"stack,omitempty"`
	Location *Location `json:"location,omitempty"`
}

// Attachment is a file produced by a test run (screenshot, trace, video).
type Attachment struct {
	Name        string `json:"name"`
	Path        string `json:"path,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// TestResult represents a single executed test case
type TestResult struct {
	TestPath    string       `json:"test_path"`
	TestName    string       `json:"test_name"`
	Status      TestStatus   `json:"status"`
	DurationMS  int64        `json:"duration_ms,omitempty"`
	Retry       int          `json:"retry,omitempty"`
	Error       *TestError   `json:"error,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ID returns a stable identifier for the test within its suite.
func (r *TestResult) ID() string {
	if r.TestPath == "" {
		return r.TestName
	}
	return r.TestPath + "::" + r.TestName
}

// Report represents a normalized test report
type Report struct {
	Framework    string       `json:"framework"`
	TotalTests   int          `json:"total_tests"`
	PassedTests  int          `json:"passed_tests"`
	FailedTests  int          `json:"failed_tests"`
	SkippedTests int          `json:"skipped_tests"`
	DurationMS   int64        `json:"duration_ms,omitempty"`
	Results      []TestResult `json:"results"`
}

// HasFailures returns true if the report contains any failures
func (r *Report) HasFailures() bool {
	return r.FailedTests > 0
}

// FailedResults returns all failed test cases from the report
func (r *Report) FailedResults() []TestResult {
	var failed []TestResult
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			failed = append(failed, res)
		}
	}
	return failed
}
