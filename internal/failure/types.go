// Package failure classifies raw test-failure output into a typed taxonomy.
package failure

import "time"

// Type is the top-level failure classification.
type Type string

const (
	TypeAssertion  Type = "assertion"
	TypeNetwork    Type = "network"
	TypeTimeout    Type = "timeout"
	TypeAuth       Type = "auth"
	TypeSelector   Type = "selector"
	TypeNavigation Type = "navigation"
	TypeValidation Type = "validation"
	TypeUnknown    Type = "unknown"
)

// SelectorKind is the dialect of a selector string.
type SelectorKind string

const (
	SelectorCSS   SelectorKind = "css"
	SelectorXPath SelectorKind = "xpath"
)

// ParsedError is the structured view of a raw error message after the
// ordered matchers ran. Fields are populated per matched type.
type ParsedError struct {
	Type         Type         `json:"type"`
	Message      string       `json:"message"`
	MatchedRule  string       `json:"matched_rule,omitempty"`
	StatusCode   int          `json:"status_code,omitempty"`
	StatusText   string       `json:"status_text,omitempty"`
	Method       string       `json:"method,omitempty"`
	URL          string       `json:"url,omitempty"`
	TimeoutMS    int          `json:"timeout_ms,omitempty"`
	Selector     string       `json:"selector,omitempty"`
	SelectorKind SelectorKind `json:"selector_kind,omitempty"`
	Field        string       `json:"field,omitempty"`
	Expected     string       `json:"expected,omitempty"`
	Actual       string       `json:"actual,omitempty"`
}

// Assertion subtypes.
type AssertionKind string

const (
	AssertionVisibility  AssertionKind = "visibility"
	AssertionTextContent AssertionKind = "text_content"
	AssertionAttribute   AssertionKind = "attribute"
	AssertionCount       AssertionKind = "count"
	AssertionValue       AssertionKind = "value"
)

// Network subtypes.
type NetworkKind string

const (
	NetworkConnectionRefused NetworkKind = "connection_refused"
	NetworkDNSFailure        NetworkKind = "dns_failure"
	NetworkSSLError          NetworkKind = "ssl_error"
	NetworkHTTPError         NetworkKind = "http_error"
)

// Timeout operation kinds.
type TimeoutOperation string

const (
	TimeoutSelector   TimeoutOperation = "selector"
	TimeoutNavigation TimeoutOperation = "navigation"
	TimeoutAction     TimeoutOperation = "action"
)

// Auth subtypes.
type AuthKind string

const (
	AuthUnauthorized       AuthKind = "unauthorized"
	AuthForbidden          AuthKind = "forbidden"
	AuthTokenExpired       AuthKind = "token_expired"
	AuthInvalidCredentials AuthKind = "invalid_credentials"
)

// Selector failure reasons.
type SelectorReason string

const (
	SelectorNotFound      SelectorReason = "not_found"
	SelectorHidden        SelectorReason = "hidden"
	SelectorMultipleFound SelectorReason = "multiple_found"
	SelectorDetached      SelectorReason = "detached"
)

// Navigation failure reasons.
type NavigationReason string

const (
	NavigationTimeout NavigationReason = "timeout"
	NavigationNetwork NavigationReason = "network"
	NavigationSSL     NavigationReason = "ssl"
)

// Variant payloads. Exactly one is set on Specific, matching the
// analysis Type.
type AssertionError struct {
	Kind     AssertionKind `json:"kind"`
	Expected string        `json:"expected,omitempty"`
	Actual   string        `json:"actual,omitempty"`
}

type NetworkError struct {
	Kind       NetworkKind `json:"kind"`
	StatusCode int         `json:"status_code,omitempty"`
	Method     string      `json:"method,omitempty"`
	URL        string      `json:"url,omitempty"`
}

type TimeoutError struct {
	Operation TimeoutOperation `json:"operation"`
	TimeoutMS int              `json:"timeout_ms"`
	Selector  string           `json:"selector,omitempty"`
}

type AuthError struct {
	Kind       AuthKind `json:"kind"`
	StatusCode int      `json:"status_code,omitempty"`
	AuthMethod string   `json:"auth_method,omitempty"`
}

type SelectorError struct {
	Reason   SelectorReason `json:"reason"`
	Selector string         `json:"selector,omitempty"`
	Kind     SelectorKind   `json:"kind,omitempty"`
}

type NavigationError struct {
	Reason NavigationReason `json:"reason"`
	URL    string           `json:"url,omitempty"`
}

type ValidationError struct {
	Field string `json:"field"`
}

// Specific is a one-of: the variant matching the failure type is set,
// the rest are nil.
type Specific struct {
	Assertion  *AssertionError  `json:"assertion,omitempty"`
	Network    *NetworkError    `json:"network,omitempty"`
	Timeout    *TimeoutError    `json:"timeout,omitempty"`
	Auth       *AuthError       `json:"auth,omitempty"`
	Selector   *SelectorError   `json:"selector,omitempty"`
	Navigation *NavigationError `json:"navigation,omitempty"`
	Validation *ValidationError `json:"validation,omitempty"`
}

// Context carries best-effort location and artifact information for a failure.
type Context struct {
	TestFile    string    `json:"test_file,omitempty"`
	LineNumber  int       `json:"line_number,omitempty"`
	Screenshots []string  `json:"screenshots,omitempty"`
	Traces      []string  `json:"traces,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Fix is a suggested remediation for a classified failure.
type Fix struct {
	Description string `json:"description"`
	Automated   bool   `json:"automated"`
}

// FailureAnalysis is the full classification of a single failed test.
// Derived purely from a TestResult; it carries no identity of its own.
type FailureAnalysis struct {
	Type           Type     `json:"type"`
	Specific       Specific `json:"specific"`
	Context        Context  `json:"context"`
	Confidence     float64  `json:"confidence"`
	PotentialFixes []Fix    `json:"potential_fixes,omitempty"`
}
