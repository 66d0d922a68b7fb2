package failure

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kamilpajak/fring/pkg/models"
)

// ErrInvalidInput is returned when analysis is requested for a test that
// did not fail. Caller contract violation, always fatal.
var ErrInvalidInput = errors.New("test result is not a failure with an error")

var authMethodPattern = regexp.MustCompile(`(?i)\b(bearer|basic|digest|oauth2?|api[-_ ]?key)\b`)

// Analyze classifies a failed test result into a FailureAnalysis.
// It is pure and safe to call concurrently.
func Analyze(res *models.TestResult) (*FailureAnalysis, error) {
	if res == nil || res.Status != models.StatusFailed || res.Error == nil || res.Error.Message == "" {
		return nil, ErrInvalidInput
	}

	parsed := ParseErrorMessage(res.Error.Message)
	analysis := &FailureAnalysis{Type: parsed.Type}

	switch parsed.Type {
	case TypeAssertion:
		classifyAssertion(analysis, parsed)
	case TypeNetwork:
		classifyNetwork(analysis, parsed)
	case TypeTimeout:
		classifyTimeout(analysis, parsed)
	case TypeAuth:
		classifyAuth(analysis, parsed)
	case TypeSelector:
		classifySelector(analysis, parsed)
	case TypeNavigation:
		classifyNavigation(analysis, parsed)
	case TypeValidation:
		analysis.Specific.Validation = &ValidationError{Field: parsed.Field}
		analysis.PotentialFixes = append(analysis.PotentialFixes, Fix{
			Description: fmt.Sprintf("check the value sent for field %q against the current spec", parsed.Field),
		})
	default:
		analysis.PotentialFixes = append(analysis.PotentialFixes, Fix{
			Description: "unrecognized failure pattern: inspect the raw error output",
		})
	}

	analysis.Confidence = score(parsed)
	analysis.Context = extractContext(res)
	return analysis, nil
}

func classifyAssertion(a *FailureAnalysis, p ParsedError) {
	kind := AssertionValue
	switch {
	case strings.Contains(p.Message, "toBeVisible"):
		kind = AssertionVisibility
	case strings.Contains(p.Message, "toHaveText"), strings.Contains(p.Message, "toContainText"):
		kind = AssertionTextContent
	case strings.Contains(p.Message, "toHaveAttribute"):
		kind = AssertionAttribute
	case strings.Contains(p.Message, "toHaveCount"):
		kind = AssertionCount
	}
	a.Specific.Assertion = &AssertionError{Kind: kind, Expected: p.Expected, Actual: p.Actual}

	switch kind {
	case AssertionVisibility:
		a.PotentialFixes = append(a.PotentialFixes, Fix{Description: "wait for the element to become visible before asserting"})
	case AssertionTextContent:
		a.PotentialFixes = append(a.PotentialFixes, Fix{Description: "update the expected text to match the current response"})
	case AssertionCount:
		a.PotentialFixes = append(a.PotentialFixes, Fix{Description: "update the expected element count"})
	default:
		a.PotentialFixes = append(a.PotentialFixes, Fix{Description: "update the expected value to match the current API behavior"})
	}
}

func classifyNetwork(a *FailureAnalysis, p ParsedError) {
	lower := strings.ToLower(p.Message)
	netErr := &NetworkError{StatusCode: p.StatusCode, Method: p.Method, URL: p.URL}
	switch {
	case strings.Contains(lower, "econnrefused"), strings.Contains(lower, "connection refused"):
		netErr.Kind = NetworkConnectionRefused
		a.PotentialFixes = append(a.PotentialFixes, Fix{Description: "verify the target service is running and reachable"})
	case strings.Contains(lower, "enotfound"), strings.Contains(lower, "eai_again"), strings.Contains(lower, "getaddrinfo"):
		netErr.Kind = NetworkDNSFailure
		a.PotentialFixes = append(a.PotentialFixes, Fix{Description: "check the hostname in the base URL configuration"})
	case strings.Contains(lower, "ssl"), strings.Contains(lower, "certificate"), strings.Contains(lower, "cert_"):
		netErr.Kind = NetworkSSLError
		a.PotentialFixes = append(a.PotentialFixes, Fix{Description: "check the TLS certificate of the target host"})
	default:
		netErr.Kind = NetworkHTTPError
		switch p.StatusCode {
		case 404:
			a.PotentialFixes = append(a.PotentialFixes, Fix{Description: "verify the endpoint exists in the current API spec"})
		case 429:
			a.PotentialFixes = append(a.PotentialFixes, Fix{Description: "add backoff between requests: the API is rate limiting"})
		case 500, 502, 503, 504:
			a.PotentialFixes = append(a.PotentialFixes, Fix{Description: "check server logs: the API returned a server error"})
		default:
			a.PotentialFixes = append(a.PotentialFixes, Fix{Description: "compare the request against the current API spec"})
		}
	}
	a.Specific.Network = netErr
}

func classifyTimeout(a *FailureAnalysis, p ParsedError) {
	op := TimeoutAction
	lower := strings.ToLower(p.Message)
	switch {
	case p.Selector != "" || strings.Contains(lower, "selector") || strings.Contains(lower, "locator"):
		op = TimeoutSelector
	case strings.Contains(lower, "navigation"), strings.Contains(lower, "goto"):
		op = TimeoutNavigation
	}
	a.Specific.Timeout = &TimeoutError{Operation: op, TimeoutMS: p.TimeoutMS, Selector: p.Selector}
	a.PotentialFixes = append(a.PotentialFixes, Fix{
		Description: fmt.Sprintf("increase the timeout beyond %dms", p.TimeoutMS),
		Automated:   true,
	})
}

func classifyAuth(a *FailureAnalysis, p ParsedError) {
	lower := strings.ToLower(p.Message)
	authErr := &AuthError{StatusCode: p.StatusCode}
	switch {
	case strings.Contains(lower, "expired"):
		authErr.Kind = AuthTokenExpired
		a.PotentialFixes = append(a.PotentialFixes, Fix{Description: "refresh the auth token before the test runs"})
	case strings.Contains(lower, "invalid credentials"), strings.Contains(lower, "invalid username or password"):
		authErr.Kind = AuthInvalidCredentials
		a.PotentialFixes = append(a.PotentialFixes, Fix{Description: "update the test credentials"})
	case p.StatusCode == 403:
		authErr.Kind = AuthForbidden
		a.PotentialFixes = append(a.PotentialFixes, Fix{Description: "check the permissions of the test account"})
	default:
		authErr.Kind = AuthUnauthorized
		a.PotentialFixes = append(a.PotentialFixes, Fix{Description: "verify the auth setup against the current security schemes"})
	}
	if m := authMethodPattern.FindStringSubmatch(p.Message); m != nil {
		authErr.AuthMethod = strings.ToLower(m[1])
	}
	a.Specific.Auth = authErr
}

func classifySelector(a *FailureAnalysis, p ParsedError) {
	lower := strings.ToLower(p.Message)
	reason := SelectorNotFound
	switch {
	case strings.Contains(lower, "hidden"), strings.Contains(lower, "not visible"):
		reason = SelectorHidden
	case strings.Contains(lower, "strict mode violation"), strings.Contains(lower, "resolved to"):
		reason = SelectorMultipleFound
	case strings.Contains(lower, "detached"), strings.Contains(lower, "not attached"):
		reason = SelectorDetached
	}
	a.Specific.Selector = &SelectorError{Reason: reason, Selector: p.Selector, Kind: p.SelectorKind}
	a.PotentialFixes = append(a.PotentialFixes, Fix{
		Description: "update the selector to match the current page structure",
	})
}

func classifyNavigation(a *FailureAnalysis, p ParsedError) {
	lower := strings.ToLower(p.Message)
	reason := NavigationNetwork
	switch {
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		reason = NavigationTimeout
	case strings.Contains(lower, "ssl"), strings.Contains(lower, "cert"):
		reason = NavigationSSL
	}
	a.Specific.Navigation = &NavigationError{Reason: reason, URL: p.URL}
	a.PotentialFixes = append(a.PotentialFixes, Fix{
		Description: "verify the URL is reachable from the test environment",
	})
}

// Base confidence per failure type. Types whose matchers extract a
// concrete value start higher; Unknown always stays below 0.5.
var baseConfidence = map[Type]float64{
	TypeAssertion:  0.6,
	TypeNetwork:    0.55,
	TypeTimeout:    0.7,
	TypeAuth:       0.6,
	TypeSelector:   0.6,
	TypeNavigation: 0.55,
	TypeValidation: 0.65,
	TypeUnknown:    0.2,
}

// score computes confidence: a base per type plus a bonus for every
// structured field the matcher extracted, capped at 1.0.
func score(p ParsedError) float64 {
	confidence := baseConfidence[p.Type]
	for _, extracted := range []bool{
		p.StatusCode != 0,
		p.TimeoutMS != 0,
		p.Selector != "",
		p.URL != "",
		p.Method != "",
		p.Field != "",
		p.Expected != "",
		p.Actual != "",
	} {
		if extracted {
			confidence += 0.08
		}
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

// extractContext pulls location and artifacts from the test result.
// Best-effort: missing attachments are not an error.
func extractContext(res *models.TestResult) Context {
	ctx := Context{
		TestFile:  res.TestPath,
		Timestamp: time.Now().UTC(),
	}
	if res.Error.Location != nil {
		if res.Error.Location.File != "" {
			ctx.TestFile = res.Error.Location.File
		}
		ctx.LineNumber = res.Error.Location.Line
	}
	for _, att := range res.Attachments {
		switch {
		case strings.HasPrefix(att.ContentType, "image/"), strings.Contains(att.Name, "screenshot"):
			ctx.Screenshots = append(ctx.Screenshots, att.Path)
		case strings.Contains(att.Name, "trace"), strings.HasSuffix(att.Path, ".zip"):
			ctx.Traces = append(ctx.Traces, att.Path)
		}
	}
	return ctx
}
