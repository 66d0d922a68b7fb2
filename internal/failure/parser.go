package failure

import (
	"regexp"
	"strconv"
	"strings"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI removes ANSI escape sequences from s.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// stripControl drops non-printable control characters except newline and tab.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// Extraction helpers shared across rules.
var (
	urlPattern      = regexp.MustCompile(`https?://[^\s'")\]]+`)
	methodPattern   = regexp.MustCompile(`\b(GET|POST|PUT|PATCH|DELETE|HEAD|OPTIONS)\b`)
	selectorPattern = regexp.MustCompile(`(?i)(?:selector|locator)\s*\(?\s*['"]([^'"]+)['"]`)
	quotedPattern   = regexp.MustCompile(`['"]([^'"]{1,200})['"]`)
	expectedPattern = regexp.MustCompile(`(?m)^\s*Expected:?\s*(.+?)\s*$`)
	receivedPattern = regexp.MustCompile(`(?m)^\s*Received:?\s*(.+?)\s*$`)
)

func extractSelector(text string) (string, SelectorKind) {
	selector := ""
	if m := selectorPattern.FindStringSubmatch(text); m != nil {
		selector = m[1]
	} else if m := quotedPattern.FindStringSubmatch(text); m != nil {
		selector = m[1]
	}
	kind := SelectorCSS
	if strings.HasPrefix(selector, "//") || strings.HasPrefix(selector, "xpath=") {
		kind = SelectorXPath
	}
	if selector == "" {
		return "", ""
	}
	return selector, kind
}

// rule is one entry of the ordered matcher list: a predicate pattern and
// an extractor building the typed result. First matching rule wins.
type rule struct {
	name    string
	pattern *regexp.Regexp
	extract func(m []string, text string) ParsedError
}

var httpStatusPattern = regexp.MustCompile(
	`(?i)\b(?:HTTP\s+(\d{3})\b|(\d{3})\s+(Unauthorized|Forbidden|Not Found|Bad Request|Internal Server Error|Service Unavailable|Bad Gateway|Gateway Timeout|Too Many Requests|Conflict|Unprocessable Entity|Method Not Allowed|Not Acceptable))`)

var rules = []rule{
	{
		name:    "http_status",
		pattern: httpStatusPattern,
		extract: func(m []string, text string) ParsedError {
			raw := m[1]
			if raw == "" {
				raw = m[2]
			}
			status, _ := strconv.Atoi(raw)
			p := ParsedError{StatusCode: status, StatusText: m[3]}
			if status == 401 || status == 403 {
				p.Type = TypeAuth
			} else {
				p.Type = TypeNetwork
			}
			if mm := methodPattern.FindStringSubmatch(text); mm != nil {
				p.Method = mm[1]
			}
			if mm := urlPattern.FindString(text); mm != "" {
				p.URL = mm
			}
			return p
		},
	},
	{
		name:    "timeout",
		pattern: regexp.MustCompile(`(?i)\btime(?:d\s+)?out\s+(?:of\s+)?(\d+)\s*ms`),
		extract: func(m []string, text string) ParsedError {
			ms, _ := strconv.Atoi(m[1])
			p := ParsedError{Type: TypeTimeout, TimeoutMS: ms}
			p.Selector, p.SelectorKind = extractSelector(text)
			return p
		},
	},
	{
		name: "selector",
		pattern: regexp.MustCompile(
			`(?i)(?:no (?:element|node) (?:found|matches)|unable to (?:find|locate)|waiting for (?:selector|locator)|strict mode violation|resolved to \d+ elements|element is not (?:visible|attached)|element (?:is )?(?:hidden|detached))`),
		extract: func(m []string, text string) ParsedError {
			p := ParsedError{Type: TypeSelector}
			p.Selector, p.SelectorKind = extractSelector(text)
			return p
		},
	},
	{
		name: "navigation",
		pattern: regexp.MustCompile(
			`(?i)navigat(?:ion|ing|e)(?:\s+(?:to|failed|interrupted))?[^\n]*?(https?://[^\s'"]+)|(https?://[^\s'"]+)[^\n]*?navigation`),
		extract: func(m []string, text string) ParsedError {
			url := m[1]
			if url == "" {
				url = m[2]
			}
			return ParsedError{Type: TypeNavigation, URL: url}
		},
	},
	{
		name:    "validation",
		pattern: regexp.MustCompile(`(?i)Validation failed for field ['"]([^'"]+)['"]`),
		extract: func(m []string, text string) ParsedError {
			return ParsedError{Type: TypeValidation, Field: m[1]}
		},
	},
	{
		name:    "assertion",
		pattern: regexp.MustCompile(`expect\(|(?m)^\s*Expected:|(?m)^\s*Received:|\.to(?:Be|Have|Equal|Contain|Match)`),
		extract: func(m []string, text string) ParsedError {
			p := ParsedError{Type: TypeAssertion}
			if mm := expectedPattern.FindStringSubmatch(text); mm != nil {
				p.Expected = mm[1]
			}
			if mm := receivedPattern.FindStringSubmatch(text); mm != nil {
				p.Actual = mm[1]
			}
			return p
		},
	},
}

// ParseErrorMessage cleans raw failure output and applies the ordered
// matcher list. Unmatched input classifies as Unknown; parsing is total.
func ParseErrorMessage(raw string) ParsedError {
	clean := stripControl(StripANSI(raw))

	for _, r := range rules {
		if m := r.pattern.FindStringSubmatch(clean); m != nil {
			p := r.extract(m, clean)
			p.Message = clean
			p.MatchedRule = r.name
			return p
		}
	}
	return ParsedError{Type: TypeUnknown, Message: clean}
}
