package failure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseErrorMessage_TimeoutWithSelector(t *testing.T) {
	p := ParseErrorMessage("Timeout 30000ms exceeded waiting for selector 'button.submit'")

	assert.Equal(t, TypeTimeout, p.Type)
	assert.Equal(t, 30000, p.TimeoutMS)
	assert.Contains(t, p.Selector, "submit")
	assert.Equal(t, SelectorCSS, p.SelectorKind)
}

func TestParseErrorMessage_TestTimeoutVariant(t *testing.T) {
	p := ParseErrorMessage("Test timeout of 5000ms exceeded")

	assert.Equal(t, TypeTimeout, p.Type)
	assert.Equal(t, 5000, p.TimeoutMS)
	assert.Empty(t, p.Selector)
}

func TestParseErrorMessage_HTTPStatusUnauthorized(t *testing.T) {
	p := ParseErrorMessage("Request failed: 401 Unauthorized for GET https://api.example.com/products")

	assert.Equal(t, TypeAuth, p.Type)
	assert.Equal(t, 401, p.StatusCode)
	assert.Equal(t, "GET", p.Method)
	assert.Equal(t, "https://api.example.com/products", p.URL)
}

func TestParseErrorMessage_HTTPStatusForbidden(t *testing.T) {
	p := ParseErrorMessage("403 Forbidden")

	assert.Equal(t, TypeAuth, p.Type)
	assert.Equal(t, 403, p.StatusCode)
}

func TestParseErrorMessage_HTTPPrefixForm(t *testing.T) {
	p := ParseErrorMessage("HTTP 404 returned from POST https://api.example.com/orders")

	assert.Equal(t, TypeNetwork, p.Type)
	assert.Equal(t, 404, p.StatusCode)
	assert.Equal(t, "POST", p.Method)
}

func TestParseErrorMessage_SelectorNotFound(t *testing.T) {
	p := ParseErrorMessage(`Unable to find element matching selector "#checkout-button"`)

	assert.Equal(t, TypeSelector, p.Type)
	assert.Equal(t, "#checkout-button", p.Selector)
	assert.Equal(t, SelectorCSS, p.SelectorKind)
}

func TestParseErrorMessage_XPathSelector(t *testing.T) {
	p := ParseErrorMessage(`No element found for selector "//div[@id='cart']"`)

	assert.Equal(t, TypeSelector, p.Type)
	assert.Equal(t, SelectorXPath, p.SelectorKind)
}

func TestParseErrorMessage_Navigation(t *testing.T) {
	p := ParseErrorMessage("Navigation to https://shop.example.com/checkout failed: net::ERR_CONNECTION_RESET")

	assert.Equal(t, TypeNavigation, p.Type)
	assert.Equal(t, "https://shop.example.com/checkout", p.URL)
}

func TestParseErrorMessage_Validation(t *testing.T) {
	p := ParseErrorMessage("Validation failed for field 'price': must be a positive number")

	assert.Equal(t, TypeValidation, p.Type)
	assert.Equal(t, "price", p.Field)
}

func TestParseErrorMessage_AssertionExpectedReceived(t *testing.T) {
	p := ParseErrorMessage("expect(received).toBe(expected)\nExpected: 201\nReceived: 409")

	assert.Equal(t, TypeAssertion, p.Type)
	assert.Equal(t, "201", p.Expected)
	assert.Equal(t, "409", p.Actual)
}

func TestParseErrorMessage_Unknown(t *testing.T) {
	p := ParseErrorMessage("Something went wrong")

	assert.Equal(t, TypeUnknown, p.Type)
	assert.Empty(t, p.MatchedRule)
}

func TestParseErrorMessage_StripsANSI(t *testing.T) {
	p := ParseErrorMessage("\x1b[31mTimeout 1000ms exceeded\x1b[0m")

	assert.Equal(t, TypeTimeout, p.Type)
	assert.NotContains(t, p.Message, "\x1b")
}

func TestParseErrorMessage_OrderHTTPBeforeAssertion(t *testing.T) {
	// A message carrying both an HTTP status and assertion keywords must
	// classify by the earlier rule.
	p := ParseErrorMessage("expect(status).toBe(200) but got 500 Internal Server Error")

	assert.Equal(t, TypeNetwork, p.Type)
	assert.Equal(t, 500, p.StatusCode)
}

func TestParseErrorMessage_TimeoutNotMistakenForHTTPStatus(t *testing.T) {
	p := ParseErrorMessage("Timeout 30000ms exceeded")

	assert.Equal(t, TypeTimeout, p.Type)
	assert.Zero(t, p.StatusCode)
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "red text", StripANSI("\x1b[31mred text\x1b[0m"))
	assert.Equal(t, "plain", StripANSI("plain"))
}
