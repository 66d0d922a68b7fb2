package healing

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/kamilpajak/fring/internal/failure"
)

var (
	digitsPattern     = regexp.MustCompile(`\d+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

const maxSignatureLen = 256

// NormalizeSignature canonicalizes an error message so that incidental
// variation (ANSI codes, timestamps, ports, durations) does not produce
// distinct fingerprints for the same underlying failure.
func NormalizeSignature(message string) string {
	s := failure.StripANSI(message)
	s = strings.ToLower(s)
	s = digitsPattern.ReplaceAllString(s, "#")
	s = whitespacePattern.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if len(s) > maxSignatureLen {
		s = s[:maxSignatureLen]
	}
	return s
}

// Fingerprint derives the deterministic cache key for a failure instance.
// Same test, same failure shape, same spec version: same key.
func Fingerprint(testID string, failureType failure.Type, message, specVersion string) string {
	h := sha256.New()
	for _, part := range []string{testID, string(failureType), NormalizeSignature(message), specVersion} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
