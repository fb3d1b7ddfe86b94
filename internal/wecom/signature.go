// Package wecom implements the WeCom callback protocol (signature
// verification, payload encryption) and the outbound messaging API.
package wecom

import (
	"crypto/sha1"
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"

	"github.com/wecom-tools/quarkbot/internal/platform/logutil"
)

// Signature computes the callback signature: the SHA-1 of the
// lexicographically sorted concatenation of token, timestamp, nonce and
// the payload content, as lowercase hex.
func Signature(token, timestamp, nonce, content string) string {
	parts := []string{token, timestamp, nonce, content}
	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

// Verifier checks callback signatures against the configured token.
type Verifier struct {
	token  string
	logger *slog.Logger
}

// NewVerifier creates a verifier. An empty token disables verification:
// every signature is accepted.
func NewVerifier(token string, logger *slog.Logger) *Verifier {
	return &Verifier{
		token:  token,
		logger: logutil.NoopIfNil(logger),
	}
}

// Verify reports whether the presented signature matches the expected one.
// The comparison is case-insensitive. A mismatch is logged with both values.
func (v *Verifier) Verify(timestamp, nonce, content, signature string) bool {
	if v.token == "" {
		return true
	}

	want := Signature(v.token, timestamp, nonce, content)
	if !strings.EqualFold(want, signature) {
		v.logger.Warn("callback signature mismatch",
			"expected", want,
			"received", signature,
		)
		return false
	}
	return true
}
