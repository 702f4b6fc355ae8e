// Package signing implements HMAC-SHA256 signing and verification of
// webhook payloads, and the canonical JSON form the signature covers.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// SignaturePrefix is the literal prefix carried by the X-Hub-Signature-256
// header, e.g. "sha256=<hex>".
const SignaturePrefix = "sha256="

// Canonicalize re-serializes a decoded JSON document into its canonical,
// compact byte form: no added whitespace, map keys in sorted order. Signing
// the parsed-and-reserialized payload rather than the raw request body is a
// deliberate, documented choice (see Sign) rather than an oversight.
func Canonicalize(payload map[string]interface{}) ([]byte, error) {
	return json.Marshal(payload)
}

// Sign computes the lowercase-hex HMAC-SHA256 of body over secret.
//
// The body signed on the inbound path is the canonical JSON form of the
// parsed payload, not the raw request bytes. A sender that signs the exact
// bytes it transmits (including whitespace) will not verify here; this
// matches the behavior this service was modeled on and is kept rather than
// changed to raw-byte signing.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the HMAC over body with secret and compares it against
// providedHex in constant time. providedHex may carry the "sha256=" prefix;
// it is stripped before comparison.
func Verify(body []byte, providedHex string, secret string) bool {
	providedHex = strings.TrimPrefix(providedHex, SignaturePrefix)
	expected := Sign(body, secret)
	return hmac.Equal([]byte(expected), []byte(providedHex))
}
