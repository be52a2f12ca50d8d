// Package signature implements webhook payload signing.
//
// Payloads are signed with HMAC-SHA256 over the raw JSON body using the
// merchant's secret key, and the hex digest is sent in the
// X-Hamsukypay-Signature header so receivers can verify authenticity.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

const (
	// HeaderSignature carries the hex HMAC-SHA256 digest of the body.
	HeaderSignature = "X-Hamsukypay-Signature"
	// HeaderEvent carries the event type of the delivery.
	HeaderEvent = "X-Hamsukypay-Event"
)

// Sign computes the hex-encoded HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is a valid signature for payload under secret.
// Comparison is constant time.
func Verify(secret string, payload []byte, sig string) bool {
	expected, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expected)
}
