package shared

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

const SHA256Prefix = "sha256="

// SignSHA256 returns the header value a sender computes for body: "sha256=<hex>".
func SignSHA256(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return SHA256Prefix + hex.EncodeToString(mac.Sum(nil))
}

// ValidSHA256Signature compares the full header against the expected value in
// constant time. An empty header never matches.
func ValidSHA256Signature(secret string, body []byte, header string) bool {
	if header == "" {
		return false
	}
	expected := SignSHA256(secret, body)
	return hmac.Equal([]byte(expected), []byte(header))
}
