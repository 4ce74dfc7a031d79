package github

import "hookwatch/internal/providers/shared"

// VerifySignature checks an X-Hub-Signature-256 header. An empty secret
// disables verification; callers decide whether that is acceptable.
func VerifySignature(body []byte, header, secret string) bool {
	if secret == "" {
		return true
	}
	if header == "" {
		return false
	}
	return shared.ValidSHA256Signature(secret, body, header)
}
