package github

import (
	"testing"

	"hookwatch/internal/providers/shared"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main"}`)
	valid := shared.SignSHA256("topsecret", body)

	tests := []struct {
		name   string
		header string
		secret string
		want   bool
	}{
		{"empty secret accepts anything", "sha256=deadbeef", "", true},
		{"empty secret accepts missing header", "", "", true},
		{"missing header rejected", "", "topsecret", false},
		{"valid header", valid, "topsecret", true},
		{"tampered header", valid[:len(valid)-2] + "00", "topsecret", false},
		{"wrong secret", valid, "other", false},
		{"not hex", "sha256=not-hex", "topsecret", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(body, tt.header, tt.secret); got != tt.want {
				t.Fatalf("got %v want %v", got, tt.want)
			}
		})
	}

	if VerifySignature(append(body, ' '), valid, "topsecret") {
		t.Fatalf("signature must cover the exact body bytes")
	}
}

func TestAdapterAuthorize(t *testing.T) {
	body := []byte(`{}`)
	a := NewAdapter("k")
	if !a.SignatureConfigured() {
		t.Fatalf("expected secret to be configured")
	}
	if !a.Authorize(body, shared.SignSHA256("k", body)) {
		t.Fatalf("expected valid signature to authorize")
	}
	if a.Authorize(body, "") {
		t.Fatalf("expected missing signature to be rejected")
	}
	if NewAdapter("").SignatureConfigured() {
		t.Fatalf("expected empty secret to disable verification")
	}
}
