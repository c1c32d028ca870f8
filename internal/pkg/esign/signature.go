package esign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/ManuelReschke/ClientHub/internal/pkg/reconcile"
)

// Connect sends one header per active HMAC key: X-DocuSign-Signature-1, -2, ...
const SignatureHeaderPrefix = "X-DocuSign-Signature-"

var (
	ErrMissingSignature = errors.New("missing signature header")
	ErrBadSignature     = errors.New("signature mismatch")
)

// ComputeConnectSignature returns base64(HMAC-SHA256(secret, payload)).
func ComputeConnectSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyConnectSignature checks the payload against any of the supplied
// signature header values. It fails with an authentication error.
func VerifyConnectSignature(payload []byte, secret string, signatures ...string) error {
	const op = "docusign.verify"

	secret = strings.TrimSpace(secret)
	if secret == "" {
		return reconcile.Authentication(op, errors.New("no connect secret configured"))
	}

	expected, _ := base64.StdEncoding.DecodeString(ComputeConnectSignature(payload, secret))
	seen := false
	for _, sig := range signatures {
		sig = strings.TrimSpace(sig)
		if sig == "" {
			continue
		}
		seen = true
		decoded, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	if !seen {
		return reconcile.Authentication(op, ErrMissingSignature)
	}
	return reconcile.Authentication(op, ErrBadSignature)
}
