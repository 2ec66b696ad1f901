package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureVerifier checks a provider's signature over the raw webhook body.
type SignatureVerifier func(payload []byte, signatureHeader string) bool

// VerifyRazorpayWebhookSignature checks the X-Razorpay-Signature header:
// lowercase hex HMAC-SHA256 of the raw body under the webhook secret.
func VerifyRazorpayWebhookSignature(payload []byte, signatureHeader, webhookSecret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" || secret == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decodedSig)
}

// RazorpayVerifier binds the secret into a SignatureVerifier for the ingestor.
func RazorpayVerifier(webhookSecret string) SignatureVerifier {
	return func(payload []byte, signatureHeader string) bool {
		return VerifyRazorpayWebhookSignature(payload, signatureHeader, webhookSecret)
	}
}
