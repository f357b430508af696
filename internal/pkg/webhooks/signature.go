package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/FelixHartmann/Zahlwerk/app/models"
)

// ErrSignatureMismatch marks a webhook whose signature could not be
// verified against the shared secret. The record is persisted and marked
// failed before this error surfaces; it is never enqueued.
var ErrSignatureMismatch = errors.New("webhooks: signature mismatch")

// DefaultSignatureTolerance bounds how old a signed timestamp may be
// before the delivery is treated as a replay.
const DefaultSignatureTolerance = 5 * time.Minute

// VerifyPaymentSignature checks the "t=<unix>,v1=<hex>" signature header
// scheme used by the payment provider. The signed string is
// "<timestamp>.<raw body>" and the MAC is HMAC-SHA256 over it.
func VerifyPaymentSignature(payload []byte, signatureHeader, secret string, tolerance time.Duration, now time.Time) bool {
	header := strings.TrimSpace(signatureHeader)
	secret = strings.TrimSpace(secret)
	if header == "" || secret == "" {
		return false
	}

	var timestamp int64
	var signatures [][]byte
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return false
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(strings.ToLower(value))
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}
	if timestamp == 0 || len(signatures) == 0 {
		return false
	}

	if tolerance > 0 {
		age := now.Sub(time.Unix(timestamp, 0))
		if age > tolerance || age < -tolerance {
			return false
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return true
		}
	}
	return false
}

// VerifyDigestSignature checks the plain hex HMAC-SHA256 digest header
// scheme used by the verification provider.
func VerifyDigestSignature(payload []byte, signatureHeader, secret string) bool {
	header := strings.TrimSpace(signatureHeader)
	secret = strings.TrimSpace(secret)
	if header == "" || secret == "" {
		return false
	}

	decoded, err := hex.DecodeString(strings.ToLower(header))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decoded)
}

// VerifySignature dispatches to the provider's signature scheme. The fake
// provider accepts any signature so local development needs no secrets.
func VerifySignature(provider string, payload []byte, signatureHeader, secret string, now time.Time) bool {
	switch provider {
	case models.PaymentProviderFake:
		return true
	case models.VerificationProviderSumsub:
		return VerifyDigestSignature(payload, signatureHeader, secret)
	default:
		return VerifyPaymentSignature(payload, signatureHeader, secret, DefaultSignatureTolerance, now)
	}
}
