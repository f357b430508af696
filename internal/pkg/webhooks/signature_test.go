package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func signPayment(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func signDigest(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyPaymentSignature(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	secret := "whsec_test"

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"valid signature", signPayment(payload, secret, now), true},
		{"wrong secret", signPayment(payload, "whsec_other", now), false},
		{"tampered payload", signPayment([]byte(`{"id":"evt_2"}`), secret, now), false},
		{"stale timestamp", signPayment(payload, secret, now.Add(-10*time.Minute)), false},
		{"future timestamp", signPayment(payload, secret, now.Add(10*time.Minute)), false},
		{"empty header", "", false},
		{"garbage header", "t=abc,v1=zz", false},
		{"missing v1", fmt.Sprintf("t=%d", now.Unix()), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifyPaymentSignature(payload, tt.header, secret, DefaultSignatureTolerance, now)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerifyPaymentSignature_MultipleVersions(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"

	// A rotated-secret header carries an old v1 next to the valid one.
	valid := signPayment(payload, secret, now)
	header := fmt.Sprintf("%s,v1=%s", valid, signDigest(payload, "whsec_retired"))
	assert.True(t, VerifyPaymentSignature(payload, header, secret, DefaultSignatureTolerance, now))
}

func TestVerifyDigestSignature(t *testing.T) {
	payload := []byte(`{"type":"applicantReviewed","applicantId":"app_1"}`)
	secret := "sumsub_secret"

	assert.True(t, VerifyDigestSignature(payload, signDigest(payload, secret), secret))
	assert.False(t, VerifyDigestSignature(payload, signDigest(payload, "wrong"), secret))
	assert.False(t, VerifyDigestSignature(payload, "not-hex", secret))
	assert.False(t, VerifyDigestSignature(payload, "", secret))
	assert.False(t, VerifyDigestSignature(payload, signDigest(payload, secret), ""))
}
