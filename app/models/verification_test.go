package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerification_GracePeriod(t *testing.T) {
	now := time.Now()
	grace := 30 * 24 * time.Hour

	in15 := now.Add(15 * 24 * time.Hour)
	v := &Verification{Status: VerificationStatusApproved, ExpiresAt: &in15}

	assert.True(t, v.IsInGracePeriod(now, grace))
	assert.False(t, v.IsExpired(now))
	assert.Equal(t, VerificationStatusRenewalRequired, v.EffectiveStatus(now, grace))

	yesterday := now.Add(-24 * time.Hour)
	v.ExpiresAt = &yesterday
	assert.True(t, v.IsExpired(now))
	assert.False(t, v.IsInGracePeriod(now, grace), "expired is past the grace window")
	assert.Equal(t, VerificationStatusExpired, v.EffectiveStatus(now, grace))

	in90 := now.Add(90 * 24 * time.Hour)
	v.ExpiresAt = &in90
	assert.False(t, v.IsInGracePeriod(now, grace))
	assert.Equal(t, VerificationStatusApproved, v.EffectiveStatus(now, grace))
}

func TestVerification_EffectiveStatusNonApproved(t *testing.T) {
	now := time.Now()
	yesterday := now.Add(-24 * time.Hour)

	// A rejected verification never degrades by clock.
	v := &Verification{Status: VerificationStatusRejected, ExpiresAt: &yesterday}
	assert.Equal(t, VerificationStatusRejected, v.EffectiveStatus(now, time.Hour))

	v.Status = VerificationStatusPending
	v.ExpiresAt = nil
	assert.False(t, v.IsExpired(now))
	assert.Equal(t, VerificationStatusPending, v.EffectiveStatus(now, time.Hour))
}
