package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_UnknownDriver(t *testing.T) {
	m := NewManager("stripe")

	_, err := m.Driver("paypal")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownDriver)
	assert.Contains(t, err.Error(), "paypal")

	_, err = m.SubscriptionDriver("paypal")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestManager_DefaultResolution(t *testing.T) {
	m := NewManager("fake")
	m.Extend("fake", func() (PaymentGateway, error) {
		return NewFakeDriver(), nil
	})

	driver, err := m.Driver("")
	require.NoError(t, err)
	assert.NotNil(t, driver)

	named, err := m.Driver("fake")
	require.NoError(t, err)
	assert.Same(t, driver, named, "empty name and default name resolve to the same instance")
}

func TestManager_CachesInstances(t *testing.T) {
	m := NewManager("fake")

	calls := 0
	m.Extend("fake", func() (PaymentGateway, error) {
		calls++
		return NewFakeDriver(), nil
	})

	first, err := m.Driver("fake")
	require.NoError(t, err)
	second, err := m.Driver("fake")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls, "factory runs once per name")
}

func TestManager_ExtendOverwrites(t *testing.T) {
	m := NewManager("fake")

	original := NewFakeDriver()
	m.Extend("fake", func() (PaymentGateway, error) { return original, nil })

	resolved, err := m.Driver("fake")
	require.NoError(t, err)
	assert.Same(t, original, resolved)

	replacement := NewFakeDriver()
	m.Extend("fake", func() (PaymentGateway, error) { return replacement, nil })

	resolved, err = m.Driver("fake")
	require.NoError(t, err)
	assert.Same(t, replacement, resolved, "re-registering drops the cached instance")
}

func TestManager_SubscriptionDriver(t *testing.T) {
	m := NewManager("fake")
	m.ExtendSubscription("fake", func() (SubscriptionGateway, error) {
		return NewFakeDriver(), nil
	})

	driver, err := m.SubscriptionDriver("")
	require.NoError(t, err)
	assert.NotNil(t, driver)
}
