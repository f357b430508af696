package gateway

import (
	"fmt"
	"sync"
)

// Factory lazily builds a payment driver; registered at config time.
type Factory func() (PaymentGateway, error)

// SubscriptionFactory lazily builds a subscription driver.
type SubscriptionFactory func() (SubscriptionGateway, error)

// Manager resolves gateway drivers by configured name so callers never
// depend on concrete provider types. Instances are cached per name for
// the lifetime of the manager and constructed on first use.
type Manager struct {
	mu sync.Mutex

	defaultName string

	factories    map[string]Factory
	subFactories map[string]SubscriptionFactory

	drivers    map[string]PaymentGateway
	subDrivers map[string]SubscriptionGateway
}

// NewManager creates a manager whose empty-name lookups resolve to
// defaultName.
func NewManager(defaultName string) *Manager {
	return &Manager{
		defaultName:  defaultName,
		factories:    make(map[string]Factory),
		subFactories: make(map[string]SubscriptionFactory),
		drivers:      make(map[string]PaymentGateway),
		subDrivers:   make(map[string]SubscriptionGateway),
	}
}

// DefaultName returns the name empty lookups resolve to.
func (m *Manager) DefaultName() string {
	return m.defaultName
}

// Extend registers a payment driver factory under name. Re-registering the
// same name overwrites (last registration wins) and drops any cached
// instance, so test fakes can be substituted without touching call sites.
func (m *Manager) Extend(name string, factory Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[name] = factory
	delete(m.drivers, name)
}

// ExtendSubscription registers a subscription driver factory under name.
func (m *Manager) ExtendSubscription(name string, factory SubscriptionFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subFactories[name] = factory
	delete(m.subDrivers, name)
}

// Driver resolves a payment driver. An empty name resolves the default.
func (m *Manager) Driver(name string) (PaymentGateway, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" {
		name = m.defaultName
	}
	if driver, ok := m.drivers[name]; ok {
		return driver, nil
	}
	factory, ok := m.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
	driver, err := factory()
	if err != nil {
		return nil, fmt.Errorf("building driver %q: %w", name, err)
	}
	m.drivers[name] = driver
	return driver, nil
}

// SubscriptionDriver resolves a subscription driver. An empty name
// resolves the default.
func (m *Manager) SubscriptionDriver(name string) (SubscriptionGateway, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" {
		name = m.defaultName
	}
	if driver, ok := m.subDrivers[name]; ok {
		return driver, nil
	}
	factory, ok := m.subFactories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
	driver, err := factory()
	if err != nil {
		return nil, fmt.Errorf("building subscription driver %q: %w", name, err)
	}
	m.subDrivers[name] = driver
	return driver, nil
}
