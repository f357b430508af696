package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// NewRepositories creates all repository instances from a DB handle.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Payment:      NewPaymentRepository(db),
		Webhook:      NewWebhookRepository(db),
		Verification: NewVerificationRepository(db),
		Subscription: NewSubscriptionRepository(db),
		Payable:      NewPayableRepository(db),
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetPaymentRepository returns the payment repository instance
func (f *Factory) GetPaymentRepository() PaymentRepository {
	return f.GetRepositories().Payment
}

// GetWebhookRepository returns the webhook repository instance
func (f *Factory) GetWebhookRepository() WebhookRepository {
	return f.GetRepositories().Webhook
}

// GetVerificationRepository returns the verification repository instance
func (f *Factory) GetVerificationRepository() VerificationRepository {
	return f.GetRepositories().Verification
}

// GetSubscriptionRepository returns the subscription repository instance
func (f *Factory) GetSubscriptionRepository() SubscriptionRepository {
	return f.GetRepositories().Subscription
}

// GetPayableRepository returns the payable repository instance
func (f *Factory) GetPayableRepository() PayableRepository {
	return f.GetRepositories().Payable
}

var (
	globalFactory     *Factory
	globalFactoryOnce sync.Once
)

// InitializeGlobalFactory sets up the process-wide factory at bootstrap.
func InitializeGlobalFactory(db *gorm.DB) *Factory {
	globalFactoryOnce.Do(func() {
		globalFactory = NewFactory(db)
	})
	return globalFactory
}

// GetGlobalFactory returns the process-wide factory.
func GetGlobalFactory() *Factory {
	return globalFactory
}
