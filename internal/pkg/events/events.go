package events

import (
	"context"
	"sync"

	"github.com/gofiber/fiber/v2/log"

	"github.com/FelixHartmann/Zahlwerk/app/models"
)

// Event is a domain fact that already happened. Listeners observe it;
// they can never veto or alter it.
type Event interface {
	EventName() string
}

// Listener reacts to one published event. Listener errors are logged and
// never propagate back into the publishing transaction.
type Listener func(ctx context.Context, event Event) error

// Dispatcher is a synchronous in-process event bus. Listeners run in
// subscription order on the publisher's goroutine.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{listeners: make(map[string][]Listener)}
}

// Subscribe registers a listener for the named event.
func (d *Dispatcher) Subscribe(eventName string, listener Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventName] = append(d.listeners[eventName], listener)
}

// Publish delivers the event to all listeners registered for its name.
func (d *Dispatcher) Publish(ctx context.Context, event Event) {
	d.mu.RLock()
	listeners := d.listeners[event.EventName()]
	d.mu.RUnlock()

	for _, listener := range listeners {
		if err := listener(ctx, event); err != nil {
			log.Errorf("[Events] Listener for %s failed: %v", event.EventName(), err)
		}
	}
}

// Event names.
const (
	PaymentCapturedName      = "payment.captured"
	PaymentFailedName        = "payment.failed"
	PaymentRefundedName      = "payment.refunded"
	PayableActivatedName     = "payable.activated"
	SubscriptionSyncedName   = "subscription.synced"
	VerificationApprovedName = "verification.approved"
	VerificationRejectedName = "verification.rejected"
)

type PaymentCaptured struct {
	PaymentID   uint
	PayerID     uint
	PayableKind string
	PayableID   uint
	Amount      models.Money
}

func (PaymentCaptured) EventName() string { return PaymentCapturedName }

type PaymentFailed struct {
	PaymentID uint
	PayerID   uint
	Reason    string
}

func (PaymentFailed) EventName() string { return PaymentFailedName }

type PaymentRefunded struct {
	PaymentID uint
	PayerID   uint
	Amount    models.Money
	Full      bool
}

func (PaymentRefunded) EventName() string { return PaymentRefundedName }

type PayableActivated struct {
	Kind    string
	ID      uint
	PayerID uint
}

func (PayableActivated) EventName() string { return PayableActivatedName }

type SubscriptionSynced struct {
	SubscriptionID uint
	UserID         uint
	Status         string
	Entitling      bool
}

func (SubscriptionSynced) EventName() string { return SubscriptionSyncedName }

type VerificationApproved struct {
	VerificationID uint
	UserID         uint
}

func (VerificationApproved) EventName() string { return VerificationApprovedName }

type VerificationRejected struct {
	VerificationID uint
	UserID         uint
	Reason         string
}

func (VerificationRejected) EventName() string { return VerificationRejectedName }
