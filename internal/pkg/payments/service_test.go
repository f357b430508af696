package payments

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/FelixHartmann/Zahlwerk/app/models"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/events"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/gateway"
)

type memPaymentRepo struct {
	nextID   uint
	payments map[uint]*models.Payment
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{payments: make(map[uint]*models.Payment)}
}

func (r *memPaymentRepo) Create(payment *models.Payment) error {
	r.nextID++
	payment.ID = r.nextID
	payment.CreatedAt = time.Now()
	r.payments[payment.ID] = payment
	return nil
}

func (r *memPaymentRepo) GetByID(id uint) (*models.Payment, error) {
	payment, ok := r.payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *payment
	return &copied, nil
}

func (r *memPaymentRepo) GetByProviderRef(provider, providerRef string) (*models.Payment, error) {
	for _, payment := range r.payments {
		if payment.Provider == provider && payment.ProviderRef == providerRef {
			copied := *payment
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memPaymentRepo) Update(payment *models.Payment) error {
	r.payments[payment.ID] = payment
	return nil
}

func (r *memPaymentRepo) TransitionStatus(id uint, from []models.PaymentStatus, to models.PaymentStatus, updates map[string]interface{}) (bool, error) {
	payment, ok := r.payments[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, status := range from {
		if payment.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	payment.Status = to
	if v, ok := updates["failure_reason"]; ok {
		payment.FailureReason = v.(string)
	}
	if v, ok := updates["captured_at"]; ok {
		t := v.(time.Time)
		payment.CapturedAt = &t
	}
	return true, nil
}

func (r *memPaymentRepo) AddRefund(id uint, amount int64) (bool, error) {
	payment, ok := r.payments[id]
	if !ok {
		return false, nil
	}
	if payment.Status != models.PaymentStatusCaptured && payment.Status != models.PaymentStatusRefunded {
		return false, nil
	}
	if payment.RefundedAmount+amount > payment.Amount {
		return false, nil
	}
	payment.RefundedAmount += amount
	if payment.RefundedAmount >= payment.Amount {
		payment.Status = models.PaymentStatusRefunded
	}
	return true, nil
}

func (r *memPaymentRepo) List(offset, limit int) ([]models.Payment, error) { return nil, nil }

func (r *memPaymentRepo) CountByStatus(status models.PaymentStatus) (int64, error) { return 0, nil }

type memPayableRepo struct {
	ads map[uint]*models.Ad
}

func newMemPayableRepo(ids ...uint) *memPayableRepo {
	repo := &memPayableRepo{ads: make(map[uint]*models.Ad)}
	for _, id := range ids {
		repo.ads[id] = &models.Ad{ID: id}
	}
	return repo
}

func (r *memPayableRepo) Resolve(kind string, id uint) (models.Activatable, error) {
	if kind != models.PayableTypeAd {
		return nil, fmt.Errorf("unknown payable kind %q", kind)
	}
	ad, ok := r.ads[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return ad, nil
}

func (r *memPayableRepo) Activate(kind string, id uint) (bool, error) {
	ad, ok := r.ads[id]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if ad.Active {
		return false, nil
	}
	ad.Active = true
	now := time.Now()
	ad.ActivatedAt = &now
	return true, nil
}

type memSubRepo struct {
	nextID uint
	subs   map[string]*models.Subscription
}

func newMemSubRepo() *memSubRepo {
	return &memSubRepo{subs: make(map[string]*models.Subscription)}
}

func (r *memSubRepo) UpsertByProviderRef(sub *models.Subscription) error {
	key := sub.Provider + "/" + sub.ProviderRef
	if existing, ok := r.subs[key]; ok {
		sub.ID = existing.ID
	} else {
		r.nextID++
		sub.ID = r.nextID
	}
	r.subs[key] = sub
	return nil
}

func (r *memSubRepo) GetByProviderRef(provider, providerRef string) (*models.Subscription, error) {
	sub, ok := r.subs[provider+"/"+providerRef]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *sub
	return &copied, nil
}

func (r *memSubRepo) ListByUser(userID uint) ([]models.Subscription, error) { return nil, nil }

type fixture struct {
	service  *Service
	payments *memPaymentRepo
	payables *memPayableRepo
	subs     *memSubRepo
	events   []events.Event
}

func newFixture(t *testing.T, payableIDs ...uint) *fixture {
	t.Helper()
	f := &fixture{
		payments: newMemPaymentRepo(),
		payables: newMemPayableRepo(payableIDs...),
		subs:     newMemSubRepo(),
	}

	dispatcher := events.NewDispatcher()
	for _, name := range []string{
		events.PaymentCapturedName, events.PaymentFailedName, events.PaymentRefundedName,
		events.PayableActivatedName, events.SubscriptionSyncedName,
	} {
		dispatcher.Subscribe(name, func(_ context.Context, event events.Event) error {
			f.events = append(f.events, event)
			return nil
		})
	}

	manager := gateway.NewManager(models.PaymentProviderFake)
	manager.Extend(models.PaymentProviderFake, func() (gateway.PaymentGateway, error) {
		return gateway.NewFakeDriver(), nil
	})

	f.service = NewService(f.payments, f.payables, f.subs, manager, dispatcher)
	return f
}

func (f *fixture) eventNames() []string {
	var names []string
	for _, event := range f.events {
		names = append(names, event.EventName())
	}
	return names
}

func TestCreatePayment(t *testing.T) {
	f := newFixture(t, 1)

	payment, err := f.service.CreatePayment(context.Background(), CreatePaymentInput{
		PayerID:       10,
		PayableKind:   models.PayableTypeAd,
		PayableID:     1,
		Amount:        models.MustMoney(4990, "EUR"),
		PaymentMethod: "pm_card_visa",
	})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusAuthorized, payment.Status)
	assert.Equal(t, models.PaymentProviderFake, payment.Provider)
	assert.NotEmpty(t, payment.ProviderRef)
	assert.NotEmpty(t, payment.IdempotencyKey)
	assert.False(t, f.payables.ads[1].Active, "authorization alone does not activate")
}

func TestCreatePayment_DeclinedCard(t *testing.T) {
	f := newFixture(t, 1)

	payment, err := f.service.CreatePayment(context.Background(), CreatePaymentInput{
		PayerID:       10,
		PayableKind:   models.PayableTypeAd,
		PayableID:     1,
		Amount:        models.MustMoney(4990, "EUR"),
		PaymentMethod: gateway.FakeMethodDeclined,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)
	assert.NotEmpty(t, payment.FailureReason)
}

func TestCreatePayment_AlreadyActivePayable(t *testing.T) {
	f := newFixture(t, 1)
	f.payables.ads[1].Active = true

	_, err := f.service.CreatePayment(context.Background(), CreatePaymentInput{
		PayerID:       10,
		PayableKind:   models.PayableTypeAd,
		PayableID:     1,
		Amount:        models.MustMoney(4990, "EUR"),
		PaymentMethod: "pm_card_visa",
	})
	assert.ErrorIs(t, err, gateway.ErrInvalidState)
}

func TestCapture_ActivatesPayableOnce(t *testing.T) {
	f := newFixture(t, 1)

	payment, err := f.service.CreatePayment(context.Background(), CreatePaymentInput{
		PayerID:       10,
		PayableKind:   models.PayableTypeAd,
		PayableID:     1,
		Amount:        models.MustMoney(4990, "EUR"),
		PaymentMethod: "pm_card_visa",
	})
	require.NoError(t, err)

	captured, err := f.service.Capture(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCaptured, captured.Status)
	assert.NotNil(t, captured.CapturedAt)
	assert.True(t, f.payables.ads[1].Active)
	assert.Equal(t, []string{events.PaymentCapturedName, events.PayableActivatedName}, f.eventNames())

	// A second capture attempt is rejected by the state machine.
	_, err = f.service.Capture(context.Background(), payment.ID)
	assert.ErrorIs(t, err, gateway.ErrInvalidState)
}

func TestApplyCapture_IdempotentAcrossReplays(t *testing.T) {
	f := newFixture(t, 1)

	payment, err := f.service.CreatePayment(context.Background(), CreatePaymentInput{
		PayerID:       10,
		PayableKind:   models.PayableTypeAd,
		PayableID:     1,
		Amount:        models.MustMoney(4990, "EUR"),
		PaymentMethod: "pm_card_visa",
	})
	require.NoError(t, err)

	require.NoError(t, f.service.ApplyCapture(context.Background(), payment.Provider, payment.ProviderRef, 4990, "EUR"))
	require.NoError(t, f.service.ApplyCapture(context.Background(), payment.Provider, payment.ProviderRef, 4990, "EUR"))

	stored, err := f.payments.GetByID(payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCaptured, stored.Status)
	assert.True(t, f.payables.ads[1].Active)
	assert.Equal(t, []string{events.PaymentCapturedName, events.PayableActivatedName}, f.eventNames(),
		"replay publishes nothing")
}

func TestApplyCapture_CurrencyMismatch(t *testing.T) {
	f := newFixture(t, 1)

	payment, err := f.service.CreatePayment(context.Background(), CreatePaymentInput{
		PayerID:       10,
		PayableKind:   models.PayableTypeAd,
		PayableID:     1,
		Amount:        models.MustMoney(4990, "EUR"),
		PaymentMethod: "pm_card_visa",
	})
	require.NoError(t, err)

	err = f.service.ApplyCapture(context.Background(), payment.Provider, payment.ProviderRef, 4990, "USD")
	assert.ErrorIs(t, err, models.ErrCurrencyMismatch)

	stored, _ := f.payments.GetByID(payment.ID)
	assert.Equal(t, models.PaymentStatusAuthorized, stored.Status, "mismatch applies nothing")
}

func TestApplyCapture_UnknownRefIgnored(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.service.ApplyCapture(context.Background(), "fake", "pi_missing", 100, "EUR"))
	assert.Empty(t, f.events)
}

func TestApplyFailure(t *testing.T) {
	f := newFixture(t, 1)

	payment, err := f.service.CreatePayment(context.Background(), CreatePaymentInput{
		PayerID:       10,
		PayableKind:   models.PayableTypeAd,
		PayableID:     1,
		Amount:        models.MustMoney(4990, "EUR"),
		PaymentMethod: "pm_card_visa",
	})
	require.NoError(t, err)

	require.NoError(t, f.service.ApplyFailure(context.Background(), payment.Provider, payment.ProviderRef, "card declined"))
	stored, _ := f.payments.GetByID(payment.ID)
	assert.Equal(t, models.PaymentStatusFailed, stored.Status)
	assert.Equal(t, "card declined", stored.FailureReason)
	assert.False(t, f.payables.ads[1].Active)

	// A late failure event after capture does not regress the state.
	f2 := newFixture(t, 2)
	payment2, err := f2.service.CreatePayment(context.Background(), CreatePaymentInput{
		PayerID:       10,
		PayableKind:   models.PayableTypeAd,
		PayableID:     2,
		Amount:        models.MustMoney(100, "EUR"),
		PaymentMethod: "pm_card_visa",
	})
	require.NoError(t, err)
	_, err = f2.service.Capture(context.Background(), payment2.ID)
	require.NoError(t, err)

	require.NoError(t, f2.service.ApplyFailure(context.Background(), payment2.Provider, payment2.ProviderRef, "late failure"))
	stored2, _ := f2.payments.GetByID(payment2.ID)
	assert.Equal(t, models.PaymentStatusCaptured, stored2.Status)
}

func TestRefund(t *testing.T) {
	f := newFixture(t, 1)

	payment, err := f.service.CreatePayment(context.Background(), CreatePaymentInput{
		PayerID:       10,
		PayableKind:   models.PayableTypeAd,
		PayableID:     1,
		Amount:        models.MustMoney(3000, "EUR"),
		PaymentMethod: "pm_card_visa",
	})
	require.NoError(t, err)

	// Refund before capture is invalid.
	_, err = f.service.Refund(context.Background(), payment.ID, 1000, "requested")
	assert.ErrorIs(t, err, gateway.ErrInvalidState)

	_, err = f.service.Capture(context.Background(), payment.ID)
	require.NoError(t, err)

	partial, err := f.service.Refund(context.Background(), payment.ID, 1000, "requested")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), partial.RefundedAmount)
	assert.Equal(t, models.PaymentStatusCaptured, partial.Status)

	full, err := f.service.Refund(context.Background(), payment.ID, 2000, "requested")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), full.RefundedAmount)
	assert.Equal(t, models.PaymentStatusRefunded, full.Status)

	// Over-refund beyond the captured amount is rejected up front.
	_, err = f.service.Refund(context.Background(), payment.ID, 1, "requested")
	assert.ErrorIs(t, err, gateway.ErrInvalidState)
}

func TestApplyRefund_CumulativeTotals(t *testing.T) {
	f := newFixture(t, 1)

	payment, err := f.service.CreatePayment(context.Background(), CreatePaymentInput{
		PayerID:       10,
		PayableKind:   models.PayableTypeAd,
		PayableID:     1,
		Amount:        models.MustMoney(3000, "EUR"),
		PaymentMethod: "pm_card_visa",
	})
	require.NoError(t, err)
	_, err = f.service.Capture(context.Background(), payment.ID)
	require.NoError(t, err)

	// Provider reports cumulative totals; replays carry the same total.
	require.NoError(t, f.service.ApplyRefund(context.Background(), payment.Provider, payment.ProviderRef, 1000))
	require.NoError(t, f.service.ApplyRefund(context.Background(), payment.Provider, payment.ProviderRef, 1000))
	stored, _ := f.payments.GetByID(payment.ID)
	assert.Equal(t, int64(1000), stored.RefundedAmount)

	require.NoError(t, f.service.ApplyRefund(context.Background(), payment.Provider, payment.ProviderRef, 3000))
	stored, _ = f.payments.GetByID(payment.ID)
	assert.Equal(t, int64(3000), stored.RefundedAmount)
	assert.Equal(t, models.PaymentStatusRefunded, stored.Status)
}

func TestSyncSubscription(t *testing.T) {
	f := newFixture(t)

	sub := &models.Subscription{
		Provider:    models.PaymentProviderFake,
		ProviderRef: "sub_1",
		PlanRef:     "plan_gold",
		Status:      models.SubscriptionStatusActive,
	}
	require.NoError(t, f.service.SyncSubscription(context.Background(), sub))
	require.NotZero(t, sub.ID)

	// The stored user link survives an update payload without one.
	stored := f.subs.subs[models.PaymentProviderFake+"/sub_1"]
	stored.UserID = 42

	update := &models.Subscription{
		Provider:    models.PaymentProviderFake,
		ProviderRef: "sub_1",
		PlanRef:     "plan_gold",
		Status:      models.SubscriptionStatusPastDue,
	}
	require.NoError(t, f.service.SyncSubscription(context.Background(), update))
	assert.Equal(t, uint(42), update.UserID)
	assert.Equal(t, models.SubscriptionStatusPastDue, f.subs.subs[models.PaymentProviderFake+"/sub_1"].Status)
}
