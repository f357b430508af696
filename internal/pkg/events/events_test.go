package events

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FelixHartmann/Zahlwerk/app/models"
)

func TestDispatcher_PublishInOrder(t *testing.T) {
	d := NewDispatcher()

	var order []string
	d.Subscribe(PaymentCapturedName, func(_ context.Context, _ Event) error {
		order = append(order, "first")
		return nil
	})
	d.Subscribe(PaymentCapturedName, func(_ context.Context, _ Event) error {
		order = append(order, "second")
		return nil
	})

	d.Publish(context.Background(), PaymentCaptured{PaymentID: 1, Amount: models.MustMoney(500, "EUR")})
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestDispatcher_ListenerErrorDoesNotStopOthers(t *testing.T) {
	d := NewDispatcher()

	delivered := false
	d.Subscribe(PaymentFailedName, func(_ context.Context, _ Event) error {
		return fmt.Errorf("boom")
	})
	d.Subscribe(PaymentFailedName, func(_ context.Context, event Event) error {
		failed, ok := event.(PaymentFailed)
		require.True(t, ok)
		assert.Equal(t, "card declined", failed.Reason)
		delivered = true
		return nil
	})

	d.Publish(context.Background(), PaymentFailed{PaymentID: 2, Reason: "card declined"})
	assert.True(t, delivered)
}

func TestDispatcher_NoListenersIsNoop(t *testing.T) {
	d := NewDispatcher()
	d.Publish(context.Background(), PayableActivated{Kind: models.PayableTypeAd, ID: 7})
}
