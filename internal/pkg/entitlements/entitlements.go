package entitlements

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/FelixHartmann/Zahlwerk/internal/pkg/cache"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/events"
)

type Plan string

const (
	PlanBasic Plan = "basic"
	PlanPlus  Plan = "plus"
	PlanPro   Plan = "pro"
)

const cacheTTL = 10 * time.Minute

// Limits are the marketplace allowances a plan grants.
type Limits struct {
	MaxActiveAds    int
	MaxWishlistSize int
	FeaturedSlots   int
}

// LimitsFor returns the allowances for a given plan.
func LimitsFor(plan Plan) Limits {
	switch plan {
	case PlanPro:
		return Limits{MaxActiveAds: 100, MaxWishlistSize: 500, FeaturedSlots: 10}
	case PlanPlus:
		return Limits{MaxActiveAds: 25, MaxWishlistSize: 100, FeaturedSlots: 3}
	default:
		return Limits{MaxActiveAds: 5, MaxWishlistSize: 20, FeaturedSlots: 0}
	}
}

// NormalizePlan maps a stored plan string onto the closed plan set.
func NormalizePlan(raw string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(raw))) {
	case PlanPro:
		return PlanPro
	case PlanPlus:
		return PlanPlus
	default:
		return PlanBasic
	}
}

// CacheKey is where a user's computed entitlements live in the cache.
func CacheKey(userID uint) string {
	return fmt.Sprintf("entitlements:user:%d", userID)
}

// Invalidate drops the cached entitlements for a user so the next read
// recomputes them from the database.
func Invalidate(userID uint) {
	if userID == 0 {
		return
	}
	if err := cache.Delete(CacheKey(userID)); err != nil {
		log.Warnf("[Entitlements] Failed to invalidate cache for user %d: %v", userID, err)
	}
}

// CachePlan stores the computed plan for a user.
func CachePlan(userID uint, plan Plan) {
	if err := cache.Set(CacheKey(userID), string(plan), cacheTTL); err != nil {
		log.Warnf("[Entitlements] Failed to cache plan for user %d: %v", userID, err)
	}
}

// CachedPlan returns the cached plan for a user, or ok=false on miss.
func CachedPlan(userID uint) (Plan, bool) {
	val, err := cache.Get(CacheKey(userID))
	if err != nil {
		return PlanBasic, false
	}
	return NormalizePlan(val), true
}

// RegisterListeners subscribes the cache invalidation hooks. Any event
// that can change what a user is entitled to drops their cached plan.
func RegisterListeners(dispatcher *events.Dispatcher) {
	dispatcher.Subscribe(events.PayableActivatedName, func(ctx context.Context, event events.Event) error {
		if e, ok := event.(events.PayableActivated); ok {
			Invalidate(e.PayerID)
		}
		return nil
	})
	dispatcher.Subscribe(events.SubscriptionSyncedName, func(ctx context.Context, event events.Event) error {
		if e, ok := event.(events.SubscriptionSynced); ok {
			Invalidate(e.UserID)
		}
		return nil
	})
	dispatcher.Subscribe(events.PaymentRefundedName, func(ctx context.Context, event events.Event) error {
		if e, ok := event.(events.PaymentRefunded); ok && e.Full {
			Invalidate(e.PayerID)
		}
		return nil
	})
	dispatcher.Subscribe(events.VerificationApprovedName, func(ctx context.Context, event events.Event) error {
		if e, ok := event.(events.VerificationApproved); ok {
			Invalidate(e.UserID)
		}
		return nil
	})
	dispatcher.Subscribe(events.VerificationRejectedName, func(ctx context.Context, event events.Event) error {
		if e, ok := event.(events.VerificationRejected); ok {
			Invalidate(e.UserID)
		}
		return nil
	})
}
