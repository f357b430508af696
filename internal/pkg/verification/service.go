package verification

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/FelixHartmann/Zahlwerk/app/models"
	"github.com/FelixHartmann/Zahlwerk/app/repository"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/env"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/events"
)

// Config carries the verification validity windows. Both are read from
// the environment at bootstrap; grace is the renewal window leading up
// to expiry.
type Config struct {
	Validity time.Duration
	Grace    time.Duration
}

// ConfigFromEnv reads VERIFICATION_VALIDITY_DAYS and
// VERIFICATION_GRACE_DAYS with the documented defaults.
func ConfigFromEnv() Config {
	return Config{
		Validity: daysFromEnv("VERIFICATION_VALIDITY_DAYS", 365),
		Grace:    daysFromEnv("VERIFICATION_GRACE_DAYS", 30),
	}
}

func daysFromEnv(key string, def int) time.Duration {
	raw := env.GetEnv(key, strconv.Itoa(def))
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 {
		days = def
	}
	return time.Duration(days) * 24 * time.Hour
}

// Service owns the identity-verification lifecycle. Review outcomes come
// in through the webhook pipeline; status degradation over time happens
// via pure timestamp functions plus a periodic sweep.
type Service struct {
	repo       repository.VerificationRepository
	dispatcher *events.Dispatcher
	cfg        Config
	now        func() time.Time
}

func NewService(repo repository.VerificationRepository, dispatcher *events.Dispatcher, cfg Config) *Service {
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		cfg:        cfg,
		now:        time.Now,
	}
}

// WithClock overrides the clock, used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Start records a new pending verification for a user at the provider.
func (s *Service) Start(ctx context.Context, userID uint, provider, applicantID string) (*models.Verification, error) {
	_ = ctx
	if userID == 0 || applicantID == "" {
		return nil, fmt.Errorf("user id and applicant id are required")
	}
	if provider == "" {
		provider = models.VerificationProviderSumsub
	}

	verification := &models.Verification{
		UserID:              userID,
		Provider:            provider,
		ProviderApplicantID: applicantID,
		Status:              models.VerificationStatusPending,
	}
	if err := s.repo.Create(verification); err != nil {
		return nil, fmt.Errorf("creating verification: %w", err)
	}
	return verification, nil
}

// ApplyReview applies a provider review outcome. Approval sets the
// validity window from the configured durations; rejection stores the
// reason and the raw review payload. Both transitions are guarded, so a
// replayed review is a no-op.
func (s *Service) ApplyReview(ctx context.Context, provider, applicantID string, approved bool, reason, rawPayload string) error {
	verification, err := s.repo.GetByApplicantID(applicantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Verification] Review for unknown applicant %s/%s, ignoring", provider, applicantID)
			return nil
		}
		return err
	}

	if approved {
		verifiedAt := s.now()
		expiresAt := verifiedAt.Add(s.cfg.Validity)
		renewalRequiredAt := expiresAt.Add(-s.cfg.Grace)

		applied, err := s.repo.Approve(verification.ID, verifiedAt, expiresAt, renewalRequiredAt)
		if err != nil {
			return err
		}
		if !applied {
			log.Infof("[Verification] Approval for %s in state %s, no transition", applicantID, verification.Status)
			return nil
		}
		s.dispatcher.Publish(ctx, events.VerificationApproved{
			VerificationID: verification.ID,
			UserID:         verification.UserID,
		})
		return nil
	}

	applied, err := s.repo.Reject(verification.ID, reason, rawPayload)
	if err != nil {
		return err
	}
	if !applied {
		log.Infof("[Verification] Rejection for %s in state %s, no transition", applicantID, verification.Status)
		return nil
	}
	s.dispatcher.Publish(ctx, events.VerificationRejected{
		VerificationID: verification.ID,
		UserID:         verification.UserID,
		Reason:         reason,
	})
	return nil
}

// StatusForUser returns the stored verification with its time-derived
// effective status.
func (s *Service) StatusForUser(userID uint) (*models.Verification, models.VerificationStatus, error) {
	verification, err := s.repo.GetByUserID(userID)
	if err != nil {
		return nil, "", err
	}
	return verification, verification.EffectiveStatus(s.now(), s.cfg.Grace), nil
}

// Sweep persists the time-based degradations so listings and counters see
// them without recomputing. Runs from the queue manager's ticker.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	_ = ctx
	updated, err := s.repo.SweepTimeouts(s.now())
	if err != nil {
		return 0, fmt.Errorf("sweeping verifications: %w", err)
	}
	if updated > 0 {
		log.Infof("[Verification] Sweep degraded %d verifications", updated)
	}
	return updated, nil
}
