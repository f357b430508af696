package verification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/FelixHartmann/Zahlwerk/app/models"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/events"
)

type memVerificationRepo struct {
	nextID        uint
	verifications map[uint]*models.Verification
}

func newMemVerificationRepo() *memVerificationRepo {
	return &memVerificationRepo{verifications: make(map[uint]*models.Verification)}
}

func (r *memVerificationRepo) Create(v *models.Verification) error {
	r.nextID++
	v.ID = r.nextID
	r.verifications[v.ID] = v
	return nil
}

func (r *memVerificationRepo) GetByApplicantID(applicantID string) (*models.Verification, error) {
	for _, v := range r.verifications {
		if v.ProviderApplicantID == applicantID {
			copied := *v
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memVerificationRepo) GetByUserID(userID uint) (*models.Verification, error) {
	for _, v := range r.verifications {
		if v.UserID == userID {
			copied := *v
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memVerificationRepo) Approve(id uint, verifiedAt, expiresAt, renewalRequiredAt time.Time) (bool, error) {
	v, ok := r.verifications[id]
	if !ok {
		return false, nil
	}
	if v.Status != models.VerificationStatusPending && v.Status != models.VerificationStatusRenewalRequired {
		return false, nil
	}
	v.Status = models.VerificationStatusApproved
	v.VerifiedAt = &verifiedAt
	v.ExpiresAt = &expiresAt
	v.RenewalRequiredAt = &renewalRequiredAt
	return true, nil
}

func (r *memVerificationRepo) Reject(id uint, reason, reviewPayloadJSON string) (bool, error) {
	v, ok := r.verifications[id]
	if !ok {
		return false, nil
	}
	if v.Status != models.VerificationStatusPending {
		return false, nil
	}
	v.Status = models.VerificationStatusRejected
	v.RejectionReason = reason
	v.ReviewPayloadJSON = reviewPayloadJSON
	return true, nil
}

func (r *memVerificationRepo) SweepTimeouts(now time.Time) (int64, error) {
	var updated int64
	for _, v := range r.verifications {
		if v.Status != models.VerificationStatusApproved {
			continue
		}
		if v.ExpiresAt != nil && now.After(*v.ExpiresAt) {
			v.Status = models.VerificationStatusExpired
			updated++
			continue
		}
		if v.RenewalRequiredAt != nil && now.After(*v.RenewalRequiredAt) {
			v.Status = models.VerificationStatusRenewalRequired
			updated++
		}
	}
	return updated, nil
}

func (r *memVerificationRepo) Update(v *models.Verification) error {
	r.verifications[v.ID] = v
	return nil
}

func testConfig() Config {
	return Config{Validity: 365 * 24 * time.Hour, Grace: 30 * 24 * time.Hour}
}

func newTestService(t *testing.T) (*Service, *memVerificationRepo, *[]events.Event, time.Time) {
	t.Helper()
	repo := newMemVerificationRepo()
	published := &[]events.Event{}

	dispatcher := events.NewDispatcher()
	for _, name := range []string{events.VerificationApprovedName, events.VerificationRejectedName} {
		dispatcher.Subscribe(name, func(_ context.Context, event events.Event) error {
			*published = append(*published, event)
			return nil
		})
	}

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(repo, dispatcher, testConfig()).WithClock(func() time.Time { return now })
	return svc, repo, published, now
}

func TestApplyReview_Approval(t *testing.T) {
	svc, repo, published, now := newTestService(t)

	created, err := svc.Start(context.Background(), 7, "", "app_1")
	require.NoError(t, err)
	assert.Equal(t, models.VerificationProviderSumsub, created.Provider)

	require.NoError(t, svc.ApplyReview(context.Background(), models.VerificationProviderSumsub, "app_1", true, "", "{}"))

	stored := repo.verifications[created.ID]
	assert.Equal(t, models.VerificationStatusApproved, stored.Status)
	require.NotNil(t, stored.VerifiedAt)
	assert.Equal(t, now, *stored.VerifiedAt)
	assert.Equal(t, now.Add(365*24*time.Hour), *stored.ExpiresAt)
	assert.Equal(t, now.Add(335*24*time.Hour), *stored.RenewalRequiredAt)
	require.Len(t, *published, 1)
	assert.Equal(t, events.VerificationApprovedName, (*published)[0].EventName())

	// A replayed approval is a guarded no-op.
	require.NoError(t, svc.ApplyReview(context.Background(), models.VerificationProviderSumsub, "app_1", true, "", "{}"))
	assert.Len(t, *published, 1)
}

func TestApplyReview_Rejection(t *testing.T) {
	svc, repo, published, _ := newTestService(t)

	created, err := svc.Start(context.Background(), 7, "", "app_2")
	require.NoError(t, err)

	payload := `{"reviewResult":{"reviewAnswer":"RED"}}`
	require.NoError(t, svc.ApplyReview(context.Background(), models.VerificationProviderSumsub, "app_2", false, "FORGERY: document altered", payload))

	stored := repo.verifications[created.ID]
	assert.Equal(t, models.VerificationStatusRejected, stored.Status)
	assert.Equal(t, "FORGERY: document altered", stored.RejectionReason)
	assert.Equal(t, payload, stored.ReviewPayloadJSON)
	assert.Nil(t, stored.VerifiedAt)
	require.Len(t, *published, 1)

	// Approval after rejection does not resurrect the verification.
	require.NoError(t, svc.ApplyReview(context.Background(), models.VerificationProviderSumsub, "app_2", true, "", "{}"))
	assert.Equal(t, models.VerificationStatusRejected, repo.verifications[created.ID].Status)
	assert.Len(t, *published, 1)
}

func TestApplyReview_UnknownApplicantIgnored(t *testing.T) {
	svc, _, published, _ := newTestService(t)
	require.NoError(t, svc.ApplyReview(context.Background(), models.VerificationProviderSumsub, "app_missing", true, "", "{}"))
	assert.Empty(t, *published)
}

func TestStatusForUser_DerivedStates(t *testing.T) {
	svc, repo, _, now := newTestService(t)

	created, err := svc.Start(context.Background(), 7, "", "app_3")
	require.NoError(t, err)
	require.NoError(t, svc.ApplyReview(context.Background(), models.VerificationProviderSumsub, "app_3", true, "", "{}"))

	_, effective, err := svc.StatusForUser(7)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationStatusApproved, effective)

	// Inside the renewal window before expiry.
	expiresSoon := now.Add(15 * 24 * time.Hour)
	repo.verifications[created.ID].ExpiresAt = &expiresSoon
	_, effective, err = svc.StatusForUser(7)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationStatusRenewalRequired, effective)

	// Past expiry.
	expired := now.Add(-24 * time.Hour)
	repo.verifications[created.ID].ExpiresAt = &expired
	_, effective, err = svc.StatusForUser(7)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationStatusExpired, effective)
}

func TestSweep(t *testing.T) {
	svc, repo, _, now := newTestService(t)

	for i, applicant := range []string{"app_a", "app_b", "app_c"} {
		_, err := svc.Start(context.Background(), uint(i+1), "", applicant)
		require.NoError(t, err)
		require.NoError(t, svc.ApplyReview(context.Background(), models.VerificationProviderSumsub, applicant, true, "", "{}"))
	}

	// One expired, one in the renewal window, one untouched.
	expired := now.Add(-24 * time.Hour)
	repo.verifications[1].ExpiresAt = &expired
	renewal := now.Add(-time.Hour)
	repo.verifications[2].RenewalRequiredAt = &renewal

	updated, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)
	assert.Equal(t, models.VerificationStatusExpired, repo.verifications[1].Status)
	assert.Equal(t, models.VerificationStatusRenewalRequired, repo.verifications[2].Status)
	assert.Equal(t, models.VerificationStatusApproved, repo.verifications[3].Status)
}
