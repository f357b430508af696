package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/FelixHartmann/Zahlwerk/app/models"
)

type gormVerificationRepository struct {
	db *gorm.DB
}

// NewVerificationRepository creates a verification repository backed by GORM.
func NewVerificationRepository(db *gorm.DB) VerificationRepository {
	return &gormVerificationRepository{db: db}
}

func (r *gormVerificationRepository) Create(verification *models.Verification) error {
	return r.db.Create(verification).Error
}

func (r *gormVerificationRepository) GetByApplicantID(applicantID string) (*models.Verification, error) {
	var verification models.Verification
	if err := r.db.Where("provider_applicant_id = ?", applicantID).First(&verification).Error; err != nil {
		return nil, err
	}
	return &verification, nil
}

func (r *gormVerificationRepository) GetByUserID(userID uint) (*models.Verification, error) {
	var verification models.Verification
	err := r.db.Where("user_id = ?", userID).Order("id DESC").First(&verification).Error
	if err != nil {
		return nil, err
	}
	return &verification, nil
}

func (r *gormVerificationRepository) Approve(id uint, verifiedAt, expiresAt, renewalRequiredAt time.Time) (bool, error) {
	tx := r.db.Model(&models.Verification{}).
		Where("id = ? AND status IN ?", id, []models.VerificationStatus{
			models.VerificationStatusPending,
			models.VerificationStatusRenewalRequired,
		}).
		Updates(map[string]interface{}{
			"status":              models.VerificationStatusApproved,
			"verified_at":         &verifiedAt,
			"expires_at":          &expiresAt,
			"renewal_required_at": &renewalRequiredAt,
			"rejection_reason":    "",
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormVerificationRepository) Reject(id uint, reason, reviewPayloadJSON string) (bool, error) {
	// verified_at stays untouched and must remain NULL for a rejection
	// out of pending.
	tx := r.db.Model(&models.Verification{}).
		Where("id = ? AND status = ?", id, models.VerificationStatusPending).
		Updates(map[string]interface{}{
			"status":              models.VerificationStatusRejected,
			"rejection_reason":    reason,
			"review_payload_json": reviewPayloadJSON,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormVerificationRepository) SweepTimeouts(now time.Time) (int64, error) {
	var total int64

	tx := r.db.Model(&models.Verification{}).
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at < ?",
			[]models.VerificationStatus{models.VerificationStatusApproved, models.VerificationStatusRenewalRequired}, now).
		Update("status", models.VerificationStatusExpired)
	if tx.Error != nil {
		return 0, tx.Error
	}
	total += tx.RowsAffected

	tx = r.db.Model(&models.Verification{}).
		Where("status = ? AND renewal_required_at IS NOT NULL AND renewal_required_at < ?",
			models.VerificationStatusApproved, now).
		Update("status", models.VerificationStatusRenewalRequired)
	if tx.Error != nil {
		return total, tx.Error
	}
	total += tx.RowsAffected

	return total, nil
}

func (r *gormVerificationRepository) Update(verification *models.Verification) error {
	return r.db.Save(verification).Error
}
