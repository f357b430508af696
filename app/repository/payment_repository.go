package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/FelixHartmann/Zahlwerk/app/models"
)

type gormPaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a payment repository backed by GORM.
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &gormPaymentRepository{db: db}
}

func (r *gormPaymentRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

func (r *gormPaymentRepository) GetByID(id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.First(&payment, id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *gormPaymentRepository) GetByProviderRef(provider, providerRef string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.Where("provider = ? AND provider_ref = ?", provider, providerRef).
		Order("id DESC").
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *gormPaymentRepository) Update(payment *models.Payment) error {
	return r.db.Save(payment).Error
}

func (r *gormPaymentRepository) TransitionStatus(id uint, from []models.PaymentStatus, to models.PaymentStatus, updates map[string]interface{}) (bool, error) {
	values := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range updates {
		values[k] = v
	}

	tx := r.db.Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormPaymentRepository) AddRefund(id uint, amount int64) (bool, error) {
	// The refunded <= captured invariant is enforced inside the UPDATE so
	// concurrent refunds cannot overshoot between read and write.
	tx := r.db.Model(&models.Payment{}).
		Where("id = ? AND status IN ? AND refunded_amount + ? <= amount",
			id, []models.PaymentStatus{models.PaymentStatusCaptured, models.PaymentStatusRefunded}, amount).
		Updates(map[string]interface{}{
			"refunded_amount": gorm.Expr("refunded_amount + ?", amount),
			"updated_at":      time.Now(),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	if tx.RowsAffected == 0 {
		return false, nil
	}

	// Promote to refunded once the whole captured amount is given back.
	err := r.db.Model(&models.Payment{}).
		Where("id = ? AND status = ? AND refunded_amount >= amount", id, models.PaymentStatusCaptured).
		Update("status", models.PaymentStatusRefunded).Error
	if err != nil {
		return true, err
	}
	return true, nil
}

func (r *gormPaymentRepository) List(offset, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Order("id DESC").Offset(offset).Limit(limit).Find(&payments).Error
	return payments, err
}

func (r *gormPaymentRepository) CountByStatus(status models.PaymentStatus) (int64, error) {
	var count int64
	err := r.db.Model(&models.Payment{}).Where("status = ?", status).Count(&count).Error
	return count, err
}
