package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/FelixHartmann/Zahlwerk/app/models"
)

type gormWebhookRepository struct {
	db *gorm.DB
}

// NewWebhookRepository creates a webhook repository backed by GORM.
func NewWebhookRepository(db *gorm.DB) WebhookRepository {
	return &gormWebhookRepository{db: db}
}

func (r *gormWebhookRepository) Create(webhook *models.PaymentWebhook) error {
	return r.db.Create(webhook).Error
}

func (r *gormWebhookRepository) GetByID(id uint) (*models.PaymentWebhook, error) {
	var webhook models.PaymentWebhook
	if err := r.db.First(&webhook, id).Error; err != nil {
		return nil, err
	}
	return &webhook, nil
}

func (r *gormWebhookRepository) GetByTrackingID(trackingID string) (*models.PaymentWebhook, error) {
	var webhook models.PaymentWebhook
	if err := r.db.Where("tracking_id = ?", trackingID).First(&webhook).Error; err != nil {
		return nil, err
	}
	return &webhook, nil
}

func (r *gormWebhookRepository) MarkProcessed(id uint, eventKey string) error {
	now := time.Now()
	return r.db.Model(&models.PaymentWebhook{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           models.WebhookStatusProcessed,
			"event_key":        eventKey,
			"processed_at":     &now,
			"processing_error": "",
		}).Error
}

func (r *gormWebhookRepository) MarkFailed(id uint, processingError string) error {
	now := time.Now()
	return r.db.Model(&models.PaymentWebhook{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           models.WebhookStatusFailed,
			"processed_at":     &now,
			"processing_error": processingError,
		}).Error
}

func (r *gormWebhookRepository) HasProcessedEventKey(provider, eventKey string) (bool, error) {
	if eventKey == "" {
		return false, nil
	}
	var count int64
	err := r.db.Model(&models.PaymentWebhook{}).
		Where("provider = ? AND event_key = ? AND status = ?", provider, eventKey, models.WebhookStatusProcessed).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *gormWebhookRepository) ListByStatus(status models.WebhookStatus, offset, limit int) ([]models.PaymentWebhook, error) {
	var webhooks []models.PaymentWebhook
	err := r.db.Where("status = ?", status).
		Order("id DESC").Offset(offset).Limit(limit).
		Find(&webhooks).Error
	return webhooks, err
}

func (r *gormWebhookRepository) CountByStatus(status models.WebhookStatus) (int64, error) {
	var count int64
	err := r.db.Model(&models.PaymentWebhook{}).Where("status = ?", status).Count(&count).Error
	return count, err
}
