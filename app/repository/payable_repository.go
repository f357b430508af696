package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/FelixHartmann/Zahlwerk/app/models"
)

type gormPayableRepository struct {
	db *gorm.DB
}

// NewPayableRepository creates a payable repository backed by GORM.
func NewPayableRepository(db *gorm.DB) PayableRepository {
	return &gormPayableRepository{db: db}
}

func (r *gormPayableRepository) Resolve(kind string, id uint) (models.Activatable, error) {
	switch kind {
	case models.PayableTypeAd:
		var ad models.Ad
		if err := r.db.First(&ad, id).Error; err != nil {
			return nil, err
		}
		return &ad, nil
	case models.PayableTypeWishlistItem:
		var item models.WishlistItem
		if err := r.db.First(&item, id).Error; err != nil {
			return nil, err
		}
		return &item, nil
	case models.PayableTypeMembership:
		var membership models.Membership
		if err := r.db.First(&membership, id).Error; err != nil {
			return nil, err
		}
		return &membership, nil
	default:
		return nil, fmt.Errorf("unknown payable kind %q", kind)
	}
}

func (r *gormPayableRepository) Activate(kind string, id uint) (bool, error) {
	model, err := payableModel(kind)
	if err != nil {
		return false, err
	}

	// Guarded by the active flag itself: racing capture paths both run
	// this UPDATE, only one sees RowsAffected > 0.
	now := time.Now()
	tx := r.db.Model(model).
		Where("id = ? AND active = ?", id, false).
		Updates(map[string]interface{}{
			"active":       true,
			"activated_at": &now,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func payableModel(kind string) (interface{}, error) {
	switch kind {
	case models.PayableTypeAd:
		return &models.Ad{}, nil
	case models.PayableTypeWishlistItem:
		return &models.WishlistItem{}, nil
	case models.PayableTypeMembership:
		return &models.Membership{}, nil
	default:
		return nil, fmt.Errorf("unknown payable kind %q", kind)
	}
}
