package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/agro-contracts/internal/model"
)

type ListingRepository struct {
	db *gorm.DB
}

func NewListingRepository(db *gorm.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

func (r *ListingRepository) WithTx(tx *gorm.DB) *ListingRepository {
	return &ListingRepository{db: tx}
}

func (r *ListingRepository) Create(ctx context.Context, item *model.MarketItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *ListingRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.MarketItem, error) {
	var item model.MarketItem
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *ListingRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.MarketItem, error) {
	var items []model.MarketItem
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ListingRepository) ListAll(ctx context.Context) ([]model.MarketItemWithOwner, error) {
	var rows []model.MarketItemWithOwner
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			mi.id,
			mi.user_id,
			mi.crop,
			mi.quantity,
			mi.price,
			mi.created_at,
			mi.updated_at,
			COALESCE(u.username, '') AS username,
			COALESCE(u.name, '') AS name
		FROM market_items mi
		LEFT JOIN users u ON u.id = mi.user_id
		ORDER BY mi.created_at DESC
	`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteOwned removes the listing only when it belongs to ownerID and reports whether a row went away.
func (r *ListingRepository) DeleteOwned(ctx context.Context, id, ownerID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, ownerID).
		Delete(&model.MarketItem{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
