package brand

import (
	"context"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetByID(ctx context.Context, brandID string) (*Brand, error) {
	var b Brand
	if err := r.db.WithContext(ctx).
		Where("id = ?", brandID).
		First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repo) Create(ctx context.Context, b *Brand) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *Repo) ListForUser(ctx context.Context, userID uint64) ([]Brand, error) {
	var brands []Brand
	err := r.db.WithContext(ctx).
		Joins("JOIN user_brands ON user_brands.brand_id = brands.id").
		Where("user_brands.user_id = ?", userID).
		Order("brands.name ASC").
		Find(&brands).Error
	if err != nil {
		return nil, err
	}
	return brands, nil
}

func (r *Repo) HasMembership(ctx context.Context, userID uint64, brandID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&UserBrand{}).
		Where("user_id = ? AND brand_id = ?", userID, brandID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repo) AddMembership(ctx context.Context, userID uint64, brandID string, isDefault bool) error {
	return r.db.WithContext(ctx).Create(&UserBrand{
		UserID:    userID,
		BrandID:   brandID,
		IsDefault: isDefault,
	}).Error
}

// UpdateModelIDIfCurrent performs the sticky model correction as a
// compare-and-swap so that a concurrent admin edit is never clobbered.
// Returns whether a row was updated.
func (r *Repo) UpdateModelIDIfCurrent(ctx context.Context, brandID, from, to string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Brand{}).
		Where("id = ? AND model_id = ?", brandID, from).
		Update("model_id", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
