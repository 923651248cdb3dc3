package repository

import (
	"context"
	"errors"

	"RingCut/model"

	"gorm.io/gorm"
)

// AssetRepository 音频资源数据访问接口
type AssetRepository interface {
	Create(ctx context.Context, rec *model.AssetRecord) error
	GetByID(ctx context.Context, id string) (*model.AssetRecord, error)
	Update(ctx context.Context, rec *model.AssetRecord) error
	Delete(ctx context.Context, id string) error
	// List returns records of the given kind, newest first. An empty kind lists everything.
	List(ctx context.Context, kind model.AssetKind) ([]*model.AssetRecord, error)
	ListByParent(ctx context.Context, parentID string) ([]*model.AssetRecord, error)
}

// gormAssetRepository GORM 实现
type gormAssetRepository struct {
	db *gorm.DB
}

// NewGormAssetRepository 创建 GORM 音频资源仓库
func NewGormAssetRepository(db *gorm.DB) AssetRepository {
	return &gormAssetRepository{db: db}
}

func (r *gormAssetRepository) Create(ctx context.Context, rec *model.AssetRecord) error {
	return translate(r.db.WithContext(ctx).Create(rec).Error)
}

// GetByID returns nil, nil when the record does not exist.
func (r *gormAssetRepository) GetByID(ctx context.Context, id string) (*model.AssetRecord, error) {
	var rec model.AssetRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *gormAssetRepository) Update(ctx context.Context, rec *model.AssetRecord) error {
	res := r.db.WithContext(ctx).Model(&model.AssetRecord{}).Where("id = ?", rec.ID).
		Select("*").Omit("created_at").Updates(rec)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormAssetRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.AssetRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormAssetRepository) List(ctx context.Context, kind model.AssetKind) ([]*model.AssetRecord, error) {
	var recs []*model.AssetRecord
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *gormAssetRepository) ListByParent(ctx context.Context, parentID string) ([]*model.AssetRecord, error) {
	var recs []*model.AssetRecord
	err := r.db.WithContext(ctx).
		Where("parent_id = ?", parentID).
		Order("created_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return recs, nil
}
