package repository

import (
	"context"
	"errors"
	"time"

	"RingCut/model"

	"gorm.io/gorm"
)

// ScheduleRepository 定时播放计划数据访问接口
type ScheduleRepository interface {
	Create(ctx context.Context, s *model.Schedule) error
	GetByID(ctx context.Context, id string) (*model.Schedule, error)
	GetByName(ctx context.Context, name string) (*model.Schedule, error)
	Update(ctx context.Context, s *model.Schedule) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
	MarkFired(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*model.Schedule, error)
	DeleteByRingtone(ctx context.Context, ringtoneID string) (int64, error)
}

type gormScheduleRepository struct {
	db *gorm.DB
}

// NewGormScheduleRepository 创建 GORM 计划仓库
func NewGormScheduleRepository(db *gorm.DB) ScheduleRepository {
	return &gormScheduleRepository{db: db}
}

func (r *gormScheduleRepository) Create(ctx context.Context, s *model.Schedule) error {
	return translate(r.db.WithContext(ctx).Create(s).Error)
}

func (r *gormScheduleRepository) first(ctx context.Context, query string, arg interface{}) (*model.Schedule, error) {
	var s model.Schedule
	if err := r.db.WithContext(ctx).Where(query, arg).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *gormScheduleRepository) GetByID(ctx context.Context, id string) (*model.Schedule, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *gormScheduleRepository) GetByName(ctx context.Context, name string) (*model.Schedule, error) {
	return r.first(ctx, "name = ?", name)
}

func (r *gormScheduleRepository) Update(ctx context.Context, s *model.Schedule) error {
	res := r.db.WithContext(ctx).Model(&model.Schedule{}).Where("id = ?", s.ID).
		Select("*").Omit("created_at").Updates(s)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormScheduleRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res := r.db.WithContext(ctx).Model(&model.Schedule{}).Where("id = ?", id).
		Updates(map[string]interface{}{"enabled": enabled, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormScheduleRepository) MarkFired(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Schedule{}).Where("id = ?", id).
		Update("last_fired_at", at).Error
}

func (r *gormScheduleRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Schedule{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormScheduleRepository) List(ctx context.Context) ([]*model.Schedule, error) {
	var out []*model.Schedule
	if err := r.db.WithContext(ctx).Order("clock ASC, name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *gormScheduleRepository) DeleteByRingtone(ctx context.Context, ringtoneID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("ringtone_id = ?", ringtoneID).Delete(&model.Schedule{})
	return res.RowsAffected, res.Error
}
