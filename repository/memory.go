package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"RingCut/model"
)

// memoryAssetRepository keeps asset records in process memory.
// Used when no database is configured and in tests.
type memoryAssetRepository struct {
	mu   sync.RWMutex
	recs map[string]model.AssetRecord
}

// NewMemoryAssetRepository 创建内存音频资源仓库
func NewMemoryAssetRepository() AssetRepository {
	return &memoryAssetRepository{recs: make(map[string]model.AssetRecord)}
}

func copyRecord(rec model.AssetRecord) *model.AssetRecord {
	if rec.StartTime != nil {
		v := *rec.StartTime
		rec.StartTime = &v
	}
	if rec.EndTime != nil {
		v := *rec.EndTime
		rec.EndTime = &v
	}
	return &rec
}

func (r *memoryAssetRepository) Create(ctx context.Context, rec *model.AssetRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.recs[rec.ID]; ok {
		return ErrDuplicate
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	r.recs[rec.ID] = *copyRecord(*rec)
	return nil
}

func (r *memoryAssetRepository) GetByID(ctx context.Context, id string) (*model.AssetRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.recs[id]
	if !ok {
		return nil, nil
	}
	return copyRecord(rec), nil
}

func (r *memoryAssetRepository) Update(ctx context.Context, rec *model.AssetRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.recs[rec.ID]
	if !ok {
		return ErrNotFound
	}
	rec.CreatedAt = old.CreatedAt
	rec.UpdatedAt = time.Now()
	r.recs[rec.ID] = *copyRecord(*rec)
	return nil
}

func (r *memoryAssetRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.recs[id]; !ok {
		return ErrNotFound
	}
	delete(r.recs, id)
	return nil
}

func (r *memoryAssetRepository) filter(keep func(model.AssetRecord) bool) []*model.AssetRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.AssetRecord, 0)
	for _, rec := range r.recs {
		if keep(rec) {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *memoryAssetRepository) List(ctx context.Context, kind model.AssetKind) ([]*model.AssetRecord, error) {
	return r.filter(func(rec model.AssetRecord) bool { return kind == "" || rec.Kind == kind }), nil
}

func (r *memoryAssetRepository) ListByParent(ctx context.Context, parentID string) ([]*model.AssetRecord, error) {
	return r.filter(func(rec model.AssetRecord) bool { return rec.ParentID == parentID }), nil
}

// memoryScheduleRepository keeps schedules in process memory.
type memoryScheduleRepository struct {
	mu        sync.RWMutex
	schedules map[string]model.Schedule
}

// NewMemoryScheduleRepository 创建内存计划仓库
func NewMemoryScheduleRepository() ScheduleRepository {
	return &memoryScheduleRepository{schedules: make(map[string]model.Schedule)}
}

func copySchedule(s model.Schedule) *model.Schedule {
	s.Days = append(model.Weekdays(nil), s.Days...)
	if s.LastFiredAt != nil {
		t := *s.LastFiredAt
		s.LastFiredAt = &t
	}
	return &s
}

func (r *memoryScheduleRepository) nameTaken(name, exceptID string) bool {
	for id, s := range r.schedules {
		if s.Name == name && id != exceptID {
			return true
		}
	}
	return false
}

func (r *memoryScheduleRepository) Create(ctx context.Context, s *model.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.schedules[s.ID]; ok || r.nameTaken(s.Name, "") {
		return ErrDuplicate
	}
	now := time.Now()
	s.CreatedAt, s.UpdatedAt = now, now
	r.schedules[s.ID] = *copySchedule(*s)
	return nil
}

func (r *memoryScheduleRepository) GetByID(ctx context.Context, id string) (*model.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schedules[id]
	if !ok {
		return nil, nil
	}
	return copySchedule(s), nil
}

func (r *memoryScheduleRepository) GetByName(ctx context.Context, name string) (*model.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.schedules {
		if s.Name == name {
			return copySchedule(s), nil
		}
	}
	return nil, nil
}

func (r *memoryScheduleRepository) Update(ctx context.Context, s *model.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.schedules[s.ID]
	if !ok {
		return ErrNotFound
	}
	if r.nameTaken(s.Name, s.ID) {
		return ErrDuplicate
	}
	s.CreatedAt = old.CreatedAt
	s.UpdatedAt = time.Now()
	r.schedules[s.ID] = *copySchedule(*s)
	return nil
}

func (r *memoryScheduleRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.schedules[id]
	if !ok {
		return ErrNotFound
	}
	s.Enabled = enabled
	s.UpdatedAt = time.Now()
	r.schedules[id] = s
	return nil
}

func (r *memoryScheduleRepository) MarkFired(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.schedules[id]
	if !ok {
		return ErrNotFound
	}
	s.LastFiredAt = &at
	r.schedules[id] = s
	return nil
}

func (r *memoryScheduleRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.schedules[id]; !ok {
		return ErrNotFound
	}
	delete(r.schedules, id)
	return nil
}

func (r *memoryScheduleRepository) List(ctx context.Context) ([]*model.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Schedule, 0, len(r.schedules))
	for _, s := range r.schedules {
		out = append(out, copySchedule(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Clock == out[j].Clock {
			return out[i].Name < out[j].Name
		}
		return out[i].Clock < out[j].Clock
	})
	return out, nil
}

func (r *memoryScheduleRepository) DeleteByRingtone(ctx context.Context, ringtoneID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, s := range r.schedules {
		if s.RingtoneID == ringtoneID {
			delete(r.schedules, id)
			n++
		}
	}
	return n, nil
}
