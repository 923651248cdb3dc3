package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"RingCut/model"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMemoryAssetRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAssetRepository()

	orig := model.NewOriginal("a1", "song.mp3", "original_sound/a1.mp3", 120)
	require.NoError(t, repo.Create(ctx, model.NewAssetRecord(orig, model.RingtoneSettings{})))
	assert.ErrorIs(t, repo.Create(ctx, model.NewAssetRecord(orig, model.RingtoneSettings{})), ErrDuplicate)

	rt := model.NewRingtone("r1", "clip", "a1", model.Window{Start: 1, End: 4})
	rt.CreatedAt = orig.CreatedAt.Add(time.Second)
	require.NoError(t, repo.Create(ctx, model.NewAssetRecord(rt, model.DefaultSettings(1, 4))))

	got, err := repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	*got.StartTime = 99 // callers cannot mutate stored rows

	again, err := repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, *again.StartTime)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "r1", all[0].ID)

	rings, err := repo.List(ctx, model.AssetKindRingtone)
	require.NoError(t, err)
	assert.Len(t, rings, 1)

	children, err := repo.ListByParent(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, children, 1)

	again.Name = "renamed"
	require.NoError(t, repo.Update(ctx, again))
	got, _ = repo.GetByID(ctx, "r1")
	assert.Equal(t, "renamed", got.Name)

	require.NoError(t, repo.Delete(ctx, "r1"))
	assert.ErrorIs(t, repo.Delete(ctx, "r1"), ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, again), ErrNotFound)
}

func TestMemoryScheduleRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryScheduleRepository()

	s := &model.Schedule{ID: "s1", Name: "morning", RingtoneID: "r1", Clock: "07:30", Days: model.Weekdays{1, 2}, Volume: 50, Enabled: true}
	require.NoError(t, repo.Create(ctx, s))
	assert.ErrorIs(t, repo.Create(ctx, &model.Schedule{ID: "s2", Name: "morning"}), ErrDuplicate)

	require.NoError(t, repo.Create(ctx, &model.Schedule{ID: "s3", Name: "early", RingtoneID: "r2", Clock: "06:00", Days: model.Weekdays{0}}))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "early", list[0].Name)

	require.NoError(t, repo.SetEnabled(ctx, "s1", false))
	at := time.Date(2024, 1, 1, 7, 30, 0, 0, time.UTC)
	require.NoError(t, repo.MarkFired(ctx, "s1", at))
	got, err := repo.GetByName(ctx, "morning")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	require.NotNil(t, got.LastFiredAt)
	assert.True(t, at.Equal(*got.LastFiredAt))

	got.Name = "early"
	assert.ErrorIs(t, repo.Update(ctx, got), ErrDuplicate)

	n, err := repo.DeleteByRingtone(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.ErrorIs(t, repo.Delete(ctx, "s1"), ErrNotFound)
	assert.ErrorIs(t, repo.SetEnabled(ctx, "s1", true), ErrNotFound)
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil))
	assert.ErrorIs(t, translate(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}), ErrDuplicate)
	assert.ErrorIs(t, translate(gorm.ErrDuplicatedKey), ErrDuplicate)

	other := errors.New("connection reset")
	assert.Equal(t, other, translate(other))
}
