package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"RingCut/logger"

	"github.com/go-redis/redis/v8"
)

const durationKeyPrefix = "ringcut:duration:"

// DurationCache remembers probed durations by content key.
type DurationCache interface {
	GetDuration(ctx context.Context, contentKey string) (float64, bool)
	SetDuration(ctx context.Context, contentKey string, seconds float64)
}

// ProbeCache stores ffprobe durations in Redis. Failures are logged and treated as misses.
type ProbeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProbeCache wraps client. A zero ttl keeps entries forever.
func NewProbeCache(client *redis.Client, ttl time.Duration) *ProbeCache {
	return &ProbeCache{client: client, ttl: ttl}
}

func durationKey(contentKey string) string {
	return durationKeyPrefix + contentKey
}

// GetDuration 获取缓存的音频时长
func (c *ProbeCache) GetDuration(ctx context.Context, contentKey string) (float64, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	val, err := c.client.Get(ctx, durationKey(contentKey)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("获取时长缓存失败", logger.String("key", contentKey), logger.ErrorField(err))
		}
		return 0, false
	}

	seconds, err := strconv.ParseFloat(val, 64)
	if err != nil {
		logger.Warn("时长缓存格式错误", logger.String("key", contentKey), logger.String("value", val))
		return 0, false
	}
	return seconds, true
}

// SetDuration 设置音频时长缓存
func (c *ProbeCache) SetDuration(ctx context.Context, contentKey string, seconds float64) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	val := strconv.FormatFloat(seconds, 'f', -1, 64)
	if err := c.client.Set(ctx, durationKey(contentKey), val, c.ttl).Err(); err != nil {
		logger.Warn("设置时长缓存失败", logger.String("key", contentKey), logger.ErrorField(err))
		return
	}
	logger.Debug("时长缓存设置成功",
		logger.String("key", contentKey),
		logger.Float64("seconds", seconds),
		logger.Duration("expiration", c.ttl))
}
