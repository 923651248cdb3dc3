package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
)

// ErrHandleReleased is returned when a released handle is used or released again.
var ErrHandleReleased = errors.New("handle already released")

// Handle is a release-once reference to a stored object.
// Releasing deletes the object; afterwards every operation fails with ErrHandleReleased.
type Handle struct {
	store    Store
	key      string
	released atomic.Bool
}

// NewHandle acquires a handle on key.
func NewHandle(s Store, key string) *Handle {
	return &Handle{store: s, key: key}
}

// Key returns the object key.
func (h *Handle) Key() string {
	return h.key
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	return h.released.Load()
}

// Open streams the object's bytes.
func (h *Handle) Open(ctx context.Context) (io.ReadCloser, error) {
	if h.released.Load() {
		return nil, fmt.Errorf("%w: %s", ErrHandleReleased, h.key)
	}
	rc, err := h.store.Get(ctx, h.key)
	if err != nil && h.released.Load() {
		return nil, fmt.Errorf("%w: %s", ErrHandleReleased, h.key)
	}
	return rc, err
}

// Stat returns the object's metadata.
func (h *Handle) Stat(ctx context.Context) (ObjectInfo, error) {
	if h.released.Load() {
		return ObjectInfo{}, fmt.Errorf("%w: %s", ErrHandleReleased, h.key)
	}
	return h.store.Stat(ctx, h.key)
}

// Release deletes the object. Only the first call does anything; later calls return ErrHandleReleased.
// An object that is already gone is not an error.
func (h *Handle) Release(ctx context.Context) error {
	if !h.released.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s", ErrHandleReleased, h.key)
	}
	if err := h.store.Delete(ctx, h.key); err != nil && !errors.Is(err, ErrObjectNotFound) {
		return fmt.Errorf("release %s: %w", h.key, err)
	}
	return nil
}
