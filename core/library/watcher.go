package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"RingCut/core/audio"
	"RingCut/logger"

	"github.com/fsnotify/fsnotify"
)

// Importer is the part of Service used by the watch folder.
type Importer interface {
	ImportFile(ctx context.Context, path string) (assetID string, err error)
}

type serviceImporter struct{ s *Service }

func (i serviceImporter) ImportFile(ctx context.Context, path string) (string, error) {
	a, err := i.s.ImportFile(ctx, path)
	return a.ID, err
}

// Watcher imports audio files dropped into a directory and removes them afterwards.
type Watcher struct {
	dir      string
	importer Importer
	settle   time.Duration
	tick     time.Duration
}

// NewWatcher watches dir and imports into s.
func NewWatcher(dir string, s *Service) *Watcher {
	return newWatcher(dir, serviceImporter{s})
}

func newWatcher(dir string, importer Importer) *Watcher {
	return &Watcher{dir: dir, importer: importer, settle: time.Second, tick: 250 * time.Millisecond}
}

type pendingFile struct {
	lastEvent time.Time
	size      int64
}

// Run blocks until ctx is cancelled. Files already present when it starts are imported too.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create watch dir %s: %w", w.dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	logger.Info("watching import folder", logger.String("dir", w.dir))

	// 文件稳定性检查的延迟队列
	pending := make(map[string]*pendingFile)
	if entries, err := os.ReadDir(w.dir); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				w.track(pending, filepath.Join(w.dir, e.Name()))
			}
		}
	}

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.track(pending, event.Name)
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				delete(pending, event.Name)
			}

		case <-ticker.C:
			w.flush(ctx, pending)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("文件监听错误", logger.ErrorField(err))
		}
	}
}

func (w *Watcher) track(pending map[string]*pendingFile, path string) {
	if _, err := audio.CheckExtension(path); err != nil {
		return
	}
	p, ok := pending[path]
	if !ok {
		p = &pendingFile{size: -1}
		pending[path] = p
	}
	p.lastEvent = time.Now()
}

// flush imports files whose size has not changed for the settle period.
func (w *Watcher) flush(ctx context.Context, pending map[string]*pendingFile) {
	now := time.Now()
	for path, p := range pending {
		if now.Sub(p.lastEvent) < w.settle {
			continue
		}
		st, err := os.Stat(path)
		if err != nil {
			delete(pending, path)
			continue
		}
		if st.Size() != p.size {
			// still being written
			p.size = st.Size()
			p.lastEvent = now
			continue
		}

		delete(pending, path)
		id, err := w.importer.ImportFile(ctx, path)
		if err != nil {
			logger.Error("watch folder import failed", logger.String("path", path), logger.ErrorField(err))
			continue
		}
		if err := os.Remove(path); err != nil {
			logger.Warn("failed to remove imported file", logger.String("path", path), logger.ErrorField(err))
		}
		logger.Info("watch folder import", logger.String("path", path), logger.String("id", id))
	}
}
