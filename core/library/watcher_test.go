package library

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type importLog struct {
	mu    sync.Mutex
	paths []string
}

func (l *importLog) ImportFile(ctx context.Context, path string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, filepath.Base(path))
	return "id-" + filepath.Base(path), nil
}

func (l *importLog) seen() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths...)
}

func TestWatcherImportsSettledAudio(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing.wav"), []byte("RIFF"), 0644))

	log := &importLog{}
	w := newWatcher(dir, log)
	w.settle = 50 * time.Millisecond
	w.tick = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dropped.mp3"), []byte("ID3"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0644))

	assert.Eventually(t, func() bool { return len(log.seen()) == 2 }, 3*time.Second, 20*time.Millisecond)
	assert.ElementsMatch(t, []string{"existing.wav", "dropped.mp3"}, log.seen())

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "dropped.mp3"))
		return os.IsNotExist(err)
	}, time.Second, 20*time.Millisecond)
	_, err := os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err)

	cancel()
	assert.NoError(t, <-done)
}
