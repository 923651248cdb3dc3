package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"RingCut/model"
)

// PlayOptions describes one playback.
type PlayOptions struct {
	AssetID  string
	Duration float64 // seconds, used for progress reporting
	Volume   int     // 0..100
}

// Player plays an audio file to completion.
type Player interface {
	Play(ctx context.Context, path string, opts PlayOptions) error
	Stop()
	State() model.PlaybackState
	Available() bool
}

type commandRunner func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// ExecPlayer plays through ffplay. Starting a playback stops the previous one.
type ExecPlayer struct {
	path string
	run  commandRunner

	mu      sync.Mutex
	gen     int
	cancel  context.CancelFunc
	state   model.PlaybackState
	started time.Time
}

// NewExecPlayer returns a player that runs the ffplay binary at path.
func NewExecPlayer(path string) *ExecPlayer {
	if path == "" {
		path = "ffplay"
	}
	return &ExecPlayer{path: path, run: runCommand}
}

// Available reports whether the ffplay binary can be found.
func (p *ExecPlayer) Available() bool {
	_, err := exec.LookPath(p.path)
	return err == nil
}

func playArgs(path string, volume int) []string {
	return []string{"-nodisp", "-autoexit", "-loglevel", "error", "-volume", strconv.Itoa(volume), path}
}

// Play blocks until the file has finished playing, ctx is cancelled or another Play starts.
func (p *ExecPlayer) Play(ctx context.Context, path string, opts PlayOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.gen++
	gen := p.gen
	p.cancel = cancel
	p.started = time.Now()
	p.state = model.PlaybackState{
		IsPlaying: true,
		Duration:  opts.Duration,
		Volume:    float64(opts.Volume) / 100,
		AssetID:   opts.AssetID,
	}
	p.mu.Unlock()

	err := p.run(ctx, p.path, playArgs(path, opts.Volume)...)

	p.mu.Lock()
	if p.gen == gen {
		p.state.IsPlaying = false
		p.state.CurrentTime = p.state.Duration
		p.cancel = nil
	}
	p.mu.Unlock()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop interrupts the current playback, if any.
func (p *ExecPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.gen++
	p.state.IsPlaying = false
}

// State returns the current playback progress.
func (p *ExecPlayer) State() model.PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.state
	if st.IsPlaying {
		st.CurrentTime = time.Since(p.started).Seconds()
		if st.Duration > 0 && st.CurrentTime > st.Duration {
			st.CurrentTime = st.Duration
		}
	}
	return st
}
