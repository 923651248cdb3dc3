package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"RingCut/core/events"
	"RingCut/core/library"
	"RingCut/logger"
	"RingCut/model"
	"RingCut/repository"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for unknown schedule names.
	ErrNotFound = errors.New("schedule not found")
	// ErrClosed is returned when playback is requested after Close.
	ErrClosed = errors.New("scheduler closed")
)

// Ringtones is the part of the library the scheduler plays from.
type Ringtones interface {
	GetRingtone(ctx context.Context, id string) (*library.Ringtone, error)
	Open(ctx context.Context, id string, format library.Format) (*library.Download, error)
}

// CreateRequest describes a new schedule. A nil Volume means the default.
type CreateRequest struct {
	Name       string
	RingtoneID string
	Clock      string
	Days       []int
	Volume     *int
}

// Entry is a schedule together with its next fire time.
type Entry struct {
	*model.Schedule
	NextFire *time.Time `json:"nextFire,omitempty"`
}

// Status summarises the scheduler for the status endpoint.
type Status struct {
	Available bool                `json:"available"`
	Running   bool                `json:"running"`
	Schedules int                 `json:"schedules"`
	Playback  model.PlaybackState `json:"playback"`
}

// Service fires schedules from a ticker loop and plays them through a Player.
type Service struct {
	repo      repository.ScheduleRepository
	ringtones Ringtones
	player    Player
	events    events.Publisher
	tick      time.Duration
	tempDir   string
	now       func() time.Time

	mu       sync.RWMutex
	running  bool
	closed   bool // guarded by mu; no playback starts once set
	lastTick time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a scheduler. pub may be nil.
func NewService(repo repository.ScheduleRepository, ringtones Ringtones, player Player, pub events.Publisher, tick time.Duration, tempDir string) *Service {
	if pub == nil {
		pub = events.Discard
	}
	if tick <= 0 {
		tick = 15 * time.Second
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		repo:      repo,
		ringtones: ringtones,
		player:    player,
		events:    pub,
		tick:      tick,
		tempDir:   tempDir,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Run blocks until ctx is cancelled, firing due schedules on every tick.
func (s *Service) Run(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	s.lastTick = s.now()
	s.mu.Unlock()

	logger.Info("scheduler started", logger.Duration("tick", s.tick))

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		case <-ticker.C:
			s.mu.Lock()
			from := s.lastTick
			to := s.now()
			s.lastTick = to
			s.mu.Unlock()

			s.fireDue(ctx, from, to)
		}
	}
}

// Close stops any playback started by the scheduler and waits for it to finish.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.player.Stop()
	s.wg.Wait()
}

// fireDue plays every enabled schedule whose fire time falls in (from, to].
func (s *Service) fireDue(ctx context.Context, from, to time.Time) {
	list, err := s.repo.List(ctx)
	if err != nil {
		logger.Error("failed to load schedules", logger.ErrorField(err))
		return
	}

	for _, sc := range list {
		at, ok := Due(sc, from, to)
		if !ok {
			continue
		}
		if sc.LastFiredAt != nil && !sc.LastFiredAt.Before(at) {
			continue
		}
		if _, err := s.ringtones.GetRingtone(ctx, sc.RingtoneID); err != nil {
			logger.Warn("scheduled ringtone unavailable",
				logger.String("schedule", sc.Name),
				logger.String("ringtone", sc.RingtoneID),
				logger.ErrorField(err))
			continue
		}
		if err := s.repo.MarkFired(ctx, sc.ID, at); err != nil {
			logger.Error("failed to record schedule fire", logger.String("schedule", sc.Name), logger.ErrorField(err))
			continue
		}

		logger.Info("schedule fired",
			logger.String("schedule", sc.Name),
			logger.String("ringtone", sc.RingtoneID),
			logger.String("time", sc.Clock))
		s.events.Publish(events.TypeScheduleFired, map[string]interface{}{
			"name":       sc.Name,
			"ringtoneId": sc.RingtoneID,
			"firedAt":    at,
		})
		if err := s.startPlayback(sc.RingtoneID, sc.Volume); err != nil {
			logger.Warn("scheduled playback skipped", logger.String("schedule", sc.Name), logger.ErrorField(err))
		}
	}
}

// startPlayback plays in the background so the caller is not held for the ringtone's length.
func (s *Service) startPlayback(ringtoneID string, volume int) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := s.play(s.ctx, ringtoneID, volume); err != nil {
			logger.Error("ringtone playback failed", logger.String("ringtone", ringtoneID), logger.ErrorField(err))
		}
	}()
	return nil
}

func (s *Service) play(ctx context.Context, ringtoneID string, volume int) error {
	rt, err := s.ringtones.GetRingtone(ctx, ringtoneID)
	if err != nil {
		return err
	}
	dl, err := s.ringtones.Open(ctx, ringtoneID, library.FormatWAV)
	if err != nil {
		return err
	}
	defer dl.Close()

	if err := os.MkdirAll(s.tempDir, 0755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.tempDir, "play-*"+filepath.Ext(dl.Name))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, dl)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("buffer ringtone %s: %w", ringtoneID, err)
	}

	return s.player.Play(ctx, tmp.Name(), PlayOptions{
		AssetID:  ringtoneID,
		Duration: rt.Asset.Duration,
		Volume:   volume,
	})
}

func (s *Service) find(ctx context.Context, name string) (*model.Schedule, error) {
	sc, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load schedule %q: %w", name, err)
	}
	if sc == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return sc, nil
}

// Create validates and stores a new enabled schedule.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.Schedule, error) {
	volume := model.DefaultScheduleVolume
	if req.Volume != nil {
		volume = *req.Volume
	}
	sc := &model.Schedule{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(req.Name),
		RingtoneID: req.RingtoneID,
		Clock:      strings.TrimSpace(req.Clock),
		Days:       model.Weekdays(req.Days),
		Volume:     volume,
		Enabled:    true,
	}
	if err := Validate(sc); err != nil {
		return nil, err
	}
	c, _ := ParseClock(sc.Clock)
	sc.Clock = c.String()

	if _, err := s.ringtones.GetRingtone(ctx, sc.RingtoneID); err != nil {
		return nil, err
	}
	if existing, err := s.repo.GetByName(ctx, sc.Name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%w: schedule %q", repository.ErrDuplicate, sc.Name)
	}
	if err := s.repo.Create(ctx, sc); err != nil {
		return nil, fmt.Errorf("save schedule: %w", err)
	}

	logger.Info("schedule created",
		logger.String("schedule", sc.Name),
		logger.String("ringtone", sc.RingtoneID),
		logger.String("time", sc.Clock))
	s.changed("created", sc)
	return sc, nil
}

// Delete removes a schedule by name.
func (s *Service) Delete(ctx context.Context, name string) error {
	sc, err := s.find(ctx, name)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, sc.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return err
	}
	s.changed("deleted", sc)
	return nil
}

// Enable turns a schedule on.
func (s *Service) Enable(ctx context.Context, name string) error {
	return s.setEnabled(ctx, name, true)
}

// Disable turns a schedule off without deleting it.
func (s *Service) Disable(ctx context.Context, name string) error {
	return s.setEnabled(ctx, name, false)
}

func (s *Service) setEnabled(ctx context.Context, name string, enabled bool) error {
	sc, err := s.find(ctx, name)
	if err != nil {
		return err
	}
	if err := s.repo.SetEnabled(ctx, sc.ID, enabled); err != nil {
		return err
	}
	sc.Enabled = enabled
	action := "disabled"
	if enabled {
		action = "enabled"
	}
	s.changed(action, sc)
	return nil
}

func (s *Service) changed(action string, sc *model.Schedule) {
	s.events.Publish(events.TypeScheduleChanged, map[string]interface{}{
		"action":   action,
		"schedule": sc,
	})
}

// List returns all schedules with their next fire time.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]Entry, 0, len(list))
	for _, sc := range list {
		e := Entry{Schedule: sc}
		if sc.Enabled {
			if next, ok := NextFire(sc, now); ok {
				e.NextFire = &next
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// Test plays a ringtone now. volume < 0 uses the default schedule volume.
func (s *Service) Test(ctx context.Context, ringtoneID string, volume int) error {
	if volume < 0 {
		volume = model.DefaultScheduleVolume
	}
	if volume > 100 {
		return fmt.Errorf("%w: volume %d out of range 0-100", ErrInvalidSchedule, volume)
	}
	if _, err := s.ringtones.GetRingtone(ctx, ringtoneID); err != nil {
		return err
	}
	return s.startPlayback(ringtoneID, volume)
}

// Status reports whether playback is possible and what is playing.
func (s *Service) Status(ctx context.Context) Status {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	st := Status{
		Available: s.player.Available(),
		Running:   running,
		Playback:  s.player.State(),
	}
	if list, err := s.repo.List(ctx); err == nil {
		st.Schedules = len(list)
	}
	return st
}

// RemoveForRingtone deletes the schedules that play a removed ringtone.
func (s *Service) RemoveForRingtone(ctx context.Context, ringtoneID string) (int64, error) {
	n, err := s.repo.DeleteByRingtone(ctx, ringtoneID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("schedules removed with ringtone", logger.String("ringtone", ringtoneID), logger.Int64("count", n))
	}
	return n, nil
}
