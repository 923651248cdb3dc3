package scheduler

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"RingCut/core/events"
	"RingCut/core/library"
	"RingCut/model"
	"RingCut/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"07:30", "07:30", false},
		{"7:05", "07:05", false},
		{"23:59", "23:59", false},
		{"24:00", "", true},
		{"12:60", "", true},
		{"noon", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSchedule)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.String())
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *model.Schedule {
		return &model.Schedule{Name: "wake", RingtoneID: "r1", Clock: "07:00", Days: model.Weekdays{1, 2, 3}, Volume: 50}
	}
	require.NoError(t, Validate(valid()))

	tests := map[string]func(s *model.Schedule){
		"empty name":     func(s *model.Schedule) { s.Name = " " },
		"no ringtone":    func(s *model.Schedule) { s.RingtoneID = "" },
		"bad clock":      func(s *model.Schedule) { s.Clock = "7pm" },
		"no days":        func(s *model.Schedule) { s.Days = nil },
		"day too large":  func(s *model.Schedule) { s.Days = model.Weekdays{7} },
		"negative day":   func(s *model.Schedule) { s.Days = model.Weekdays{-1} },
		"duplicate day":  func(s *model.Schedule) { s.Days = model.Weekdays{2, 2} },
		"volume too low": func(s *model.Schedule) { s.Volume = -1 },
		"volume too big": func(s *model.Schedule) { s.Volume = 101 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			s := valid()
			mutate(s)
			assert.ErrorIs(t, Validate(s), ErrInvalidSchedule)
		})
	}
}

// 2024-05-06 is a Monday.
func monday(h, m, sec int) time.Time {
	return time.Date(2024, 5, 6, h, m, sec, 0, time.UTC)
}

func TestNextFire(t *testing.T) {
	s := &model.Schedule{Clock: "07:30", Days: model.Weekdays{1, 3}, Enabled: true}

	next, ok := NextFire(s, monday(7, 0, 0))
	require.True(t, ok)
	assert.Equal(t, monday(7, 30, 0), next)

	// strictly after
	next, ok = NextFire(s, monday(7, 30, 0))
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 5, 8, 7, 30, 0, 0, time.UTC), next)

	weekly := &model.Schedule{Clock: "07:30", Days: model.Weekdays{1}}
	next, ok = NextFire(weekly, monday(8, 0, 0))
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 5, 13, 7, 30, 0, 0, time.UTC), next)

	_, ok = NextFire(&model.Schedule{Clock: "07:30"}, monday(0, 0, 0))
	assert.False(t, ok)
}

func TestDue(t *testing.T) {
	s := &model.Schedule{Clock: "07:30", Days: model.Weekdays{1}, Enabled: true}

	at, ok := Due(s, monday(7, 29, 50), monday(7, 30, 5))
	require.True(t, ok)
	assert.Equal(t, monday(7, 30, 0), at)

	_, ok = Due(s, monday(7, 30, 0), monday(7, 30, 15))
	assert.False(t, ok, "from is exclusive")

	_, ok = Due(s, monday(7, 29, 0), monday(7, 29, 59))
	assert.False(t, ok)

	s.Enabled = false
	_, ok = Due(s, monday(7, 29, 50), monday(7, 30, 5))
	assert.False(t, ok)
}

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	block chan struct{}
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) error {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func TestExecPlayer(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	p := NewExecPlayer("/opt/ffmpeg/ffplay")
	p.run = runner.run

	done := make(chan error, 1)
	go func() { done <- p.Play(context.Background(), "/tmp/a.wav", PlayOptions{AssetID: "r1", Duration: 12, Volume: 80}) }()

	require.Eventually(t, func() bool { return p.State().IsPlaying }, time.Second, 5*time.Millisecond)
	st := p.State()
	assert.Equal(t, "r1", st.AssetID)
	assert.Equal(t, 0.8, st.Volume)
	assert.Equal(t, 12.0, st.Duration)

	close(runner.block)
	require.NoError(t, <-done)
	assert.False(t, p.State().IsPlaying)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, []string{"/opt/ffmpeg/ffplay", "-nodisp", "-autoexit", "-loglevel", "error", "-volume", "80", "/tmp/a.wav"}, runner.calls[0])
}

func TestExecPlayerStop(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	p := NewExecPlayer("")
	p.run = runner.run

	done := make(chan error, 1)
	go func() { done <- p.Play(context.Background(), "a.wav", PlayOptions{Volume: 50}) }()
	require.Eventually(t, func() bool { return p.State().IsPlaying }, time.Second, 5*time.Millisecond)

	p.Stop()
	assert.NoError(t, <-done)
	assert.False(t, p.State().IsPlaying)
}

type fakeRingtones struct {
	rings map[string]*library.Ringtone
}

func (f *fakeRingtones) GetRingtone(ctx context.Context, id string) (*library.Ringtone, error) {
	rt, ok := f.rings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", library.ErrNotFound, id)
	}
	return rt, nil
}

func (f *fakeRingtones) Open(ctx context.Context, id string, format library.Format) (*library.Download, error) {
	if _, ok := f.rings[id]; !ok {
		return nil, fmt.Errorf("%w: %s", library.ErrNotFound, id)
	}
	return &library.Download{ReadCloser: io.NopCloser(strings.NewReader("RIFF")), Name: id + ".wav"}, nil
}

type playRecord struct {
	path string
	opts PlayOptions
}

type fakePlayer struct {
	plays chan playRecord
}

func (p *fakePlayer) Play(ctx context.Context, path string, opts PlayOptions) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	p.plays <- playRecord{path, opts}
	return nil
}

func (p *fakePlayer) Stop()                       {}
func (p *fakePlayer) State() model.PlaybackState { return model.PlaybackState{} }
func (p *fakePlayer) Available() bool             { return true }

type recorder struct {
	mu     sync.Mutex
	events []events.Type
}

func (r *recorder) Publish(t events.Type, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, t)
}

func (r *recorder) count(t events.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == t {
			n++
		}
	}
	return n
}

func newTestService(t *testing.T) (*Service, *fakePlayer, *recorder) {
	t.Helper()
	rings := &fakeRingtones{rings: map[string]*library.Ringtone{
		"r1": {Asset: model.NewRingtone("r1", "alarm", "p1", model.Window{Start: 0, End: 5})},
	}}
	player := &fakePlayer{plays: make(chan playRecord, 4)}
	rec := &recorder{}
	svc := NewService(repository.NewMemoryScheduleRepository(), rings, player, rec, time.Second, t.TempDir())
	t.Cleanup(svc.Close)
	return svc, player, rec
}

func intPtr(v int) *int { return &v }

func TestServiceCreate(t *testing.T) {
	svc, _, rec := newTestService(t)
	ctx := context.Background()

	sc, err := svc.Create(ctx, CreateRequest{Name: "wake", RingtoneID: "r1", Clock: "7:30", Days: []int{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, "07:30", sc.Clock)
	assert.Equal(t, model.DefaultScheduleVolume, sc.Volume)
	assert.True(t, sc.Enabled)
	assert.Equal(t, 1, rec.count(events.TypeScheduleChanged))

	_, err = svc.Create(ctx, CreateRequest{Name: "wake", RingtoneID: "r1", Clock: "08:00", Days: []int{1}})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	_, err = svc.Create(ctx, CreateRequest{Name: "other", RingtoneID: "missing", Clock: "08:00", Days: []int{1}})
	assert.ErrorIs(t, err, library.ErrNotFound)

	_, err = svc.Create(ctx, CreateRequest{Name: "loud", RingtoneID: "r1", Clock: "08:00", Days: []int{1}, Volume: intPtr(150)})
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	quiet, err := svc.Create(ctx, CreateRequest{Name: "quiet", RingtoneID: "r1", Clock: "08:00", Days: []int{1}, Volume: intPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, 0, quiet.Volume)
}

func TestServiceEnableDisableDelete(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	svc.now = func() time.Time { return monday(6, 0, 0) }

	_, err := svc.Create(ctx, CreateRequest{Name: "wake", RingtoneID: "r1", Clock: "07:30", Days: []int{1}})
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].NextFire)
	assert.Equal(t, monday(7, 30, 0), *list[0].NextFire)

	require.NoError(t, svc.Disable(ctx, "wake"))
	list, err = svc.List(ctx)
	require.NoError(t, err)
	assert.False(t, list[0].Enabled)
	assert.Nil(t, list[0].NextFire)

	require.NoError(t, svc.Enable(ctx, "wake"))
	require.NoError(t, svc.Delete(ctx, "wake"))
	assert.ErrorIs(t, svc.Delete(ctx, "wake"), ErrNotFound)
	assert.ErrorIs(t, svc.Enable(ctx, "wake"), ErrNotFound)
}

func TestServiceFiresDueSchedulesOnce(t *testing.T) {
	svc, player, rec := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{Name: "wake", RingtoneID: "r1", Clock: "07:30", Days: []int{1}, Volume: intPtr(70)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateRequest{Name: "off", RingtoneID: "r1", Clock: "07:30", Days: []int{1}})
	require.NoError(t, err)
	require.NoError(t, svc.Disable(ctx, "off"))

	svc.fireDue(ctx, monday(7, 29, 50), monday(7, 30, 5))

	select {
	case p := <-player.plays:
		assert.Equal(t, "r1", p.opts.AssetID)
		assert.Equal(t, 70, p.opts.Volume)
		assert.Equal(t, 5.0, p.opts.Duration)
	case <-time.After(2 * time.Second):
		t.Fatal("schedule did not play")
	}
	assert.Equal(t, 1, rec.count(events.TypeScheduleFired))

	// overlapping window does not fire twice
	svc.fireDue(ctx, monday(7, 29, 55), monday(7, 30, 10))
	assert.Equal(t, 1, rec.count(events.TypeScheduleFired))

	list, err := svc.List(ctx)
	require.NoError(t, err)
	for _, e := range list {
		if e.Name == "wake" {
			require.NotNil(t, e.LastFiredAt)
			assert.True(t, e.LastFiredAt.Equal(monday(7, 30, 0)))
		} else {
			assert.Nil(t, e.LastFiredAt)
		}
	}
}

func TestServiceSkipsMissingRingtone(t *testing.T) {
	svc, player, rec := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{Name: "wake", RingtoneID: "r1", Clock: "07:30", Days: []int{1}})
	require.NoError(t, err)
	delete(svc.ringtones.(*fakeRingtones).rings, "r1")

	svc.fireDue(ctx, monday(7, 29, 50), monday(7, 30, 5))
	assert.Equal(t, 0, rec.count(events.TypeScheduleFired))
	assert.Len(t, player.plays, 0)
}

func TestServiceTestAndCleanup(t *testing.T) {
	svc, player, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Test(ctx, "r1", -1))
	select {
	case p := <-player.plays:
		assert.Equal(t, model.DefaultScheduleVolume, p.opts.Volume)
	case <-time.After(2 * time.Second):
		t.Fatal("test playback did not start")
	}
	assert.ErrorIs(t, svc.Test(ctx, "missing", 50), library.ErrNotFound)
	assert.ErrorIs(t, svc.Test(ctx, "r1", 101), ErrInvalidSchedule)

	_, err := svc.Create(ctx, CreateRequest{Name: "a", RingtoneID: "r1", Clock: "07:30", Days: []int{1}})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateRequest{Name: "b", RingtoneID: "r1", Clock: "08:30", Days: []int{2}})
	require.NoError(t, err)

	n, err := svc.RemoveForRingtone(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	st := svc.Status(ctx)
	assert.True(t, st.Available)
	assert.False(t, st.Running)
	assert.Equal(t, 0, st.Schedules)
}

func TestServiceRefusesPlaybackAfterClose(t *testing.T) {
	svc, player, rec := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{Name: "wake", RingtoneID: "r1", Clock: "07:30", Days: []int{1}})
	require.NoError(t, err)

	svc.Close()
	assert.ErrorIs(t, svc.Test(ctx, "r1", 50), ErrClosed)

	svc.fireDue(ctx, monday(7, 29, 50), monday(7, 30, 5))
	assert.Equal(t, 1, rec.count(events.TypeScheduleFired))
	assert.Len(t, player.plays, 0)
}
