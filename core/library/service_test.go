package library

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"RingCut/core/audio"
	"RingCut/core/events"
	"RingCut/core/ringtone"
	"RingCut/model"
	"RingCut/repository"
	"RingCut/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProcessor reports a fixed duration and writes the clip options into the output file.
type fakeProcessor struct {
	duration float64
	failMP3  bool
	probes   int
	entered  chan struct{} // signalled when an extraction starts
	gate     chan struct{} // extractions wait for it to close
}

func (f *fakeProcessor) Duration(ctx context.Context, path string) (float64, error) {
	f.probes++
	return f.duration, nil
}

func (f *fakeProcessor) ExtractClip(ctx context.Context, in, out string, opts audio.ClipOptions) error {
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.failMP3 && filepath.Ext(out) == ".mp3" {
		return errors.New("encoder missing")
	}
	return os.WriteFile(out, []byte("clip of "+filepath.Base(in)), 0644)
}

type recordedEvent struct {
	Type events.Type
	Data interface{}
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) Publish(t events.Type, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{t, data})
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type memDurations struct {
	m map[string]float64
}

func (c *memDurations) GetDuration(ctx context.Context, key string) (float64, bool) {
	d, ok := c.m[key]
	return d, ok
}

func (c *memDurations) SetDuration(ctx context.Context, key string, seconds float64) {
	c.m[key] = seconds
}

type fixture struct {
	svc   *Service
	store *storage.LocalStore
	proc  *fakeProcessor
	rec   *recorder
	cache *memDurations
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewLocalStore(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	proc := &fakeProcessor{duration: 180}
	rec := &recorder{}
	durations := &memDurations{m: map[string]float64{}}
	svc := NewService(store, repository.NewMemoryAssetRepository(), proc, audio.NewExporter(proc, nil), durations, rec, Options{
		Folders: Folders{Original: "original_sound", WAV: "wav_ringtones", MP3: "mp3_ringtones"},
		TempDir: t.TempDir(),
	})
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }
	return &fixture{svc: svc, store: store, proc: proc, rec: rec, cache: durations}
}

func (f *fixture) importSong(t *testing.T) model.AudioAsset {
	t.Helper()
	a, err := f.svc.Import(context.Background(), "Morning Song.mp3", strings.NewReader("ID3 fake mp3 bytes"))
	require.NoError(t, err)
	return a
}

func (f *fixture) keys(t *testing.T, prefix string) []string {
	t.Helper()
	objs, err := f.store.List(context.Background(), prefix)
	require.NoError(t, err)
	out := make([]string, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.Key)
	}
	return out
}

func TestImport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.importSong(t)
	assert.Equal(t, model.AssetKindOriginal, a.Kind)
	assert.Equal(t, "Morning Song.mp3", a.Name)
	assert.Equal(t, 180.0, a.Duration)
	assert.Equal(t, "original_sound/"+a.ID+".mp3", a.Source)
	assert.Equal(t, []string{a.Source}, f.keys(t, "original_sound/"))
	assert.Equal(t, []events.Type{events.TypeAssetImported}, f.rec.types())

	// identical bytes hit the duration cache
	_, err := f.svc.Import(ctx, "again.mp3", strings.NewReader("ID3 fake mp3 bytes"))
	require.NoError(t, err)
	assert.Equal(t, 1, f.proc.probes)

	_, err = f.svc.Import(ctx, "voice.ogg", strings.NewReader("OggS"))
	assert.ErrorIs(t, err, audio.ErrUnsupportedFormat)
}

func TestImportRejectsSilentFile(t *testing.T) {
	f := newFixture(t)
	f.proc.duration = 0

	_, err := f.svc.Import(context.Background(), "empty.wav", strings.NewReader("RIFF"))
	assert.ErrorIs(t, err, audio.ErrUnsupportedFormat)
	assert.Empty(t, f.keys(t, ""))
}

func TestCreateRingtone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := f.importSong(t)

	rt, err := f.svc.CreateRingtone(ctx, CreateRequest{
		SourceID: src.ID,
		Settings: model.RingtoneSettings{StartTime: 10, EndTime: 25.5, FadeIn: 1, Volume: 0.8},
	})
	require.NoError(t, err)

	assert.Equal(t, "Morning Song (ringtone)", rt.Asset.Name)
	assert.Equal(t, 15.5, rt.Asset.Duration)
	assert.Equal(t, src.ID, rt.Asset.ParentID)
	assert.Equal(t, "wav_ringtones/ringtone_20240501_080000_Morning Song_10s_to_25.5s.wav", rt.WAVKey)
	assert.Equal(t, "mp3_ringtones/ringtone_20240501_080000_Morning Song_10s_to_25.5s.mp3", rt.MP3Key)
	assert.Equal(t, []Format{FormatWAV, FormatMP3}, rt.Formats())
	assert.Equal(t, 0.8, rt.Settings.Volume)
	assert.Contains(t, f.rec.types(), events.TypeRingtoneCreated)

	got, err := f.svc.GetRingtone(ctx, rt.Asset.ID)
	require.NoError(t, err)
	w, ok := got.Asset.Window()
	require.True(t, ok)
	assert.Equal(t, model.Window{Start: 10, End: 25.5}, w)

	// source untouched
	again, err := f.svc.Get(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 180.0, again.Duration)

	// same window in the same second does not overwrite the first export
	second, err := f.svc.CreateRingtone(ctx, CreateRequest{SourceID: src.ID, Settings: model.DefaultSettings(10, 25.5)})
	require.NoError(t, err)
	assert.NotEqual(t, rt.Asset.ID, second.Asset.ID)
	assert.NotEqual(t, rt.WAVKey, second.WAVKey)
	assert.Len(t, f.keys(t, "wav_ringtones/"), 2)
}

func TestCreateRingtoneRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := f.importSong(t)

	_, err := f.svc.CreateRingtone(ctx, CreateRequest{SourceID: src.ID, Settings: model.DefaultSettings(170, 200)})
	assert.ErrorIs(t, err, ringtone.ErrInvalidWindow)

	_, err = f.svc.CreateRingtone(ctx, CreateRequest{SourceID: src.ID, Settings: model.DefaultSettings(-1, 10)})
	assert.ErrorIs(t, err, ringtone.ErrInvalidWindow)

	_, err = f.svc.CreateRingtone(ctx, CreateRequest{SourceID: src.ID,
		Settings: model.RingtoneSettings{StartTime: 0, EndTime: 4, FadeIn: 3, FadeOut: 3, Volume: 1}})
	assert.ErrorIs(t, err, ringtone.ErrInvalidSettings)

	_, err = f.svc.CreateRingtone(ctx, CreateRequest{SourceID: "missing", Settings: model.DefaultSettings(0, 1)})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, f.keys(t, "wav_ringtones/"))
	assert.NotContains(t, f.rec.types(), events.TypeRingtoneCreated)
}

func TestCreateRingtoneWithoutMP3(t *testing.T) {
	f := newFixture(t)
	f.proc.failMP3 = true
	src := f.importSong(t)

	rt, err := f.svc.CreateRingtone(context.Background(), CreateRequest{SourceID: src.ID, Settings: model.DefaultSettings(0, 30)})
	require.NoError(t, err)
	assert.Empty(t, rt.MP3Key)
	assert.Equal(t, []Format{FormatWAV}, rt.Formats())

	_, err = f.svc.Open(context.Background(), rt.Asset.ID, FormatMP3)
	assert.ErrorIs(t, err, ErrFormatUnavailable)
}

func TestEditRingtone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := f.importSong(t)

	rt, err := f.svc.CreateRingtone(ctx, CreateRequest{SourceID: src.ID, Name: "alarm", Settings: model.DefaultSettings(10, 20)})
	require.NoError(t, err)

	edited, err := f.svc.EditRingtone(ctx, rt.Asset.ID, EditRequest{Settings: model.DefaultSettings(5, 120)})
	require.NoError(t, err)
	assert.Equal(t, rt.Asset.ID, edited.Asset.ID)
	assert.Equal(t, "alarm", edited.Asset.Name)
	assert.Equal(t, 115.0, edited.Asset.Duration)
	assert.NotEqual(t, rt.WAVKey, edited.WAVKey)

	// old exports are gone, new ones present
	assert.Equal(t, []string{edited.WAVKey}, f.keys(t, "wav_ringtones/"))
	assert.Equal(t, []string{edited.MP3Key}, f.keys(t, "mp3_ringtones/"))

	_, err = f.svc.EditRingtone(ctx, rt.Asset.ID, EditRequest{Settings: model.DefaultSettings(100, 200)})
	assert.ErrorIs(t, err, ringtone.ErrInvalidWindow)

	_, err = f.svc.EditRingtone(ctx, src.ID, EditRequest{Settings: model.DefaultSettings(1, 2)})
	assert.ErrorIs(t, err, ringtone.ErrNotRingtone)

	_, err = f.svc.EditRingtone(ctx, "missing", EditRequest{Settings: model.DefaultSettings(1, 2)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEditRingtoneNeverReusesItsOwnKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := f.importSong(t)

	first, err := f.svc.CreateRingtone(ctx, CreateRequest{SourceID: src.ID, Settings: model.DefaultSettings(0, 10)})
	require.NoError(t, err)
	second, err := f.svc.CreateRingtone(ctx, CreateRequest{SourceID: src.ID, Settings: model.DefaultSettings(0, 10)})
	require.NoError(t, err)
	require.NotEqual(t, first.WAVKey, second.WAVKey)

	// same window and same second: the plain name belongs to first, the suffixed one to second
	settings := model.DefaultSettings(0, 10)
	settings.FadeIn = 1
	edited, err := f.svc.EditRingtone(ctx, second.Asset.ID, EditRequest{Settings: settings})
	require.NoError(t, err)
	assert.NotEqual(t, second.WAVKey, edited.WAVKey)
	assert.NotEqual(t, second.MP3Key, edited.MP3Key)
	assert.NotEqual(t, first.WAVKey, edited.WAVKey)

	assert.ElementsMatch(t, []string{first.WAVKey, edited.WAVKey}, f.keys(t, "wav_ringtones/"))
	assert.ElementsMatch(t, []string{first.MP3Key, edited.MP3Key}, f.keys(t, "mp3_ringtones/"))

	for _, format := range []Format{FormatWAV, FormatMP3} {
		d, err := f.svc.Open(ctx, second.Asset.ID, format)
		require.NoError(t, err, format)
		require.NoError(t, d.Close())
	}

	// editing again keeps moving to free keys
	again, err := f.svc.EditRingtone(ctx, second.Asset.ID, EditRequest{Settings: model.DefaultSettings(0, 10)})
	require.NoError(t, err)
	assert.NotEqual(t, edited.WAVKey, again.WAVKey)
	d, err := f.svc.Open(ctx, second.Asset.ID, FormatWAV)
	require.NoError(t, err)
	require.NoError(t, d.Close())
}

func TestRemoveSourceWaitsForCut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := f.importSong(t)

	f.proc.entered = make(chan struct{}, 2)
	f.proc.gate = make(chan struct{})

	created := make(chan error, 1)
	go func() {
		_, err := f.svc.CreateRingtone(ctx, CreateRequest{SourceID: src.ID, Settings: model.DefaultSettings(0, 10)})
		created <- err
	}()
	<-f.proc.entered

	removed := make(chan error, 1)
	go func() { removed <- f.svc.Remove(ctx, src.ID) }()

	select {
	case err := <-removed:
		t.Fatalf("source removed while a cut was running: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(f.proc.gate)
	require.NoError(t, <-created)
	require.NoError(t, <-removed)

	rings, err := f.svc.ListRingtones(ctx)
	require.NoError(t, err)
	require.Len(t, rings, 1)
	d, err := f.svc.Open(ctx, rings[0].Asset.ID, FormatWAV)
	require.NoError(t, err)
	require.NoError(t, d.Close())
}

func TestRemoveRingtoneDeletesBothFormats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := f.importSong(t)
	rt, err := f.svc.CreateRingtone(ctx, CreateRequest{SourceID: src.ID, Settings: model.DefaultSettings(0, 10)})
	require.NoError(t, err)

	h, _, err := f.svc.Handle(ctx, rt.Asset.ID, FormatWAV)
	require.NoError(t, err)

	require.NoError(t, f.svc.Remove(ctx, rt.Asset.ID))
	assert.Empty(t, f.keys(t, "wav_ringtones/"))
	assert.Empty(t, f.keys(t, "mp3_ringtones/"))
	assert.True(t, h.Released())

	_, err = h.Open(ctx)
	assert.ErrorIs(t, err, storage.ErrHandleReleased)

	assert.ErrorIs(t, f.svc.Remove(ctx, rt.Asset.ID), ErrNotFound)
	_, err = f.svc.Open(ctx, rt.Asset.ID, FormatWAV)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, f.rec.types(), events.TypeAssetRemoved)
}

func TestRemoveOriginalKeepsRingtones(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := f.importSong(t)
	rt, err := f.svc.CreateRingtone(ctx, CreateRequest{SourceID: src.ID, Settings: model.DefaultSettings(0, 10)})
	require.NoError(t, err)

	require.NoError(t, f.svc.Remove(ctx, src.ID))
	assert.Empty(t, f.keys(t, "original_sound/"))

	d, err := f.svc.Open(ctx, rt.Asset.ID, FormatWAV)
	require.NoError(t, err)
	body, err := io.ReadAll(d)
	require.NoError(t, d.Close())
	require.NoError(t, err)
	assert.NotEmpty(t, body)
	assert.Equal(t, "audio/wav", d.ContentType)

	// the ringtone can no longer be re-cut
	_, err = f.svc.EditRingtone(ctx, rt.Asset.ID, EditRequest{Settings: model.DefaultSettings(1, 2)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListsAndOpenSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := f.importSong(t)
	_, err := f.svc.CreateRingtone(ctx, CreateRequest{SourceID: src.ID, Settings: model.DefaultSettings(0, 10)})
	require.NoError(t, err)

	originals, err := f.svc.ListOriginals(ctx)
	require.NoError(t, err)
	require.Len(t, originals, 1)

	rings, err := f.svc.ListRingtones(ctx)
	require.NoError(t, err)
	require.Len(t, rings, 1)

	d, err := f.svc.Open(ctx, src.ID, FormatSource)
	require.NoError(t, err)
	defer d.Close()
	assert.Equal(t, "Morning Song.mp3", d.Name)
	assert.Equal(t, "audio/mpeg", d.ContentType)

	_, err = f.svc.Open(ctx, src.ID, FormatMP3)
	assert.ErrorIs(t, err, ErrFormatUnavailable)
	_, err = f.svc.GetRingtone(ctx, src.ID)
	assert.ErrorIs(t, err, ringtone.ErrNotRingtone)
}

func TestRingtoneJSON(t *testing.T) {
	rt := Ringtone{
		Asset:    model.NewRingtone("r1", "clip", "p1", model.Window{Start: 1, End: 3}),
		Settings: model.DefaultSettings(1, 3),
		WAVKey:   "wav_ringtones/x.wav",
		Size:     42,
	}
	raw, err := rt.MarshalJSON()
	require.NoError(t, err)
	s := string(raw)
	assert.Contains(t, s, `"formats":["wav"]`)
	assert.Contains(t, s, `"startTime":1`)
	assert.Contains(t, s, `"type":"ringtone"`)
	assert.Contains(t, s, `"size":42`)
}
