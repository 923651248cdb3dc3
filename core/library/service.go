// Package library imports source audio and manages the ringtones cut from it.
package library

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"RingCut/cache"
	"RingCut/core/audio"
	"RingCut/core/events"
	"RingCut/core/ringtone"
	"RingCut/logger"
	"RingCut/model"
	"RingCut/repository"
	"RingCut/storage"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for unknown asset ids.
	ErrNotFound = errors.New("asset not found")
	// ErrFormatUnavailable is returned when a ringtone has no export in the requested format.
	ErrFormatUnavailable = errors.New("format not available")
)

// Format selects which bytes of an asset to open.
type Format string

const (
	FormatSource Format = ""
	FormatWAV    Format = "wav"
	FormatMP3    Format = "mp3"
)

// Ringtone is a ringtone asset together with its settings and exports.
type Ringtone struct {
	Asset    model.AudioAsset
	Settings model.RingtoneSettings
	WAVKey   string
	MP3Key   string
	Size     int64
}

// Formats lists the available export formats.
func (r Ringtone) Formats() []Format {
	out := []Format{FormatWAV}
	if r.MP3Key != "" {
		out = append(out, FormatMP3)
	}
	return out
}

// MarshalJSON flattens the asset and adds settings and formats.
func (r Ringtone) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(r.Asset)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	out["settings"] = r.Settings
	out["formats"] = r.Formats()
	out["size"] = r.Size
	return json.Marshal(out)
}

func ringtoneFromRecord(rec *model.AssetRecord) *Ringtone {
	return &Ringtone{
		Asset:    rec.Asset(),
		Settings: rec.Settings(),
		WAVKey:   rec.SourceKey,
		MP3Key:   rec.MP3Key,
		Size:     rec.Size,
	}
}

// Folders are the object key prefixes used by the library.
type Folders struct {
	Original string
	WAV      string
	MP3      string
}

// Options configures a Service.
type Options struct {
	Folders Folders
	TempDir string
	Artist  string // written to the ID3 artist frame of MP3 exports
}

// Service owns imported originals and the ringtones cut from them.
type Service struct {
	store     storage.Store
	assets    repository.AssetRepository
	proc      audio.Processor
	exporter  *audio.Exporter
	durations cache.DurationCache
	events    events.Publisher
	validator *ringtone.Validator
	opts      Options
	now       func() time.Time

	locks   sync.Map // asset id -> *sync.Mutex
	mu      sync.Mutex
	handles map[string]*storage.Handle // object key -> handle
}

// NewService wires a library. durations and pub may be nil.
func NewService(store storage.Store, assets repository.AssetRepository, proc audio.Processor, exporter *audio.Exporter,
	durations cache.DurationCache, pub events.Publisher, opts Options) *Service {
	if pub == nil {
		pub = events.Discard
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Artist == "" {
		opts.Artist = "RingCut"
	}
	s := &Service{
		store:     store,
		assets:    assets,
		proc:      proc,
		exporter:  exporter,
		durations: durations,
		events:    pub,
		opts:      opts,
		now:       time.Now,
		handles:   make(map[string]*storage.Handle),
	}
	s.validator = ringtone.NewValidator(func(a model.AudioAsset) {
		w, _ := a.Window()
		logger.Info("ringtone window certified",
			logger.String("id", a.ID),
			logger.String("parent", a.ParentID),
			logger.Float64("start", w.Start),
			logger.Float64("end", w.End))
	})
	return s
}

func (s *Service) lockAsset(id string) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// handle returns the handle for key, acquiring it on first use.
func (s *Service) handle(key string) *storage.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[key]
	if !ok {
		h = storage.NewHandle(s.store, key)
		s.handles[key] = h
	}
	return h
}

// release releases the handle for key exactly once and forgets it.
func (s *Service) release(ctx context.Context, key string) {
	if key == "" {
		return
	}
	s.mu.Lock()
	h, ok := s.handles[key]
	if !ok {
		h = storage.NewHandle(s.store, key)
	}
	delete(s.handles, key)
	s.mu.Unlock()

	if err := h.Release(ctx); err != nil {
		logger.Warn("failed to release object", logger.String("key", key), logger.ErrorField(err))
	}
}

func (s *Service) get(ctx context.Context, id string) (*model.AssetRecord, error) {
	rec, err := s.assets.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load asset %s: %w", id, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// Import stores an uploaded MP3/WAV file as a new original.
func (s *Service) Import(ctx context.Context, filename string, r io.Reader) (model.AudioAsset, error) {
	ext, err := audio.CheckExtension(filename)
	if err != nil {
		return model.AudioAsset{}, err
	}

	if err := os.MkdirAll(s.opts.TempDir, 0755); err != nil {
		return model.AudioAsset{}, fmt.Errorf("create temp dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.opts.TempDir, "upload-*"+ext)
	if err != nil {
		return model.AudioAsset{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	_, err = io.Copy(io.MultiWriter(tmp, hasher), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return model.AudioAsset{}, fmt.Errorf("buffer upload: %w", err)
	}

	duration, err := s.probe(ctx, tmp.Name(), "sha256:"+hex.EncodeToString(hasher.Sum(nil)))
	if err != nil {
		return model.AudioAsset{}, err
	}

	id := uuid.NewString()
	key := storage.Key(s.opts.Folders.Original, id+ext)
	info, err := storage.PutFile(ctx, s.store, key, tmp.Name())
	if err != nil {
		return model.AudioAsset{}, fmt.Errorf("store original: %w", err)
	}

	asset := model.NewOriginal(id, filepath.Base(filename), key, duration)
	rec := model.NewAssetRecord(asset, model.RingtoneSettings{})
	rec.Size = info.Size
	if err := s.assets.Create(ctx, rec); err != nil {
		if derr := s.store.Delete(ctx, key); derr != nil {
			logger.Warn("failed to clean up original", logger.String("key", key), logger.ErrorField(derr))
		}
		return model.AudioAsset{}, fmt.Errorf("save original: %w", err)
	}
	s.handle(key)

	logger.Info("original imported",
		logger.String("id", id),
		logger.String("name", asset.Name),
		logger.Float64("duration", duration),
		logger.Int64("size", info.Size))
	s.events.Publish(events.TypeAssetImported, asset)
	return asset, nil
}

// ImportFile imports a file from the local filesystem.
func (s *Service) ImportFile(ctx context.Context, path string) (model.AudioAsset, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.AudioAsset{}, err
	}
	defer f.Close()
	return s.Import(ctx, filepath.Base(path), f)
}

func (s *Service) probe(ctx context.Context, path, contentKey string) (float64, error) {
	if s.durations != nil {
		if d, ok := s.durations.GetDuration(ctx, contentKey); ok {
			return d, nil
		}
	}
	d, err := s.proc.Duration(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", audio.ErrUnsupportedFormat, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: no playable audio", audio.ErrUnsupportedFormat)
	}
	if s.durations != nil {
		s.durations.SetDuration(ctx, contentKey, d)
	}
	return d, nil
}

// CreateRequest asks for a ringtone cut from SourceID.
type CreateRequest struct {
	SourceID string
	Name     string
	Settings model.RingtoneSettings
}

// EditRequest moves an existing ringtone's window or changes its settings.
type EditRequest struct {
	Name     string
	Settings model.RingtoneSettings
}

func checkRequest(source model.AudioAsset, settings model.RingtoneSettings) error {
	if !ringtone.CanCreate(source.Duration, settings.StartTime, settings.EndTime) {
		return &ringtone.WindowError{Duration: source.Duration, Start: settings.StartTime, End: settings.EndTime}
	}
	return ringtone.ValidateSettings(settings)
}

// CreateRingtone validates the window, exports WAV and MP3 and persists the new ringtone.
func (s *Service) CreateRingtone(ctx context.Context, req CreateRequest) (*Ringtone, error) {
	// the source stays in place until the cut is persisted
	unlock := s.lockAsset(req.SourceID)
	defer unlock()

	parentRec, err := s.get(ctx, req.SourceID)
	if err != nil {
		return nil, err
	}
	parent := parentRec.Asset()
	if err := checkRequest(parent, req.Settings); err != nil {
		return nil, err
	}

	rt, err := s.validator.CreateRingtone(parent, req.Settings.StartTime, req.Settings.EndTime, req.Name)
	if err != nil {
		return nil, err
	}

	exp, err := s.export(ctx, parentRec, rt, req.Settings)
	if err != nil {
		return nil, err
	}
	rt.Source = exp.wavKey

	rec := model.NewAssetRecord(rt, req.Settings)
	rec.MP3Key = exp.mp3Key
	rec.Size = exp.size
	if err := s.assets.Create(ctx, rec); err != nil {
		exp.discard(ctx, s.store)
		return nil, fmt.Errorf("save ringtone: %w", err)
	}
	s.handle(exp.wavKey)
	if exp.mp3Key != "" {
		s.handle(exp.mp3Key)
	}

	out := ringtoneFromRecord(rec)
	s.events.Publish(events.TypeRingtoneCreated, out)
	return out, nil
}

// EditRingtone re-cuts a ringtone from its source. The ringtone keeps its id;
// the previous exports are released once the new ones are stored.
func (s *Service) EditRingtone(ctx context.Context, id string, req EditRequest) (*Ringtone, error) {
	unlock := s.lockAsset(id)
	defer unlock()

	rec, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	current := rec.Asset()
	if !current.IsRingtone() {
		return nil, ringtone.ErrNotRingtone
	}
	unlockParent := s.lockAsset(current.ParentID)
	defer unlockParent()

	parentRec, err := s.get(ctx, current.ParentID)
	if err != nil {
		return nil, fmt.Errorf("source of ringtone %s: %w", id, err)
	}
	parent := parentRec.Asset()
	if err := checkRequest(parent, req.Settings); err != nil {
		return nil, err
	}

	edited, err := s.validator.EditRingtone(current, parent, req.Settings.StartTime, req.Settings.EndTime, req.Name)
	if err != nil {
		return nil, err
	}

	exp, err := s.export(ctx, parentRec, edited, req.Settings, rec.SourceKey, rec.MP3Key)
	if err != nil {
		return nil, err
	}
	edited.Source = exp.wavKey

	oldWAV, oldMP3 := rec.SourceKey, rec.MP3Key
	next := model.NewAssetRecord(edited, req.Settings)
	next.MP3Key = exp.mp3Key
	next.Size = exp.size
	if err := s.assets.Update(ctx, next); err != nil {
		exp.discard(ctx, s.store)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("update ringtone: %w", err)
	}

	s.handle(exp.wavKey)
	if exp.mp3Key != "" {
		s.handle(exp.mp3Key)
	}
	s.release(ctx, oldWAV)
	s.release(ctx, oldMP3)

	out := ringtoneFromRecord(next)
	s.events.Publish(events.TypeRingtoneUpdated, out)
	return out, nil
}

type exportedKeys struct {
	wavKey string
	mp3Key string
	size   int64
}

func (e *exportedKeys) discard(ctx context.Context, store storage.Store) {
	for _, key := range []string{e.wavKey, e.mp3Key} {
		if key == "" {
			continue
		}
		if err := store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			logger.Warn("failed to clean up export", logger.String("key", key), logger.ErrorField(err))
		}
	}
}

// uniqueKey avoids overwriting an existing object with the same timestamped name.
// Keys in owned belong to the asset being re-cut and are never reused.
func (s *Service) uniqueKey(ctx context.Context, folder, base, ext, id string, owned ...string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	taken := func(key string) bool {
		for _, k := range owned {
			if k == key {
				return true
			}
		}
		_, err := s.store.Stat(ctx, key)
		return !errors.Is(err, storage.ErrObjectNotFound)
	}

	key := storage.Key(folder, base+ext)
	if !taken(key) {
		return key
	}
	key = storage.Key(folder, base+"_"+short+ext)
	for n := 2; taken(key); n++ {
		key = storage.Key(folder, fmt.Sprintf("%s_%s_%d%s", base, short, n, ext))
	}
	return key
}

// export renders rt from the parent's bytes and uploads the results under keys not in owned.
func (s *Service) export(ctx context.Context, parentRec *model.AssetRecord, rt model.AudioAsset, settings model.RingtoneSettings, owned ...string) (*exportedKeys, error) {
	workDir, err := os.MkdirTemp(s.opts.TempDir, "export-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	src, err := storage.Fetch(ctx, s.store, parentRec.SourceKey, workDir)
	if err != nil {
		return nil, fmt.Errorf("fetch source %s: %w", parentRec.ID, err)
	}

	base := ringtone.BaseName(s.now(), parentRec.Name, settings.StartTime, settings.EndTime)
	tag := &audio.TagInfo{
		Title:   rt.Name,
		Artist:  s.opts.Artist,
		Album:   ringtone.CleanOriginalName(parentRec.Name),
		Comment: fmt.Sprintf("%gs-%gs of %s", settings.StartTime, settings.EndTime, parentRec.Name),
	}
	res, err := s.exporter.Export(ctx, src, workDir, base, audio.ClipOptionsFromSettings(settings), tag)
	if err != nil {
		return nil, err
	}

	out := &exportedKeys{wavKey: s.uniqueKey(ctx, s.opts.Folders.WAV, base, ".wav", rt.ID, owned...)}
	info, err := storage.PutFile(ctx, s.store, out.wavKey, res.WAVPath)
	if err != nil {
		return nil, fmt.Errorf("store wav: %w", err)
	}
	out.size = info.Size

	if res.MP3Path != "" {
		mp3Key := s.uniqueKey(ctx, s.opts.Folders.MP3, base, ".mp3", rt.ID, owned...)
		if _, err := storage.PutFile(ctx, s.store, mp3Key, res.MP3Path); err != nil {
			logger.Warn("failed to store mp3 copy", logger.String("key", mp3Key), logger.ErrorField(err))
		} else {
			out.mp3Key = mp3Key
		}
	}
	return out, nil
}

// Remove deletes an asset and releases its stored bytes. Ringtones lose both formats.
func (s *Service) Remove(ctx context.Context, id string) error {
	unlock := s.lockAsset(id)
	defer unlock()

	rec, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.assets.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("delete asset %s: %w", id, err)
	}

	s.release(ctx, rec.SourceKey)
	s.release(ctx, rec.MP3Key)
	s.locks.Delete(id)

	logger.Info("asset removed", logger.String("id", id), logger.String("kind", string(rec.Kind)))
	s.events.Publish(events.TypeAssetRemoved, map[string]string{"id": id, "type": string(rec.Kind)})
	return nil
}

// Get returns any asset by id.
func (s *Service) Get(ctx context.Context, id string) (model.AudioAsset, error) {
	rec, err := s.get(ctx, id)
	if err != nil {
		return model.AudioAsset{}, err
	}
	return rec.Asset(), nil
}

// GetRingtone returns a ringtone with its settings.
func (s *Service) GetRingtone(ctx context.Context, id string) (*Ringtone, error) {
	rec, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Kind != model.AssetKindRingtone {
		return nil, fmt.Errorf("%w: %s", ringtone.ErrNotRingtone, id)
	}
	return ringtoneFromRecord(rec), nil
}

// ListOriginals returns imported originals, newest first.
func (s *Service) ListOriginals(ctx context.Context) ([]model.AudioAsset, error) {
	recs, err := s.assets.List(ctx, model.AssetKindOriginal)
	if err != nil {
		return nil, err
	}
	out := make([]model.AudioAsset, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Asset())
	}
	return out, nil
}

// ListRingtones returns ringtones, newest first.
func (s *Service) ListRingtones(ctx context.Context) ([]*Ringtone, error) {
	recs, err := s.assets.List(ctx, model.AssetKindRingtone)
	if err != nil {
		return nil, err
	}
	out := make([]*Ringtone, 0, len(recs))
	for _, rec := range recs {
		out = append(out, ringtoneFromRecord(rec))
	}
	return out, nil
}

// Handle returns the byte handle behind an asset in the given format.
func (s *Service) Handle(ctx context.Context, id string, format Format) (*storage.Handle, *model.AssetRecord, error) {
	rec, err := s.get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	key := rec.SourceKey
	switch format {
	case FormatSource:
	case FormatWAV:
		if rec.Kind != model.AssetKindRingtone {
			return nil, nil, fmt.Errorf("%w: %s", ErrFormatUnavailable, format)
		}
	case FormatMP3:
		if rec.Kind != model.AssetKindRingtone || rec.MP3Key == "" {
			return nil, nil, fmt.Errorf("%w: %s", ErrFormatUnavailable, format)
		}
		key = rec.MP3Key
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrFormatUnavailable, format)
	}
	return s.handle(key), rec, nil
}

// Download is an open stream of an asset's bytes.
type Download struct {
	io.ReadCloser
	Name        string
	ContentType string
	Size        int64
	ModTime     time.Time
}

// Open streams an asset's bytes. A released handle yields storage.ErrHandleReleased.
func (s *Service) Open(ctx context.Context, id string, format Format) (*Download, error) {
	h, rec, err := s.Handle(ctx, id, format)
	if err != nil {
		return nil, err
	}
	info, err := h.Stat(ctx)
	if err != nil {
		return nil, err
	}
	rc, err := h.Open(ctx)
	if err != nil {
		return nil, err
	}

	name := rec.Name
	if rec.Kind == model.AssetKindRingtone {
		name = filepath.Base(h.Key())
	}
	return &Download{ReadCloser: rc, Name: name, ContentType: info.ContentType, Size: info.Size, ModTime: info.LastModified}, nil
}

// TempDir is the scratch directory used for exports.
func (s *Service) TempDir() string {
	return s.opts.TempDir
}
