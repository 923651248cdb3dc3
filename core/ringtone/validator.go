// Package ringtone certifies clip windows and derives ringtone descriptors from source assets.
package ringtone

import (
	"errors"
	"fmt"
	"math"

	"RingCut/model"

	"github.com/google/uuid"
)

var (
	// ErrInvalidWindow is returned when a start/end pair is not a valid clip of the source.
	ErrInvalidWindow = errors.New("invalid ringtone window")
	// ErrInvalidSettings is returned for bad fades or volume.
	ErrInvalidSettings = errors.New("invalid ringtone settings")
	// ErrParentMismatch is returned when a ringtone is edited against the wrong source.
	ErrParentMismatch = errors.New("ringtone does not belong to source")
	// ErrNotRingtone is returned when an edit targets an original.
	ErrNotRingtone = errors.New("asset is not a ringtone")
	// ErrIDCollision is returned when no id distinct from the source could be generated.
	ErrIDCollision = errors.New("could not generate a ringtone id distinct from its source")
)

const maxIDAttempts = 8

// WindowError describes a rejected window.
type WindowError struct {
	Duration float64
	Start    float64
	End      float64
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("%s: start=%g end=%g duration=%g", ErrInvalidWindow, e.Start, e.End, e.Duration)
}

// Is lets errors.Is(err, ErrInvalidWindow) match.
func (e *WindowError) Is(target error) bool {
	return target == ErrInvalidWindow
}

// CanCreate reports whether [start, end) is a non-empty window inside a source of the given duration.
func CanCreate(duration, start, end float64) bool {
	if math.IsNaN(duration) || math.IsNaN(start) || math.IsNaN(end) {
		return false
	}
	return start >= 0 && end <= duration && start < end
}

// ValidateSettings checks fades and volume against the settings' own window.
// The window itself is checked by CanCreate.
func ValidateSettings(s model.RingtoneSettings) error {
	length := s.EndTime - s.StartTime
	switch {
	case math.IsNaN(s.FadeIn) || math.IsNaN(s.FadeOut) || math.IsNaN(s.Volume):
		return fmt.Errorf("%w: NaN value", ErrInvalidSettings)
	case s.FadeIn < 0 || s.FadeOut < 0:
		return fmt.Errorf("%w: fades must not be negative", ErrInvalidSettings)
	case s.FadeIn+s.FadeOut > length:
		return fmt.Errorf("%w: fades (%g+%g) exceed clip length %g", ErrInvalidSettings, s.FadeIn, s.FadeOut, length)
	case s.Volume < 0 || s.Volume > 1:
		return fmt.Errorf("%w: volume %g outside [0,1]", ErrInvalidSettings, s.Volume)
	}
	return nil
}

// Validator creates ringtone descriptors. The zero value is usable.
type Validator struct {
	// NewID generates ids for created ringtones. Defaults to UUID v4.
	NewID func() string
	// OnCreated is invoked synchronously, once per successful creation.
	OnCreated func(model.AudioAsset)
}

// NewValidator returns a Validator that reports creations to onCreated.
func NewValidator(onCreated func(model.AudioAsset)) *Validator {
	return &Validator{OnCreated: onCreated}
}

func (v *Validator) newID() string {
	if v.NewID != nil {
		return v.NewID()
	}
	return uuid.NewString()
}

// CreateRingtone certifies the window against source and returns a new ringtone descriptor.
// The source is never modified. An empty name defaults to DefaultName(source.Name).
func (v *Validator) CreateRingtone(source model.AudioAsset, start, end float64, name string) (model.AudioAsset, error) {
	if !CanCreate(source.Duration, start, end) {
		return model.AudioAsset{}, &WindowError{Duration: source.Duration, Start: start, End: end}
	}
	if name == "" {
		name = DefaultName(source.Name)
	}

	id := v.newID()
	for attempt := 1; id == source.ID; attempt++ {
		if attempt >= maxIDAttempts {
			return model.AudioAsset{}, fmt.Errorf("%w: %s", ErrIDCollision, source.ID)
		}
		id = v.newID()
	}

	rt := model.NewRingtone(id, name, source.ID, model.Window{Start: start, End: end})
	if v.OnCreated != nil {
		v.OnCreated(rt)
	}
	return rt, nil
}

// EditRingtone moves an existing ringtone's window. The new window is checked against
// the parent's full duration, and the ringtone keeps its id. OnCreated is not called.
func (v *Validator) EditRingtone(rt, parent model.AudioAsset, start, end float64, name string) (model.AudioAsset, error) {
	if !rt.IsRingtone() {
		return model.AudioAsset{}, ErrNotRingtone
	}
	if rt.ParentID != parent.ID {
		return model.AudioAsset{}, fmt.Errorf("%w: ringtone %s, source %s", ErrParentMismatch, rt.ID, parent.ID)
	}
	if !CanCreate(parent.Duration, start, end) {
		return model.AudioAsset{}, &WindowError{Duration: parent.Duration, Start: start, End: end}
	}
	if name == "" {
		name = rt.Name
	}

	edited := model.NewRingtone(rt.ID, name, parent.ID, model.Window{Start: start, End: end})
	edited.CreatedAt = rt.CreatedAt
	return edited, nil
}
