package model

import (
	"encoding/json"
	"time"
)

// AssetKind distinguishes imported originals from derived ringtones.
type AssetKind string

const (
	AssetKindOriginal AssetKind = "original"
	AssetKindRingtone AssetKind = "ringtone"
)

// Window is a [Start, End) span on a source asset, in seconds.
type Window struct {
	Start float64 `json:"startTime"`
	End   float64 `json:"endTime"`
}

// Length returns End - Start.
func (w Window) Length() float64 {
	return w.End - w.Start
}

// AudioAsset is an imported sound or a ringtone cut from one.
// The window is only reachable through Window() and only exists for ringtones.
// Build values with NewOriginal or NewRingtone; a literal with Kind set to
// AssetKindRingtone has no window and is not treated as a ringtone.
type AudioAsset struct {
	ID        string
	Name      string
	Source    string // object key of the backing bytes, empty until exported
	Duration  float64
	Kind      AssetKind
	ParentID  string
	CreatedAt time.Time

	window *Window
}

// NewOriginal builds an original asset. Originals never carry a window.
func NewOriginal(id, name, source string, duration float64) AudioAsset {
	return AudioAsset{
		ID:        id,
		Name:      name,
		Source:    source,
		Duration:  duration,
		Kind:      AssetKindOriginal,
		CreatedAt: time.Now(),
	}
}

// NewRingtone builds a ringtone descriptor whose duration is the window length.
func NewRingtone(id, name, parentID string, w Window) AudioAsset {
	return AudioAsset{
		ID:        id,
		Name:      name,
		Duration:  w.Length(),
		Kind:      AssetKindRingtone,
		ParentID:  parentID,
		CreatedAt: time.Now(),
		window:    &w,
	}
}

// Window returns the clip window and whether the asset has one.
func (a AudioAsset) Window() (Window, bool) {
	if a.window == nil {
		return Window{}, false
	}
	return *a.window, true
}

// IsRingtone reports whether the asset is a ringtone carrying its window.
func (a AudioAsset) IsRingtone() bool {
	return a.Kind == AssetKindRingtone && a.window != nil
}

type audioAssetJSON struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Duration  float64   `json:"duration"`
	Type      AssetKind `json:"type"`
	ParentID  string    `json:"parentId,omitempty"`
	StartTime *float64  `json:"startTime,omitempty"`
	EndTime   *float64  `json:"endTime,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// MarshalJSON matches the front-end AudioFile shape.
func (a AudioAsset) MarshalJSON() ([]byte, error) {
	out := audioAssetJSON{
		ID:        a.ID,
		Name:      a.Name,
		Duration:  a.Duration,
		Type:      a.Kind,
		ParentID:  a.ParentID,
		CreatedAt: a.CreatedAt,
	}
	if w, ok := a.Window(); ok {
		out.StartTime = &w.Start
		out.EndTime = &w.End
	}
	return json.Marshal(out)
}

// RingtoneSettings carries the user's choices for a clip.
type RingtoneSettings struct {
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	FadeIn    float64 `json:"fadeIn"`
	FadeOut   float64 `json:"fadeOut"`
	Volume    float64 `json:"volume"` // 0..1
}

// DefaultSettings returns settings for a window with no fades at full volume.
func DefaultSettings(start, end float64) RingtoneSettings {
	return RingtoneSettings{StartTime: start, EndTime: end, Volume: 1}
}

// Window returns the settings' time span.
func (s RingtoneSettings) Window() Window {
	return Window{Start: s.StartTime, End: s.EndTime}
}

// PlaybackState is reported by the scheduler's player.
type PlaybackState struct {
	IsPlaying   bool    `json:"isPlaying"`
	CurrentTime float64 `json:"currentTime"`
	Duration    float64 `json:"duration"`
	Volume      float64 `json:"volume"`
	AssetID     string  `json:"assetId,omitempty"`
}
