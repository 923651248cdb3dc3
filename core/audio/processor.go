package audio

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"RingCut/model"
)

// ErrUnsupportedFormat is returned for files that are neither MP3 nor WAV.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Processor defines the audio operations the library needs.
type Processor interface {
	// Duration returns the playable length of a file in seconds.
	Duration(ctx context.Context, path string) (float64, error)
	// ExtractClip writes the window described by opts to out, encoded by out's extension.
	ExtractClip(ctx context.Context, in, out string, opts ClipOptions) error
}

// ClipOptions describes one clip extraction.
type ClipOptions struct {
	Start   float64
	End     float64
	FadeIn  float64
	FadeOut float64
	Volume  float64 // 0..1, 1 leaves the level untouched
}

// Length returns the clip length in seconds.
func (o ClipOptions) Length() float64 {
	return o.End - o.Start
}

// ClipOptionsFromSettings converts user settings to extraction options.
func ClipOptionsFromSettings(s model.RingtoneSettings) ClipOptions {
	return ClipOptions{
		Start:   s.StartTime,
		End:     s.EndTime,
		FadeIn:  s.FadeIn,
		FadeOut: s.FadeOut,
		Volume:  s.Volume,
	}
}

// CheckExtension returns the lower-cased extension of name if it is an accepted upload format.
func CheckExtension(name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".mp3", ".wav":
		return ext, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}
