package ringtone

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

var strippedExtensions = []string{".mp3", ".wav", ".m4a", ".ogg"}

// CleanOriginalName removes audio extensions from an uploaded file name.
func CleanOriginalName(name string) string {
	for _, ext := range strippedExtensions {
		name = strings.ReplaceAll(name, ext, "")
	}
	return name
}

// DefaultName is the display name given to a ringtone created without one.
func DefaultName(sourceName string) string {
	base := strings.TrimSuffix(sourceName, filepath.Ext(sourceName))
	return base + " (ringtone)"
}

// FileName builds the storage file name of an exported ringtone:
// ringtone_<YYYYmmdd_HHMMSS>_<clean name>_<start>s_to_<end>s.<ext>
func FileName(now time.Time, originalName string, start, end float64, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	raw := fmt.Sprintf("ringtone_%s_%s_%gs_to_%gs.%s",
		now.Format("20060102_150405"), CleanOriginalName(originalName), start, end, ext)
	return sanitize(raw)
}

// BaseName is FileName without the extension.
func BaseName(now time.Time, originalName string, start, end float64) string {
	return strings.TrimSuffix(FileName(now, originalName, start, end, "x"), ".x")
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}
	return strings.TrimRightFunc(b.String(), unicode.IsSpace)
}
