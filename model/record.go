package model

import "time"

// AssetRecord is the persisted form of an AudioAsset.
// Ringtone rows also keep their clip settings and exported object keys.
type AssetRecord struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Name      string    `gorm:"size:255;not null"`
	Kind      AssetKind `gorm:"size:16;index;not null"`
	ParentID  string    `gorm:"size:36;index"`
	SourceKey string    `gorm:"size:512"` // original bytes, or the WAV export for ringtones
	MP3Key    string    `gorm:"size:512"`
	Duration  float64
	StartTime *float64
	EndTime   *float64
	FadeIn    float64
	FadeOut   float64
	Volume    float64
	Size      int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定表名
func (AssetRecord) TableName() string {
	return "audio_assets"
}

// NewAssetRecord flattens an asset and its settings into a row.
func NewAssetRecord(a AudioAsset, s RingtoneSettings) *AssetRecord {
	rec := &AssetRecord{
		ID:        a.ID,
		Name:      a.Name,
		Kind:      a.Kind,
		ParentID:  a.ParentID,
		SourceKey: a.Source,
		Duration:  a.Duration,
		CreatedAt: a.CreatedAt,
	}
	if w, ok := a.Window(); ok {
		start, end := w.Start, w.End
		rec.StartTime = &start
		rec.EndTime = &end
		rec.FadeIn = s.FadeIn
		rec.FadeOut = s.FadeOut
		rec.Volume = s.Volume
	}
	return rec
}

// Asset rebuilds the tagged AudioAsset from the row.
func (r *AssetRecord) Asset() AudioAsset {
	var a AudioAsset
	if r.Kind == AssetKindRingtone && r.StartTime != nil && r.EndTime != nil {
		a = NewRingtone(r.ID, r.Name, r.ParentID, Window{Start: *r.StartTime, End: *r.EndTime})
		a.Source = r.SourceKey
	} else {
		a = NewOriginal(r.ID, r.Name, r.SourceKey, r.Duration)
	}
	a.CreatedAt = r.CreatedAt
	return a
}

// Settings returns the clip settings of a ringtone row.
func (r *AssetRecord) Settings() RingtoneSettings {
	s := RingtoneSettings{FadeIn: r.FadeIn, FadeOut: r.FadeOut, Volume: r.Volume}
	if r.StartTime != nil {
		s.StartTime = *r.StartTime
	}
	if r.EndTime != nil {
		s.EndTime = *r.EndTime
	}
	return s
}
