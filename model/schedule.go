package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Weekdays holds days of the week, 0 = Sunday ... 6 = Saturday.
// Stored as a JSON column.
type Weekdays []int

// Scan 实现 sql.Scanner 接口
func (d *Weekdays) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported weekdays column type %T", value)
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		*d = nil
		return nil
	}
	return json.Unmarshal(bytes, d)
}

// Value 实现 driver.Valuer 接口
func (d Weekdays) Value() (driver.Value, error) {
	if d == nil {
		return "[]", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Contains reports whether wd is one of the days.
func (d Weekdays) Contains(wd time.Weekday) bool {
	for _, day := range d {
		if day == int(wd) {
			return true
		}
	}
	return false
}

// DefaultScheduleVolume is used when a schedule is created without a volume.
const DefaultScheduleVolume = 50

// Schedule plays a ringtone at a wall-clock time on selected weekdays.
type Schedule struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	Name        string     `json:"name" gorm:"size:100;uniqueIndex;not null"`
	RingtoneID  string     `json:"ringtoneId" gorm:"size:36;index;not null"`
	Clock       string     `json:"time" gorm:"size:5;not null"` // HH:MM
	Days        Weekdays   `json:"days" gorm:"type:json"`
	Volume      int        `json:"volume"` // 0..100
	Enabled     bool       `json:"enabled"`
	LastFiredAt *time.Time `json:"lastFiredAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TableName 指定表名
func (Schedule) TableName() string {
	return "ringtone_schedules"
}
