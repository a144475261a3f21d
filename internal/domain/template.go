package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// TemplateStatus represents whether a template is still refreshed and served.
type TemplateStatus string

const (
	TemplateStatusActive   TemplateStatus = "active"
	TemplateStatusInactive TemplateStatus = "inactive"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
//
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return errors.New("failed to scan StringArray")
	}
	return json.Unmarshal(bytes, a)
}

// SectionType names the structural role of a template section.
type SectionType string

const (
	SectionHook         SectionType = "hook"
	SectionBody         SectionType = "body"
	SectionCallToAction SectionType = "call_to_action"
	SectionAudio        SectionType = "audio"
	SectionHashtags     SectionType = "hashtags"
)

// TemplateSection is one reusable building block extracted from a video.
type TemplateSection struct {
	Type     SectionType `json:"type"`
	Title    string      `json:"title"`
	Content  string      `json:"content"`
	StartSec float64     `json:"start_sec"`
	EndSec   float64     `json:"end_sec"`
}

// SectionList stores template sections as JSON in the database.
type SectionList []TemplateSection

// Value implements the driver.Valuer interface for database serialization.
func (l SectionList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (l *SectionList) Scan(value interface{}) error {
	if value == nil {
		*l = SectionList{}
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return errors.New("failed to scan SectionList")
	}
	return json.Unmarshal(bytes, l)
}

// TemplateStats holds the engagement counters copied from the source video.
type TemplateStats struct {
	Views    int64 `json:"views"`
	Likes    int64 `json:"likes"`
	Shares   int64 `json:"shares"`
	Comments int64 `json:"comments"`
	Saves    int64 `json:"saves"`
}

// Template is a content template derived from one trending video.
type Template struct {
	ID             string         `gorm:"type:text;primaryKey" json:"id"`
	SourceID       string         `gorm:"type:text;not null;uniqueIndex:idx_templates_source" json:"source_id"`
	Title          string         `gorm:"type:text" json:"title"`
	Description    string         `gorm:"type:text" json:"description"`
	Category       string         `gorm:"type:text;index:idx_templates_category" json:"category"`
	Sections       SectionList    `gorm:"type:text" json:"sections"`
	Hashtags       StringArray    `gorm:"type:text" json:"hashtags"`
	Author         string         `gorm:"type:text" json:"author"`
	MusicName      string         `gorm:"type:text" json:"music_name,omitempty"`
	MusicAuthor    string         `gorm:"type:text" json:"music_author,omitempty"`
	VideoURL       string         `gorm:"type:text" json:"video_url"`
	CoverURL       string         `gorm:"type:text" json:"cover_url,omitempty"`
	DurationSec    int            `json:"duration_sec"`
	Views          int64          `json:"views"`
	Likes          int64          `json:"likes"`
	Shares         int64          `json:"shares"`
	Comments       int64          `json:"comments"`
	Saves          int64          `json:"saves"`
	Status         TemplateStatus `gorm:"type:text;index:idx_templates_status;default:active" json:"status"`
	StatsUpdatedAt *time.Time     `json:"stats_updated_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// TableName returns the database table name for Template.
func (Template) TableName() string {
	return "templates"
}

// Stats returns the engagement counters currently stored on the template.
func (t *Template) Stats() TemplateStats {
	return TemplateStats{
		Views:    t.Views,
		Likes:    t.Likes,
		Shares:   t.Shares,
		Comments: t.Comments,
		Saves:    t.Saves,
	}
}
