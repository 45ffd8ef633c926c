package model

import (
	"io"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// ActivityType identifies what happened on a lead
type ActivityType string

const (
	ActivityCall     ActivityType = "call"
	ActivityNote     ActivityType = "note"
	ActivityTask     ActivityType = "task"
	ActivityPurchase ActivityType = "purchase"
)

// Valid reports whether t is a known activity type
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityCall, ActivityNote, ActivityTask, ActivityPurchase:
		return true
	}
	return false
}

// Priority of a task
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority. No priority is allowed.
func (p Priority) Valid() bool {
	switch p {
	case "", PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// RecordingDir is the storage folder for call recordings
const RecordingDir = "Call Recordings"

// Activity is one entry on a lead's timeline. The recording only applies to
// calls, and due date, priority and completion only apply to tasks; use
// Details to get the fields that belong to the type.
type Activity struct {
	ID          uint         `json:"id" gorm:"primaryKey"`
	LeadID      uuid.UUID    `json:"lead_id" gorm:"type:uuid;not null;index"`
	Lead        *Lead        `json:"-" gorm:"foreignKey:LeadID;constraint:OnDelete:CASCADE"`
	Type        ActivityType `json:"activity_type" gorm:"column:activity_type;type:varchar(20);not null;index"`
	Description string       `json:"description" gorm:"type:text;not null"`
	CreatedByID uint         `json:"created_by_id" gorm:"not null;index"`
	CreatedBy   *User        `json:"created_by,omitempty" gorm:"foreignKey:CreatedByID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time    `json:"created_date" gorm:"index"`
	Recording   string       `json:"recording" gorm:"type:varchar(255)"`
	DueDate     *time.Time   `json:"due_date"`
	Priority    Priority     `json:"priority" gorm:"type:varchar(10)"`
	IsCompleted bool         `json:"is_completed" gorm:"not null;default:false"`
}

// IsOverdue reports whether an open task is past its due date
func (a *Activity) IsOverdue(now time.Time) bool {
	if a.Type != ActivityTask || a.DueDate == nil || a.IsCompleted {
		return false
	}
	return now.After(*a.DueDate)
}

// Details returns the type specific part of the activity
func (a *Activity) Details() ActivityDetails {
	switch a.Type {
	case ActivityCall:
		return CallDetails{RecordingPath: a.Recording}
	case ActivityTask:
		return TaskDetails{DueDate: a.DueDate, Priority: a.Priority, Completed: a.IsCompleted}
	case ActivityPurchase:
		return PurchaseDetails{}
	default:
		return NoteDetails{}
	}
}

// ActivityDetails holds the fields that only make sense for one activity type
type ActivityDetails interface {
	ActivityType() ActivityType
}

// Upload is a file received with a call activity
type Upload struct {
	Filename string
	Content  io.Reader
}

// CallDetails carries the optional recording of a call. Upload is set when a
// new recording is being attached; RecordingPath is the stored reference.
type CallDetails struct {
	Upload        *Upload
	RecordingPath string
}

func (CallDetails) ActivityType() ActivityType { return ActivityCall }

// NoteDetails has no extra fields
type NoteDetails struct{}

func (NoteDetails) ActivityType() ActivityType { return ActivityNote }

// TaskDetails carries the scheduling fields of a task
type TaskDetails struct {
	DueDate   *time.Time
	Priority  Priority
	Completed bool
}

func (TaskDetails) ActivityType() ActivityType { return ActivityTask }

// PurchaseDetails has no extra fields
type PurchaseDetails struct{}

func (PurchaseDetails) ActivityType() ActivityType { return ActivityPurchase }

// RecordingFilename names a call recording after the customer and the save
// time: "<name>__<YYYYMMDD_HHMMSS>.<ext>". Runes other than letters and
// digits become underscores and the extension defaults to mp3.
func RecordingFilename(customerName, uploadName string, at time.Time) string {
	if customerName == "" {
		customerName = "Unknown"
	}
	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, customerName)

	ext := "mp3"
	base := path.Base(strings.ReplaceAll(uploadName, "\\", "/"))
	if i := strings.LastIndex(base, "."); i >= 0 && i < len(base)-1 {
		ext = base[i+1:]
	}

	return sanitized + "__" + at.UTC().Format("20060102_150405") + "." + ext
}

// RecordingPath is the storage reference for a recording filename
func RecordingPath(filename string) string {
	return RecordingDir + "/" + filename
}
