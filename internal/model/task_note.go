package model

import "time"

// TaskNote is an append-only comment on a task activity
type TaskNote struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	ActivityID  uint      `json:"activity_id" gorm:"not null;index"`
	Activity    *Activity `json:"-" gorm:"foreignKey:ActivityID;constraint:OnDelete:CASCADE"`
	Note        string    `json:"note" gorm:"type:text;not null"`
	CreatedByID uint      `json:"created_by_id" gorm:"not null;index"`
	CreatedBy   *User     `json:"created_by,omitempty" gorm:"foreignKey:CreatedByID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time `json:"created_date" gorm:"index"`
}
