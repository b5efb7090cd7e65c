package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AvailabilityWindow is a recurring weekly window during which a mentor accepts
// sessions. Times are minutes from midnight in the mentor's time zone.
type AvailabilityWindow struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	MentorID    uuid.UUID `gorm:"not null;index" json:"-"`
	Weekday     int       `gorm:"not null" json:"weekday"`
	StartMinute int       `gorm:"not null" json:"start_minute"`
	EndMinute   int       `gorm:"not null" json:"end_minute"`

	Mentor User `gorm:"foreignkey:MentorID" json:"mentor,omitempty"`
}

func (w *AvailabilityWindow) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
