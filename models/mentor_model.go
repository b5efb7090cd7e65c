package models

import (
	"time"

	"github.com/google/uuid"
)

type Mentor struct {
	UserID   uuid.UUID `gorm:"primary_key" json:"user_id"`
	Headline *string   `gorm:"size:255" json:"headline"`
	Bio      *string   `gorm:"type:text" json:"bio"`
	Status   string    `gorm:"size:20;not null;default:'pending'" json:"status"`

	SessionRateCents int64 `gorm:"not null;default:0" json:"session_rate_cents"`

	// Stripe Connect sub-account receiving transfers. Nil until the first
	// withdrawal attempt creates one.
	StripeAccountID *string `gorm:"size:255;unique" json:"-"`

	// Persistent meeting room. When set, rescheduled sessions reuse it instead
	// of creating a new calendar event.
	MeetingLink *string `gorm:"size:255" json:"meeting_link"`

	User User `gorm:"foreignkey:UserID" json:"user"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}
