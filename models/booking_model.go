package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BookingStatus string

const (
	BookingConfirmed         BookingStatus = "confirmed"
	BookingCompleted         BookingStatus = "completed"
	BookingCancelledByMentor BookingStatus = "cancelled_by_tutor"
	BookingRefunded          BookingStatus = "refunded"
	BookingSchedulingFailed  BookingStatus = "SCHEDULING_FAILED"
)

// Terminal reports whether the booking can no longer change state.
func (s BookingStatus) Terminal() bool {
	return s == BookingRefunded
}

type Booking struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	MentorID     uuid.UUID `gorm:"not null;uniqueIndex:idx_mentor_slot" json:"mentor_id"`
	StudentID    *uuid.UUID `json:"student_id"`
	StudentEmail string    `gorm:"size:255" json:"student_email"`
	StudentName  string    `gorm:"size:255" json:"student_name"`

	Date   string        `gorm:"size:10;not null;uniqueIndex:idx_mentor_slot" json:"date"` // 2006-01-02
	Time   string        `gorm:"size:5;not null;uniqueIndex:idx_mentor_slot" json:"time"`  // 15:04
	Status BookingStatus `gorm:"size:24;not null;default:'confirmed'" json:"status"`
	Free   bool          `gorm:"not null;default:false" json:"free"`

	TotalAmountCents   int64 `gorm:"not null;default:0" json:"total_amount_cents"`
	PlatformFeeCents   int64 `gorm:"not null;default:0" json:"platform_fee_cents"`
	MentorEarningsCents int64 `gorm:"not null;default:0" json:"mentor_earnings_cents"`

	// EarningsProcessed is set in the same transaction that credits the wallet,
	// FundsReleased in the one that moves pending to available. Each flips
	// exactly once.
	EarningsProcessed bool       `gorm:"not null;default:false" json:"earnings_processed"`
	FundsReleased     bool       `gorm:"not null;default:false" json:"funds_released"`
	AvailableAt       *time.Time `json:"available_at"`

	StripePaymentIntentID *string `gorm:"size:255;uniqueIndex" json:"-"`
	StripeRefundID        *string `gorm:"size:255" json:"-"`
	CalendarEventID       *string `gorm:"size:255" json:"-"`
	MeetLink              *string `gorm:"size:255" json:"meet_link"`

	// Capability tokens. Only salted hashes are stored; the raw secrets travel
	// in mailed links.
	CancelTokenHash      *string    `gorm:"size:64" json:"-"`
	CancelTokenExpiresAt *time.Time `json:"-"`
	CancelTokenUsedAt    *time.Time `json:"-"`

	RescheduleTokenHash      *string    `gorm:"size:64" json:"-"`
	RescheduleTokenExpiresAt *time.Time `json:"-"`
	RescheduleTokenUsedAt    *time.Time `json:"-"`

	RefundTokenHash      *string    `gorm:"size:64" json:"-"`
	RefundTokenExpiresAt *time.Time `json:"-"`
	RefundTokenUsedAt    *time.Time `json:"-"`

	CancelledAt *time.Time `json:"cancelled_at"`

	Mentor  User  `gorm:"foreignkey:MentorID" json:"mentor,omitempty"`
	Student *User `gorm:"foreignkey:StudentID" json:"student,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// StartsAt parses the booking's date and time into a point in time (UTC).
func (b *Booking) StartsAt() (time.Time, error) {
	return time.Parse("2006-01-02 15:04", b.Date+" "+b.Time)
}
