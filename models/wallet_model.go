package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MentorWallet holds a mentor's earned funds. AvailableCents is withdrawable
// now, PendingCents is inside the hold period or reserved for a payout
// awaiting onboarding. Both are non-negative at all times and every change is
// paired with a MentorLedgerEntry in the same transaction.
type MentorWallet struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	MentorID       uuid.UUID `gorm:"not null;uniqueIndex" json:"mentor_id"`
	AvailableCents int64     `gorm:"not null;default:0" json:"available_cents"`
	PendingCents   int64     `gorm:"not null;default:0" json:"pending_cents"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (w *MentorWallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
