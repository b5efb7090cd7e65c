package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LedgerEntryType string

const (
	LedgerSessionEarned      LedgerEntryType = "SESSION_EARNED"
	LedgerPendingToAvailable LedgerEntryType = "PENDING_TO_AVAILABLE"
	LedgerWithdrawRequested  LedgerEntryType = "WITHDRAW_REQUESTED"
	LedgerTransferCreated    LedgerEntryType = "TRANSFER_CREATED"
	LedgerTransferFailed     LedgerEntryType = "TRANSFER_FAILED"
	LedgerAdjustment         LedgerEntryType = "ADJUSTMENT"
)

// NetEffect reports whether entries of this type change the wallet total
// (available + pending). PENDING_TO_AVAILABLE records an internal move and
// TRANSFER_CREATED records external-transfer metadata; neither changes the
// total.
func (t LedgerEntryType) NetEffect() bool {
	switch t {
	case LedgerPendingToAvailable, LedgerTransferCreated:
		return false
	}
	return true
}

// MentorLedgerEntry is an immutable record of one balance-affecting (or
// metadata) event. Entries are only ever appended, never updated or deleted.
type MentorLedgerEntry struct {
	ID       uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	MentorID uuid.UUID       `gorm:"not null;index" json:"mentor_id"`
	Type     LedgerEntryType `gorm:"size:24;not null" json:"type"`

	// Signed movement amount. The sign convention follows the movement as
	// displayed to mentors: earnings and restores are positive, withdrawals
	// and reversals of earnings are negative.
	AmountCents       int64  `gorm:"not null" json:"amount_cents"`
	BalanceAfterCents *int64 `json:"balance_after_cents"`

	RelatedBookingID *uuid.UUID `gorm:"index" json:"related_booking_id"`
	RelatedPayoutID  *uuid.UUID `gorm:"index" json:"related_payout_id"`

	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func (e *MentorLedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
