package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PayoutStatus string

const (
	PayoutInitiated          PayoutStatus = "INITIATED"
	PayoutRequiresOnboarding PayoutStatus = "REQUIRES_ONBOARDING"
	PayoutProcessing         PayoutStatus = "PROCESSING"
	PayoutPaid               PayoutStatus = "PAID"
	PayoutFailed             PayoutStatus = "FAILED"
)

func (s PayoutStatus) Terminal() bool {
	return s == PayoutPaid || s == PayoutFailed
}

// MentorPayout tracks one withdrawal attempt through the external transfer
// lifecycle. The idempotency key is minted once per attempt and reused on
// every transfer call for it, so retries cannot double-move money.
type MentorPayout struct {
	ID          uuid.UUID    `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	MentorID    uuid.UUID    `gorm:"not null;index" json:"mentor_id"`
	AmountCents int64        `gorm:"not null" json:"amount_cents"`
	Status      PayoutStatus `gorm:"size:24;not null;default:'INITIATED'" json:"status"`

	IdempotencyKey   string  `gorm:"size:64;not null;uniqueIndex" json:"-"`
	StripeTransferID *string `gorm:"size:255;uniqueIndex" json:"-"`
	FailureReason    *string `gorm:"type:text" json:"failure_reason"`

	Mentor User `gorm:"foreignkey:MentorID" json:"mentor,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *MentorPayout) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
