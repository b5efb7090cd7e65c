package services

import (
	"fmt"
	"log"
	"time"

	config "github.com/edmondmuhia/mentor_marketplace/configs"
	"github.com/edmondmuhia/mentor_marketplace/models"
	"github.com/edmondmuhia/mentor_marketplace/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WalletService owns every mutation of MentorWallet. Each mutation happens
// inside one transaction paired with exactly one MentorLedgerEntry write; no
// other code touches wallet columns.
type WalletService struct {
	db       *gorm.DB
	now      func() time.Time
	holdDays int
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{
		db:       db,
		now:      time.Now,
		holdDays: config.EarningsHoldDays(),
	}
}

// HoldDuration is the delay between crediting earnings and maturation.
func (s *WalletService) HoldDuration() time.Duration {
	return time.Duration(s.holdDays) * 24 * time.Hour
}

// Wallet releases any matured earnings and returns the mentor's wallet,
// creating it lazily. Maturation runs inline on every read; there is no
// background scheduler.
func (s *WalletService) Wallet(mentorID uuid.UUID) (*models.MentorWallet, error) {
	if _, err := s.ReleaseMatured(mentorID); err != nil {
		return nil, err
	}

	var wallet models.MentorWallet
	err := s.db.Transaction(func(tx *gorm.DB) error {
		w, err := s.getOrCreateTx(tx, mentorID)
		if err != nil {
			return err
		}
		wallet = *w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (s *WalletService) getOrCreateTx(tx *gorm.DB, mentorID uuid.UUID) (*models.MentorWallet, error) {
	var wallet models.MentorWallet
	err := tx.Where(models.MentorWallet{MentorID: mentorID}).FirstOrCreate(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// CreditPendingTx adds session earnings to the mentor's pending balance and
// writes the paired SESSION_EARNED entry. Callers guard at-most-once semantics
// by checking-and-setting the booking's earningsProcessed flag in the same
// transaction.
func (s *WalletService) CreditPendingTx(tx *gorm.DB, mentorID uuid.UUID, amountCents int64, description string, bookingID *uuid.UUID) error {
	if amountCents <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amountCents)
	}

	wallet, err := s.getOrCreateTx(tx, mentorID)
	if err != nil {
		return err
	}

	newPending := wallet.PendingCents + amountCents
	if err := tx.Model(&models.MentorWallet{}).Where("id = ?", wallet.ID).
		Update("pending_cents", gorm.Expr("pending_cents + ?", amountCents)).Error; err != nil {
		return err
	}

	return s.appendEntryTx(tx, &models.MentorLedgerEntry{
		MentorID:          mentorID,
		Type:              models.LedgerSessionEarned,
		AmountCents:       amountCents,
		BalanceAfterCents: &newPending,
		RelatedBookingID:  bookingID,
		Description:       description,
	})
}

// ReleaseMatured moves every matured, unreleased booking's earnings from
// pending to available. It writes one PENDING_TO_AVAILABLE entry per booking
// to preserve per-session traceability, and is idempotent: a booking claimed
// as released is never revisited.
func (s *WalletService) ReleaseMatured(mentorID uuid.UUID) (int64, error) {
	now := s.now()
	var released int64

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var matured []models.Booking
		if err := tx.Where(
			"mentor_id = ? AND earnings_processed = ? AND funds_released = ? AND available_at <= ? AND mentor_earnings_cents > 0",
			mentorID, true, false, now,
		).Find(&matured).Error; err != nil {
			return err
		}
		if len(matured) == 0 {
			return nil
		}

		wallet, err := s.getOrCreateTx(tx, mentorID)
		if err != nil {
			return err
		}

		var sum int64
		available := wallet.AvailableCents
		for _, b := range matured {
			res := tx.Model(&models.Booking{}).
				Where("id = ? AND funds_released = ?", b.ID, false).
				Update("funds_released", true)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// Lost the claim to a concurrent release.
				continue
			}

			sum += b.MentorEarningsCents
			available += b.MentorEarningsCents
			bookingID := b.ID
			if err := s.appendEntryTx(tx, &models.MentorLedgerEntry{
				MentorID:          mentorID,
				Type:              models.LedgerPendingToAvailable,
				AmountCents:       b.MentorEarningsCents,
				BalanceAfterCents: &available,
				RelatedBookingID:  &bookingID,
				Description:       fmt.Sprintf("Earnings released for session on %s %s", b.Date, b.Time),
			}); err != nil {
				return err
			}
		}
		if sum == 0 {
			return nil
		}

		newPending := wallet.PendingCents - sum
		if newPending < 0 {
			log.Printf("🔥 CRITICAL: wallet %s pending balance would go negative (%d) during release, clamping to 0", wallet.ID, newPending)
			newPending = 0
		}

		if err := tx.Model(&models.MentorWallet{}).Where("id = ?", wallet.ID).Updates(map[string]interface{}{
			"available_cents": gorm.Expr("available_cents + ?", sum),
			"pending_cents":   newPending,
		}).Error; err != nil {
			return err
		}

		released = sum
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

// ReverseEarningsTx removes a refunded booking's earnings from the wallet,
// from whichever bucket currently holds them, and writes the compensating
// negative ADJUSTMENT entry. Balances are clamped at zero; a clamp firing
// indicates a bug and is logged loudly.
func (s *WalletService) ReverseEarningsTx(tx *gorm.DB, mentorID uuid.UUID, amountCents int64, released bool, bookingID uuid.UUID) error {
	if amountCents <= 0 {
		return nil
	}

	wallet, err := s.getOrCreateTx(tx, mentorID)
	if err != nil {
		return err
	}

	column := "pending_cents"
	balance := wallet.PendingCents
	if released {
		column = "available_cents"
		balance = wallet.AvailableCents
	}

	newBalance := balance - amountCents
	if newBalance < 0 {
		log.Printf("🔥 CRITICAL: wallet %s %s would go negative (%d) reversing booking %s, clamping to 0", wallet.ID, column, newBalance, bookingID)
		newBalance = 0
	}

	if err := tx.Model(&models.MentorWallet{}).Where("id = ?", wallet.ID).
		Update(column, newBalance).Error; err != nil {
		return err
	}

	return s.appendEntryTx(tx, &models.MentorLedgerEntry{
		MentorID:          mentorID,
		Type:              models.LedgerAdjustment,
		AmountCents:       -amountCents,
		BalanceAfterCents: &newBalance,
		RelatedBookingID:  &bookingID,
		Description:       fmt.Sprintf("Earnings reversed after refund (%s)", utils.FormatCents(amountCents)),
	})
}

// ManualAdjust applies an admin-initiated signed adjustment to the available
// balance, clamped at zero, with its paired ADJUSTMENT entry.
func (s *WalletService) ManualAdjust(mentorID uuid.UUID, amountCents int64, description string) error {
	if amountCents == 0 {
		return fmt.Errorf("adjustment amount must be non-zero")
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		wallet, err := s.getOrCreateTx(tx, mentorID)
		if err != nil {
			return err
		}

		newAvailable := wallet.AvailableCents + amountCents
		if newAvailable < 0 {
			log.Printf("🔥 CRITICAL: adjustment of %d would take wallet %s negative, clamping to 0", amountCents, wallet.ID)
			newAvailable = 0
		}

		if err := tx.Model(&models.MentorWallet{}).Where("id = ?", wallet.ID).
			Update("available_cents", newAvailable).Error; err != nil {
			return err
		}

		return s.appendEntryTx(tx, &models.MentorLedgerEntry{
			MentorID:          mentorID,
			Type:              models.LedgerAdjustment,
			AmountCents:       amountCents,
			BalanceAfterCents: &newAvailable,
			Description:       description,
		})
	})
}

// Ledger returns the mentor's entries, newest first.
func (s *WalletService) Ledger(mentorID uuid.UUID) ([]models.MentorLedgerEntry, error) {
	var entries []models.MentorLedgerEntry
	err := s.db.Where("mentor_id = ?", mentorID).Order("created_at desc").Find(&entries).Error
	return entries, err
}

func (s *WalletService) appendEntryTx(tx *gorm.DB, entry *models.MentorLedgerEntry) error {
	return tx.Create(entry).Error
}
