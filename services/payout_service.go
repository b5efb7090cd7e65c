package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	config "github.com/edmondmuhia/mentor_marketplace/configs"
	"github.com/edmondmuhia/mentor_marketplace/models"
	"github.com/edmondmuhia/mentor_marketplace/payments"
	"github.com/edmondmuhia/mentor_marketplace/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PayoutService drives a withdrawal from initiation through the external
// transfer, including the onboarding detour when the mentor's Connect account
// cannot receive transfers yet. Money is always exactly where the payout's
// status says it is: available, reserved in pending, or externally in flight.
type PayoutService struct {
	db        *gorm.DB
	wallets   *WalletService
	processor payments.Processor
	effects   *Dispatcher
	now       func() time.Time
}

func NewPayoutService(db *gorm.DB, wallets *WalletService, processor payments.Processor, effects *Dispatcher) *PayoutService {
	return &PayoutService{
		db:        db,
		wallets:   wallets,
		processor: processor,
		effects:   effects,
		now:       time.Now,
	}
}

// WithdrawalResult reports the outcome of a withdrawal request or resume.
type WithdrawalResult struct {
	Payout            *models.MentorPayout
	OnboardingURL     string
	NeedsVerification bool
}

// RequestWithdrawal releases matured earnings, clamps the requested amount to
// the available balance (full balance when nil), and either transfers
// immediately or parks the amount in REQUIRES_ONBOARDING with the funds
// reserved so they cannot be withdrawn twice.
func (s *PayoutService) RequestWithdrawal(mentorID uuid.UUID, requestedCents *int64) (*WithdrawalResult, error) {
	if _, err := s.wallets.ReleaseMatured(mentorID); err != nil {
		return nil, err
	}

	var mentor models.Mentor
	if err := s.db.Preload("User").First(&mentor, "user_id = ?", mentorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ServiceError{Code: "INVALID_STATE", Message: "Mentor profile not found."}
		}
		return nil, err
	}

	wallet, err := s.wallets.Wallet(mentorID)
	if err != nil {
		return nil, err
	}

	amount := wallet.AvailableCents
	if requestedCents != nil && *requestedCents < amount {
		amount = *requestedCents
	}
	if amount <= 0 {
		return nil, ErrNoAvailableBalance
	}

	accountID, err := s.ensureAccount(&mentor)
	if err != nil {
		return s.failBeforeTransfer(mentorID, amount, fmt.Sprintf("account setup failed: %v", err))
	}

	acct, err := s.processor.RetrieveAccount(accountID)
	if err != nil {
		return s.failBeforeTransfer(mentorID, amount, fmt.Sprintf("account lookup failed: %v", err))
	}

	idempotencyKey := uuid.NewString()

	if !acct.PayoutsEnabled {
		return s.parkForOnboarding(mentorID, accountID, amount, idempotencyKey)
	}

	payout := &models.MentorPayout{
		MentorID:       mentorID,
		AmountCents:    amount,
		Status:         models.PayoutProcessing,
		IdempotencyKey: idempotencyKey,
	}
	if err := s.db.Create(payout).Error; err != nil {
		return nil, err
	}

	transferID, err := s.processor.CreateTransfer(amount, accountID, map[string]string{
		"payout_id": payout.ID.String(),
		"mentor_id": mentorID.String(),
	}, idempotencyKey)
	if err != nil {
		if ferr := s.markTransferFailed(payout, err.Error()); ferr != nil {
			return nil, ferr
		}
		s.notifyPayoutFailed(&mentor, payout, err.Error())
		return &WithdrawalResult{Payout: payout}, ErrTransferFailed
	}

	if err := s.settleImmediateTransfer(payout, transferID); err != nil {
		return nil, err
	}
	s.notifyPayoutPaid(&mentor, payout)
	return &WithdrawalResult{Payout: payout}, nil
}

// ProcessPendingPayout resumes a payout parked in REQUIRES_ONBOARDING once the
// mentor has completed verification. Still-incapable accounts get a fresh
// onboarding link and no state change.
func (s *PayoutService) ProcessPendingPayout(payoutID, mentorID uuid.UUID) (*WithdrawalResult, error) {
	var payout models.MentorPayout
	if err := s.db.First(&payout, "id = ? AND mentor_id = ?", payoutID, mentorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}

	if payout.Status == models.PayoutPaid {
		return &WithdrawalResult{Payout: &payout}, nil
	}
	if payout.Status != models.PayoutRequiresOnboarding {
		return nil, ErrInvalidState
	}

	var mentor models.Mentor
	if err := s.db.Preload("User").First(&mentor, "user_id = ?", mentorID).Error; err != nil {
		return nil, err
	}
	if mentor.StripeAccountID == nil {
		return nil, &ServiceError{Code: "INVALID_STATE", Message: "Mentor has no payout account."}
	}

	acct, err := s.processor.RetrieveAccount(*mentor.StripeAccountID)
	if err != nil {
		return nil, fmt.Errorf("account lookup failed: %w", err)
	}
	if !acct.PayoutsEnabled {
		url, linkErr := s.processor.CreateOnboardingLink(*mentor.StripeAccountID, s.returnURL(payout.ID), s.refreshURL())
		if linkErr != nil {
			log.Printf("🔥 Failed to create onboarding link for payout %s: %v", payout.ID, linkErr)
		}
		return &WithdrawalResult{Payout: &payout, OnboardingURL: url, NeedsVerification: true}, nil
	}

	if err := s.db.Model(&payout).Update("status", models.PayoutProcessing).Error; err != nil {
		return nil, err
	}
	payout.Status = models.PayoutProcessing

	transferID, err := s.processor.CreateTransfer(payout.AmountCents, *mentor.StripeAccountID, map[string]string{
		"payout_id": payout.ID.String(),
		"mentor_id": mentorID.String(),
	}, payout.IdempotencyKey)
	if err != nil {
		if ferr := s.restoreReservedAndFail(&payout, err.Error()); ferr != nil {
			return nil, ferr
		}
		s.notifyPayoutFailed(&mentor, &payout, err.Error())
		return &WithdrawalResult{Payout: &payout}, ErrTransferFailed
	}

	if err := s.settleReservedTransfer(&payout, transferID); err != nil {
		return nil, err
	}
	s.notifyPayoutPaid(&mentor, &payout)
	return &WithdrawalResult{Payout: &payout}, nil
}

// HandleTransferReversed processes the processor's asynchronous reversal
// notification: the payout fails with reason "reversed" and the amount is
// credited back to the available balance with a compensating entry. Duplicate
// notifications are no-ops.
func (s *PayoutService) HandleTransferReversed(transferID string) error {
	var payout models.MentorPayout
	if err := s.db.First(&payout, "stripe_transfer_id = ?", transferID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("Transfer reversal for unknown transfer %s, ignoring", transferID)
			return nil
		}
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		reason := "reversed"
		res := tx.Model(&models.MentorPayout{}).
			Where("id = ? AND status = ?", payout.ID, models.PayoutPaid).
			Updates(map[string]interface{}{"status": models.PayoutFailed, "failure_reason": reason})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		wallet, err := s.wallets.getOrCreateTx(tx, payout.MentorID)
		if err != nil {
			return err
		}
		newAvailable := wallet.AvailableCents + payout.AmountCents
		if err := tx.Model(&models.MentorWallet{}).Where("id = ?", wallet.ID).
			Update("available_cents", gorm.Expr("available_cents + ?", payout.AmountCents)).Error; err != nil {
			return err
		}

		payoutID := payout.ID
		return s.wallets.appendEntryTx(tx, &models.MentorLedgerEntry{
			MentorID:          payout.MentorID,
			Type:              models.LedgerTransferFailed,
			AmountCents:       payout.AmountCents,
			BalanceAfterCents: &newAvailable,
			RelatedPayoutID:   &payoutID,
			Description:       fmt.Sprintf("Transfer %s reversed, funds restored", transferID),
		})
	})
}

// HandleAccountUpdated resumes any parked payouts for a mentor whose Connect
// account just became capable of receiving transfers.
func (s *PayoutService) HandleAccountUpdated(accountID string, payoutsEnabled bool) error {
	if !payoutsEnabled {
		return nil
	}

	var mentor models.Mentor
	if err := s.db.First(&mentor, "stripe_account_id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	var parked []models.MentorPayout
	if err := s.db.Where("mentor_id = ? AND status = ?", mentor.UserID, models.PayoutRequiresOnboarding).
		Order("created_at asc").Find(&parked).Error; err != nil {
		return err
	}

	for _, p := range parked {
		if _, err := s.ProcessPendingPayout(p.ID, mentor.UserID); err != nil {
			log.Printf("🔥 Failed to resume payout %s after account update: %v", p.ID, err)
		}
	}
	return nil
}

// Payouts returns the mentor's withdrawal attempts, newest first.
func (s *PayoutService) Payouts(mentorID uuid.UUID) ([]models.MentorPayout, error) {
	var payouts []models.MentorPayout
	err := s.db.Where("mentor_id = ?", mentorID).Order("created_at desc").Find(&payouts).Error
	return payouts, err
}

func (s *PayoutService) ensureAccount(mentor *models.Mentor) (string, error) {
	if mentor.StripeAccountID != nil {
		return *mentor.StripeAccountID, nil
	}

	accountID, err := s.processor.CreateAccount(mentor.User.Email)
	if err != nil {
		return "", err
	}
	if err := s.db.Model(&models.Mentor{}).Where("user_id = ?", mentor.UserID).
		Update("stripe_account_id", accountID).Error; err != nil {
		return "", err
	}
	mentor.StripeAccountID = &accountID
	return accountID, nil
}

// parkForOnboarding reserves the amount (available -> pending) so it cannot be
// double-withdrawn, creates the payout in REQUIRES_ONBOARDING and hands back
// an onboarding URL. No transfer is attempted yet.
func (s *PayoutService) parkForOnboarding(mentorID uuid.UUID, accountID string, amount int64, idempotencyKey string) (*WithdrawalResult, error) {
	payout := &models.MentorPayout{
		MentorID:       mentorID,
		AmountCents:    amount,
		Status:         models.PayoutRequiresOnboarding,
		IdempotencyKey: idempotencyKey,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.MentorWallet{}).
			Where("mentor_id = ? AND available_cents >= ?", mentorID, amount).
			Updates(map[string]interface{}{
				"available_cents": gorm.Expr("available_cents - ?", amount),
				"pending_cents":   gorm.Expr("pending_cents + ?", amount),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNoAvailableBalance
		}

		if err := tx.Create(payout).Error; err != nil {
			return err
		}

		wallet, err := s.wallets.getOrCreateTx(tx, mentorID)
		if err != nil {
			return err
		}
		payoutID := payout.ID
		return s.wallets.appendEntryTx(tx, &models.MentorLedgerEntry{
			MentorID:          mentorID,
			Type:              models.LedgerWithdrawRequested,
			AmountCents:       -amount,
			BalanceAfterCents: &wallet.AvailableCents,
			RelatedPayoutID:   &payoutID,
			Description:       fmt.Sprintf("Withdrawal of %s reserved pending account verification", utils.FormatCents(amount)),
		})
	})
	if err != nil {
		return nil, err
	}

	url, err := s.processor.CreateOnboardingLink(accountID, s.returnURL(payout.ID), s.refreshURL())
	if err != nil {
		log.Printf("🔥 Failed to create onboarding link for payout %s: %v", payout.ID, err)
		return &WithdrawalResult{Payout: payout, NeedsVerification: true}, err
	}
	return &WithdrawalResult{Payout: payout, OnboardingURL: url, NeedsVerification: true}, nil
}

// settleImmediateTransfer records a successful capable-path transfer: the
// amount leaves available (it never passed through pending on this path).
func (s *PayoutService) settleImmediateTransfer(payout *models.MentorPayout, transferID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(payout).Updates(map[string]interface{}{
			"status":             models.PayoutPaid,
			"stripe_transfer_id": transferID,
		}).Error; err != nil {
			return err
		}
		payout.Status = models.PayoutPaid
		payout.StripeTransferID = &transferID

		wallet, err := s.wallets.getOrCreateTx(tx, payout.MentorID)
		if err != nil {
			return err
		}
		newAvailable := wallet.AvailableCents - payout.AmountCents
		if newAvailable < 0 {
			log.Printf("🔥 CRITICAL: wallet %s available would go negative (%d) settling payout %s, clamping to 0", wallet.ID, newAvailable, payout.ID)
			newAvailable = 0
		}
		if err := tx.Model(&models.MentorWallet{}).Where("id = ?", wallet.ID).
			Update("available_cents", newAvailable).Error; err != nil {
			return err
		}

		payoutID := payout.ID
		if err := s.wallets.appendEntryTx(tx, &models.MentorLedgerEntry{
			MentorID:          payout.MentorID,
			Type:              models.LedgerWithdrawRequested,
			AmountCents:       -payout.AmountCents,
			BalanceAfterCents: &newAvailable,
			RelatedPayoutID:   &payoutID,
			Description:       fmt.Sprintf("Withdrawal of %s", utils.FormatCents(payout.AmountCents)),
		}); err != nil {
			return err
		}
		return s.wallets.appendEntryTx(tx, &models.MentorLedgerEntry{
			MentorID:        payout.MentorID,
			Type:            models.LedgerTransferCreated,
			AmountCents:     payout.AmountCents,
			RelatedPayoutID: &payoutID,
			Description:     fmt.Sprintf("Transfer %s created", transferID),
		})
	})
}

// settleReservedTransfer completes an onboarding-path payout: the reserved
// amount simply leaves pending, having left available at request time.
func (s *PayoutService) settleReservedTransfer(payout *models.MentorPayout, transferID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(payout).Updates(map[string]interface{}{
			"status":             models.PayoutPaid,
			"stripe_transfer_id": transferID,
		}).Error; err != nil {
			return err
		}
		payout.Status = models.PayoutPaid
		payout.StripeTransferID = &transferID

		wallet, err := s.wallets.getOrCreateTx(tx, payout.MentorID)
		if err != nil {
			return err
		}
		newPending := wallet.PendingCents - payout.AmountCents
		if newPending < 0 {
			log.Printf("🔥 CRITICAL: wallet %s pending would go negative (%d) settling payout %s, clamping to 0", wallet.ID, newPending, payout.ID)
			newPending = 0
		}
		if err := tx.Model(&models.MentorWallet{}).Where("id = ?", wallet.ID).
			Update("pending_cents", newPending).Error; err != nil {
			return err
		}

		payoutID := payout.ID
		return s.wallets.appendEntryTx(tx, &models.MentorLedgerEntry{
			MentorID:        payout.MentorID,
			Type:            models.LedgerTransferCreated,
			AmountCents:     payout.AmountCents,
			RelatedPayoutID: &payoutID,
			Description:     fmt.Sprintf("Transfer %s created", transferID),
		})
	})
}

// markTransferFailed records a capable-path transfer failure. The wallet is
// untouched: funds never left available on this path.
func (s *PayoutService) markTransferFailed(payout *models.MentorPayout, reason string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(payout).Updates(map[string]interface{}{
			"status":         models.PayoutFailed,
			"failure_reason": reason,
		}).Error; err != nil {
			return err
		}
		payout.Status = models.PayoutFailed
		payout.FailureReason = &reason

		payoutID := payout.ID
		return s.wallets.appendEntryTx(tx, &models.MentorLedgerEntry{
			MentorID:        payout.MentorID,
			Type:            models.LedgerTransferFailed,
			AmountCents:     0,
			RelatedPayoutID: &payoutID,
			Description:     fmt.Sprintf("Transfer of %s failed: %s (balance unchanged)", utils.FormatCents(payout.AmountCents), reason),
		})
	})
}

// restoreReservedAndFail moves a reserved amount back from pending to
// available after an onboarding-path transfer failure.
func (s *PayoutService) restoreReservedAndFail(payout *models.MentorPayout, reason string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(payout).Updates(map[string]interface{}{
			"status":         models.PayoutFailed,
			"failure_reason": reason,
		}).Error; err != nil {
			return err
		}
		payout.Status = models.PayoutFailed
		payout.FailureReason = &reason

		wallet, err := s.wallets.getOrCreateTx(tx, payout.MentorID)
		if err != nil {
			return err
		}
		newPending := wallet.PendingCents - payout.AmountCents
		if newPending < 0 {
			log.Printf("🔥 CRITICAL: wallet %s pending would go negative (%d) restoring payout %s, clamping to 0", wallet.ID, newPending, payout.ID)
			newPending = 0
		}
		newAvailable := wallet.AvailableCents + payout.AmountCents

		if err := tx.Model(&models.MentorWallet{}).Where("id = ?", wallet.ID).Updates(map[string]interface{}{
			"pending_cents":   newPending,
			"available_cents": gorm.Expr("available_cents + ?", payout.AmountCents),
		}).Error; err != nil {
			return err
		}

		payoutID := payout.ID
		return s.wallets.appendEntryTx(tx, &models.MentorLedgerEntry{
			MentorID:          payout.MentorID,
			Type:              models.LedgerTransferFailed,
			AmountCents:       payout.AmountCents,
			BalanceAfterCents: &newAvailable,
			RelatedPayoutID:   &payoutID,
			Description:       fmt.Sprintf("Transfer failed: %s. Funds restored to available balance", reason),
		})
	})
}

// failBeforeTransfer records an external failure that happened before any
// money moved (account creation or lookup). The wallet is untouched.
func (s *PayoutService) failBeforeTransfer(mentorID uuid.UUID, amount int64, reason string) (*WithdrawalResult, error) {
	payout := &models.MentorPayout{
		MentorID:       mentorID,
		AmountCents:    amount,
		Status:         models.PayoutFailed,
		IdempotencyKey: uuid.NewString(),
		FailureReason:  &reason,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(payout).Error; err != nil {
			return err
		}
		payoutID := payout.ID
		return s.wallets.appendEntryTx(tx, &models.MentorLedgerEntry{
			MentorID:        mentorID,
			Type:            models.LedgerTransferFailed,
			AmountCents:     0,
			RelatedPayoutID: &payoutID,
			Description:     fmt.Sprintf("Withdrawal failed before transfer: %s (balance unchanged)", reason),
		})
	})
	if err != nil {
		return nil, err
	}
	return &WithdrawalResult{Payout: payout}, ErrTransferFailed
}

func (s *PayoutService) returnURL(payoutID uuid.UUID) string {
	return fmt.Sprintf("%s/payouts/%s/complete", config.AppBaseURL(), payoutID)
}

func (s *PayoutService) refreshURL() string {
	return config.AppBaseURL() + "/payouts/onboarding/refresh"
}

func (s *PayoutService) notifyPayoutPaid(mentor *models.Mentor, payout *models.MentorPayout) {
	s.effects.Dispatch([]SideEffect{emailEffect{
		ToName:  mentor.User.FullName,
		ToEmail: mentor.User.Email,
		Subject: "Your Payout Has Been Processed",
		HTML: fmt.Sprintf("<h1>Payout Processed</h1><p>Hello %s,</p><p>Your payout of $%s has been sent to your bank account.</p>",
			mentor.User.FullName, utils.FormatCents(payout.AmountCents)),
	}})
}

func (s *PayoutService) notifyPayoutFailed(mentor *models.Mentor, payout *models.MentorPayout, reason string) {
	s.effects.Dispatch([]SideEffect{emailEffect{
		ToName:  mentor.User.FullName,
		ToEmail: mentor.User.Email,
		Subject: "Action Required: Your Payout Failed",
		HTML: fmt.Sprintf("<h1>Payout Failed</h1><p>Hello %s,</p><p>We could not process your payout of $%s.</p><p><b>Reason:</b> %s</p><p>Your balance was not affected; you can retry the withdrawal at any time.</p>",
			mentor.User.FullName, utils.FormatCents(payout.AmountCents), reason),
	}})
}
