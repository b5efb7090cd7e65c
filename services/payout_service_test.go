package services

import (
	"testing"
	"time"

	"github.com/edmondmuhia/mentor_marketplace/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithdrawalWithNoBalance(t *testing.T) {
	f := newFixture(t)
	mentor := f.newMentor(t)

	_, err := f.payouts.RequestWithdrawal(mentor.UserID, nil)
	assert.ErrorIs(t, err, ErrNoAvailableBalance)

	// Pending-only funds are not withdrawable either.
	f.paidBooking(t, mentor, "2025-06-10", "14:00")
	_, err = f.payouts.RequestWithdrawal(mentor.UserID, nil)
	assert.ErrorIs(t, err, ErrNoAvailableBalance)
}

// Full capable-path lifecycle: earn, mature, withdraw. The ledger ends with
// the four-entry sequence and the wallet at zero, and the net-effect sum
// matches the wallet total.
func TestWithdrawalCapablePath(t *testing.T) {
	f := newFixture(t)
	mentor := f.newMentor(t)
	f.paidBooking(t, mentor, "2025-06-10", "14:00")
	f.advance(f.wallets.HoldDuration() + time.Minute)

	result, err := f.payouts.RequestWithdrawal(mentor.UserID, nil)
	require.NoError(t, err)
	require.Equal(t, models.PayoutPaid, result.Payout.Status)
	assert.Equal(t, int64(9000), result.Payout.AmountCents)
	require.NotNil(t, result.Payout.StripeTransferID)
	assert.Empty(t, result.OnboardingURL)
	assert.False(t, result.NeedsVerification)

	wallet, err := f.wallets.Wallet(mentor.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.AvailableCents)
	assert.Equal(t, int64(0), wallet.PendingCents)

	types := f.entryTypes(t, mentor.UserID)
	assert.Equal(t, []models.LedgerEntryType{
		models.LedgerSessionEarned,
		models.LedgerPendingToAvailable,
		models.LedgerWithdrawRequested,
		models.LedgerTransferCreated,
	}, types)

	entries := f.ledger(t, mentor.UserID)
	assert.Equal(t, int64(-9000), entries[2].AmountCents)
	assert.Equal(t, int64(9000), entries[3].AmountCents)
	assert.Nil(t, entries[3].BalanceAfterCents)

	assert.Equal(t, int64(0), f.ledgerNetSum(t, mentor.UserID))

	// One transfer call, keyed by the payout's idempotency key.
	require.Len(t, f.processor.transferKeys, 1)
	assert.Equal(t, result.Payout.IdempotencyKey, f.processor.transferKeys[0])

	// Mentor got the paid notification.
	require.NotEmpty(t, f.mail.sent)
	assert.Contains(t, f.mail.sent[len(f.mail.sent)-1].Subject, "Payout")
}

func TestPartialWithdrawalClampsToRequested(t *testing.T) {
	f := newFixture(t)
	mentor := f.newMentor(t)
	f.paidBooking(t, mentor, "2025-06-10", "14:00")
	f.advance(f.wallets.HoldDuration() + time.Minute)

	amount := int64(4000)
	result, err := f.payouts.RequestWithdrawal(mentor.UserID, &amount)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), result.Payout.AmountCents)

	wallet, err := f.wallets.Wallet(mentor.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), wallet.AvailableCents)

	// Asking for more than is available clamps to the full balance.
	tooMuch := int64(99999)
	result, err = f.payouts.RequestWithdrawal(mentor.UserID, &tooMuch)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), result.Payout.AmountCents)
}

// A failed capable-path transfer leaves the balance untouched: the payout
// fails, a zero-amount TRANSFER_FAILED entry records it, and the mentor can
// immediately retry.
func TestWithdrawalTransferFailureKeepsBalance(t *testing.T) {
	f := newFixture(t)
	mentor := f.newMentor(t)
	f.paidBooking(t, mentor, "2025-06-10", "14:00")
	f.advance(f.wallets.HoldDuration() + time.Minute)

	f.processor.failTransfer = true
	result, err := f.payouts.RequestWithdrawal(mentor.UserID, nil)
	assert.ErrorIs(t, err, ErrTransferFailed)
	require.NotNil(t, result)
	assert.Equal(t, models.PayoutFailed, result.Payout.Status)
	require.NotNil(t, result.Payout.FailureReason)

	wallet, werr := f.wallets.Wallet(mentor.UserID)
	require.NoError(t, werr)
	assert.Equal(t, int64(9000), wallet.AvailableCents)

	entries := f.ledger(t, mentor.UserID)
	last := entries[len(entries)-1]
	assert.Equal(t, models.LedgerTransferFailed, last.Type)
	assert.Equal(t, int64(0), last.AmountCents)

	// Retry succeeds with a fresh payout and fresh idempotency key.
	f.processor.failTransfer = false
	retry, err := f.payouts.RequestWithdrawal(mentor.UserID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPaid, retry.Payout.Status)
	assert.NotEqual(t, result.Payout.IdempotencyKey, retry.Payout.IdempotencyKey)
}

// Withdrawal against an account that cannot receive transfers parks the
// payout: funds move available -> pending so they cannot be double-withdrawn,
// and the mentor gets an onboarding link.
func TestWithdrawalParksForOnboarding(t *testing.T) {
	f := newFixture(t)
	mentor := f.newMentor(t)
	f.paidBooking(t, mentor, "2025-06-10", "14:00")
	f.advance(f.wallets.HoldDuration() + time.Minute)

	f.processor.payoutsEnabled = false
	result, err := f.payouts.RequestWithdrawal(mentor.UserID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutRequiresOnboarding, result.Payout.Status)
	assert.True(t, result.NeedsVerification)
	assert.NotEmpty(t, result.OnboardingURL)
	assert.Empty(t, f.processor.transferKeys)

	wallet, err := f.wallets.Wallet(mentor.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.AvailableCents)
	assert.Equal(t, int64(9000), wallet.PendingCents)

	// Reserved funds cannot be withdrawn again.
	_, err = f.payouts.RequestWithdrawal(mentor.UserID, nil)
	assert.ErrorIs(t, err, ErrNoAvailableBalance)

	// Resuming while still incapable returns a fresh link, no state change.
	resume, err := f.payouts.ProcessPendingPayout(result.Payout.ID, mentor.UserID)
	require.NoError(t, err)
	assert.True(t, resume.NeedsVerification)
	assert.Equal(t, models.PayoutRequiresOnboarding, resume.Payout.Status)

	// Once capable, the resume transfers with the original idempotency key.
	f.processor.payoutsEnabled = true
	resume, err = f.payouts.ProcessPendingPayout(result.Payout.ID, mentor.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPaid, resume.Payout.Status)
	require.Len(t, f.processor.transferKeys, 1)
	assert.Equal(t, result.Payout.IdempotencyKey, f.processor.transferKeys[0])

	wallet, err = f.wallets.Wallet(mentor.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.AvailableCents)
	assert.Equal(t, int64(0), wallet.PendingCents)
	assert.Equal(t, int64(0), f.ledgerNetSum(t, mentor.UserID))

	// A second resume of the now-paid payout is a no-op.
	again, err := f.payouts.ProcessPendingPayout(result.Payout.ID, mentor.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPaid, again.Payout.Status)
	assert.Len(t, f.processor.transferKeys, 1)
}

// An onboarding-path transfer failure restores the reserved amount to
// available with a compensating entry.
func TestResumeTransferFailureRestoresReserved(t *testing.T) {
	f := newFixture(t)
	mentor := f.newMentor(t)
	f.paidBooking(t, mentor, "2025-06-10", "14:00")
	f.advance(f.wallets.HoldDuration() + time.Minute)

	f.processor.payoutsEnabled = false
	parked, err := f.payouts.RequestWithdrawal(mentor.UserID, nil)
	require.NoError(t, err)

	f.processor.payoutsEnabled = true
	f.processor.failTransfer = true
	result, err := f.payouts.ProcessPendingPayout(parked.Payout.ID, mentor.UserID)
	assert.ErrorIs(t, err, ErrTransferFailed)
	require.NotNil(t, result)
	assert.Equal(t, models.PayoutFailed, result.Payout.Status)

	wallet, werr := f.wallets.Wallet(mentor.UserID)
	require.NoError(t, werr)
	assert.Equal(t, int64(9000), wallet.AvailableCents)
	assert.Equal(t, int64(0), wallet.PendingCents)

	entries := f.ledger(t, mentor.UserID)
	last := entries[len(entries)-1]
	assert.Equal(t, models.LedgerTransferFailed, last.Type)
	assert.Equal(t, int64(9000), last.AmountCents)
	assert.Equal(t, int64(9000), f.ledgerNetSum(t, mentor.UserID))
}

func TestProcessPendingPayoutValidation(t *testing.T) {
	f := newFixture(t)
	mentor := f.newMentor(t)
	f.paidBooking(t, mentor, "2025-06-10", "14:00")
	f.advance(f.wallets.HoldDuration() + time.Minute)

	paid, err := f.payouts.RequestWithdrawal(mentor.UserID, nil)
	require.NoError(t, err)

	other := f.newMentor(t)
	_, err = f.payouts.ProcessPendingPayout(paid.Payout.ID, other.UserID)
	assert.ErrorIs(t, err, ErrPayoutNotFound)
}

// A reversed transfer fails the payout and restores the amount; duplicate
// reversal notifications change nothing.
func TestHandleTransferReversed(t *testing.T) {
	f := newFixture(t)
	mentor := f.newMentor(t)
	f.paidBooking(t, mentor, "2025-06-10", "14:00")
	f.advance(f.wallets.HoldDuration() + time.Minute)

	result, err := f.payouts.RequestWithdrawal(mentor.UserID, nil)
	require.NoError(t, err)
	transferID := *result.Payout.StripeTransferID

	require.NoError(t, f.payouts.HandleTransferReversed(transferID))

	var payout models.MentorPayout
	require.NoError(t, f.db.First(&payout, "id = ?", result.Payout.ID).Error)
	assert.Equal(t, models.PayoutFailed, payout.Status)
	require.NotNil(t, payout.FailureReason)
	assert.Equal(t, "reversed", *payout.FailureReason)

	wallet, err := f.wallets.Wallet(mentor.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), wallet.AvailableCents)

	// Duplicate notification is a no-op.
	require.NoError(t, f.payouts.HandleTransferReversed(transferID))
	wallet, err = f.wallets.Wallet(mentor.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), wallet.AvailableCents)

	// Unknown transfers are ignored.
	require.NoError(t, f.payouts.HandleTransferReversed("tr_unknown"))

	assert.Equal(t, int64(9000), f.ledgerNetSum(t, mentor.UserID))
}

// account.updated resumes every parked payout for the mentor, oldest first.
func TestHandleAccountUpdatedResumesParked(t *testing.T) {
	f := newFixture(t)
	mentor := f.newMentor(t)
	f.paidBooking(t, mentor, "2025-06-10", "14:00")
	f.advance(f.wallets.HoldDuration() + time.Minute)

	f.processor.payoutsEnabled = false
	parked, err := f.payouts.RequestWithdrawal(mentor.UserID, nil)
	require.NoError(t, err)

	var stored models.Mentor
	require.NoError(t, f.db.First(&stored, "user_id = ?", mentor.UserID).Error)
	require.NotNil(t, stored.StripeAccountID)

	f.processor.payoutsEnabled = true
	require.NoError(t, f.payouts.HandleAccountUpdated(*stored.StripeAccountID, true))

	var payout models.MentorPayout
	require.NoError(t, f.db.First(&payout, "id = ?", parked.Payout.ID).Error)
	assert.Equal(t, models.PayoutPaid, payout.Status)

	// Events for accounts that still cannot pay out do nothing.
	require.NoError(t, f.payouts.HandleAccountUpdated(*stored.StripeAccountID, false))
	// Unknown accounts are ignored.
	require.NoError(t, f.payouts.HandleAccountUpdated("acct_unknown", true))
}
