package services

import (
	"regexp"
	"testing"
	"time"

	"github.com/edmondmuhia/mentor_marketplace/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var actionLinkRe = regexp.MustCompile(`/actions/(cancel|reschedule|refund)/([A-Za-z0-9_-]+)`)

// tokenFromMail pulls the raw action token of the given kind out of the most
// recent email that carries one, the same way a recipient would.
func tokenFromMail(t *testing.T, f *fixture, action string) string {
	t.Helper()
	for i := len(f.mail.sent) - 1; i >= 0; i-- {
		for _, m := range actionLinkRe.FindAllStringSubmatch(f.mail.sent[i].HTML, -1) {
			if m[1] == action {
				return m[2]
			}
		}
	}
	t.Fatalf("no %s link found in any sent email", action)
	return ""
}

func (f *fixture) addAvailability(t *testing.T, mentor *models.Mentor, weekday, startMinute, endMinute int) {
	t.Helper()
	window := models.AvailabilityWindow{
		MentorID:    mentor.UserID,
		Weekday:     weekday,
		StartMinute: startMinute,
		EndMinute:   endMinute,
	}
	require.NoError(t, f.db.Create(&window).Error)
}

func TestCancelByTutorToken(t *testing.T) {
	f := newFixture(t)
	mentor := f.newMentor(t)
	booking := f.paidBooking(t, mentor, "2025-06-10", "14:00")
	cancelToken := tokenFromMail(t, f, "cancel")

	ctx, err := f.cancellations.CancelContext(cancelToken)
	require.NoError(t, err)
	assert.Equal(t, booking.ID, ctx.BookingID)
	assert.Equal(t, "2025-06-10", ctx.Date)

	cancelled, err := f.cancellations.CancelByMentorToken(cancelToken)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelledByMentor, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	require.NotNil(t, cancelled.CancelTokenUsedAt)
	require.NotNil(t, cancelled.RescheduleTokenHash)
	require.NotNil(t, cancelled.RefundTokenHash)

	// Calendar event removed, student notified with both action links.
	assert.Contains(t, f.cal.deleted, *booking.CalendarEventID)
	last := f.mail.sent[len(f.mail.sent)-1]
	assert.Equal(t, "student@example.com", last.To)
	assert.Contains(t, last.HTML, "/actions/reschedule/")
	assert.Contains(t, last.HTML, "/actions/refund/")

	// The consumed token cannot cancel again.
	_, err = f.cancellations.CancelByMentorToken(cancelToken)
	assert.ErrorIs(t, err, ErrTokenAlreadyUsed)
}

func TestTokenLookupFailures(t *testing.T) {
	f := newFixture(t)
	mentor := f.newMentor(t)
	f.paidBooking(t, mentor, "2025-06-10", "14:00")
	cancelToken := tokenFromMail(t, f, "cancel")

	_, err := f.cancellations.CancelByMentorToken("not-a-real-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.cancellations.CancelByMentorToken("")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Past the 90-day TTL the link is dead.
	f.advance(91 * 24 * time.Hour)
	_, err = f.cancellations.CancelByMentorToken(cancelToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestCancelRequiresStudentEmail(t *testing.T) {
	f := newFixture(t)
	mentor := f.newMentor(t)

	booking, err := f.bookings.CreateFreeBooking(mentor.UserID, "2025-06-10", "14:00", "", "Walk-in", nil)
	require.NoError(t, err)
	_ = booking
	cancelToken := tokenFromMail(t, f, "cancel")

	_, err = f.cancellations.CancelByMentorToken(cancelToken)
	assert.ErrorIs(t, err, ErrMissingStudentEmail)
}

func TestRescheduleByToken(t *testing.T) {
	f := newFixture(t)
	mentor := f.newMentor(t)
	// Tuesdays 14:00-17:00.
	f.addAvailability(t, mentor, 2, 840, 1020)

	booking := f.paidBooking(t, mentor, "2025-06-10", "14:00")
	_, err := f.cancellations.CancelByMentorToken(tokenFromMail(t, f, "cancel"))
	require.NoError(t, err)

	rescheduleToken := tokenFromMail(t, f, "reschedule")
	refundToken := tokenFromMail(t, f, "refund")

	moved, err := f.cancellations.RescheduleByToken(rescheduleToken, "2025-06-17", "15:00")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-17", moved.Date)
	assert.Equal(t, "15:00", moved.Time)
	// Paid sessions come back as completed, free ones as confirmed.
	assert.Equal(t, models.BookingCompleted, moved.Status)
	assert.Nil(t, moved.CancelledAt)

	// Fresh tutor-cancel token, student tokens gone.
	require.NotNil(t, moved.CancelTokenHash)
	assert.Nil(t, moved.CancelTokenUsedAt)
	assert.Nil(t, moved.RescheduleTokenHash)
	assert.Nil(t, moved.RefundTokenHash)

	// Old event deleted, a new one created for the new slot.
	assert.Contains(t, f.cal.deleted, "evt_1")
	require.NotNil(t, moved.CalendarEventID)
	assert.NotEqual(t, "evt_1", *moved.CalendarEventID)

	// Both invalidated tokens are now dead links.
	_, err = f.cancellations.RescheduleByToken(rescheduleToken, "2025-06-24", "15:00")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = f.cancellations.RefundByToken(refundToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// No money moved: the original credit is all there is.
	wallet, err := f.wallets.Wallet(mentor.UserID)
	require.NoError(t, err)
	assert.Equal(t, booking.MentorEarningsCents, wallet.PendingCents+wallet.AvailableCents)
}

func TestRescheduleValidation(t *testing.T) {
	f := newFixture(t)
	mentor := f.newMentor(t)
	f.addAvailability(t, mentor, 2, 840, 1020)

	f.paidBooking(t, mentor, "2025-06-10", "14:00")
	_, err := f.cancellations.CancelByMentorToken(tokenFromMail(t, f, "cancel"))
	require.NoError(t, err)
	rescheduleToken := tokenFromMail(t, f, "reschedule")

	// Outside the Tuesday window.
	_, err = f.cancellations.RescheduleByToken(rescheduleToken, "2025-06-18", "15:00")
	assert.ErrorIs(t, err, ErrOutsideAvailability)
	_, err = f.cancellations.RescheduleByToken(rescheduleToken, "2025-06-17", "10:00")
	assert.ErrorIs(t, err, ErrOutsideAvailability)

	// In the past.
	_, err = f.cancellations.RescheduleByToken(rescheduleToken, "2025-05-27", "15:00")
	require.Error(t, err)

	// Another booking already holds the requested slot.
	f.paidBooking(t, mentor, "2025-06-17", "15:00")
	_, err = f.cancellations.RescheduleByToken(rescheduleToken, "2025-06-17", "15:00")
	assert.ErrorIs(t, err, ErrSlotConflict)

	// A failed attempt does not consume the token.
	_, err = f.cancellations.RescheduleByToken(rescheduleToken, "2025-06-17", "16:00")
	require.NoError(t, err)
}

func TestRescheduleReusesPersistentMeetingLink(t *testing.T) {
	f := newFixture(t)
	mentor := f.newMentor(t)
	f.addAvailability(t, mentor, 2, 840, 1020)
	link := "https://meet.example.com/room-grace"
	require.NoError(t, f.db.Model(&models.Mentor{}).Where("user_id = ?", mentor.UserID).
		Update("meeting_link", link).Error)

	f.paidBooking(t, mentor, "2025-06-10", "14:00")
	_, err := f.cancellations.CancelByMentorToken(tokenFromMail(t, f, "cancel"))
	require.NoError(t, err)

	created := f.cal.created
	moved, err := f.cancellations.RescheduleByToken(tokenFromMail(t, f, "reschedule"), "2025-06-17", "15:00")
	require.NoError(t, err)
	require.NotNil(t, moved.MeetLink)
	assert.Equal(t, link, *moved.MeetLink)
	assert.Equal(t, created, f.cal.created)
}

// Scenario: tutor cancels a paid session and the student takes the refund.
// The external refund is issued, earnings are reversed out of pending, and
// both student tokens are dead afterwards.
func TestRefundReversesPendingEarnings(t *testing.T) {
	f := newFixture(t)
	mentor := f.newMentor(t)
	booking := f.paidBooking(t, mentor, "2025-06-10", "14:00")
	_, err := f.cancellations.CancelByMentorToken(tokenFromMail(t, f, "cancel"))
	require.NoError(t, err)

	rescheduleToken := tokenFromMail(t, f, "reschedule")
	refundToken := tokenFromMail(t, f, "refund")

	refunded, err := f.cancellations.RefundByToken(refundToken)
	require.NoError(t, err)
	assert.Equal(t, models.BookingRefunded, refunded.Status)
	require.NotNil(t, refunded.StripeRefundID)
	assert.False(t, refunded.EarningsProcessed)
	assert.Equal(t, int64(0), refunded.MentorEarningsCents)
	require.Len(t, f.processor.refundedPIs, 1)
	assert.Equal(t, *booking.StripePaymentIntentID, f.processor.refundedPIs[0])

	wallet, err := f.wallets.Wallet(mentor.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.PendingCents)
	assert.Equal(t, int64(0), wallet.AvailableCents)
	assert.Equal(t, int64(0), f.ledgerNetSum(t, mentor.UserID))

	entries := f.ledger(t, mentor.UserID)
	last := entries[len(entries)-1]
	assert.Equal(t, models.LedgerAdjustment, last.Type)
	assert.Equal(t, int64(-9000), last.AmountCents)

	// Both tokens are spent: refund again or reschedule both fail as used.
	_, err = f.cancellations.RefundByToken(refundToken)
	assert.ErrorIs(t, err, ErrTokenAlreadyUsed)
	_, err = f.cancellations.RescheduleByToken(rescheduleToken, "2025-06-17", "15:00")
	assert.ErrorIs(t, err, ErrTokenAlreadyUsed)
}

// Refund after the hold matured: the reversal comes out of available instead
// of pending.
func TestRefundReversesReleasedEarnings(t *testing.T) {
	f := newFixture(t)
	mentor := f.newMentor(t)
	f.paidBooking(t, mentor, "2025-06-10", "14:00")
	f.advance(f.wallets.HoldDuration() + time.Minute)
	_, err := f.wallets.ReleaseMatured(mentor.UserID)
	require.NoError(t, err)

	_, err = f.cancellations.CancelByMentorToken(tokenFromMail(t, f, "cancel"))
	require.NoError(t, err)
	_, err = f.cancellations.RefundByToken(tokenFromMail(t, f, "refund"))
	require.NoError(t, err)

	wallet, err := f.wallets.Wallet(mentor.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.AvailableCents)
	assert.Equal(t, int64(0), wallet.PendingCents)
	assert.Equal(t, int64(0), f.ledgerNetSum(t, mentor.UserID))
}

// External refund failure aborts with no state change: the booking stays
// cancelled and the token stays usable for a retry.
func TestRefundFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	mentor := f.newMentor(t)
	booking := f.paidBooking(t, mentor, "2025-06-10", "14:00")
	_, err := f.cancellations.CancelByMentorToken(tokenFromMail(t, f, "cancel"))
	require.NoError(t, err)
	refundToken := tokenFromMail(t, f, "refund")

	f.processor.failRefund = true
	_, err = f.cancellations.RefundByToken(refundToken)
	assert.ErrorIs(t, err, ErrRefundFailed)

	stored := f.reloadBooking(t, booking.ID)
	assert.Equal(t, models.BookingCancelledByMentor, stored.Status)
	assert.True(t, stored.EarningsProcessed)

	wallet, err := f.wallets.Wallet(mentor.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), wallet.PendingCents)

	// Retry succeeds once the processor recovers.
	f.processor.failRefund = false
	refunded, err := f.cancellations.RefundByToken(refundToken)
	require.NoError(t, err)
	assert.Equal(t, models.BookingRefunded, refunded.Status)
}

func TestRefundedBookingKeepsSlotBlocked(t *testing.T) {
	f := newFixture(t)
	mentor := f.newMentor(t)
	f.paidBooking(t, mentor, "2025-06-10", "14:00")
	_, err := f.cancellations.CancelByMentorToken(tokenFromMail(t, f, "cancel"))
	require.NoError(t, err)
	_, err = f.cancellations.RefundByToken(tokenFromMail(t, f, "refund"))
	require.NoError(t, err)

	_, err = f.bookings.CreateFreeBooking(mentor.UserID, "2025-06-10", "14:00", "o@example.com", "Otieno", nil)
	assert.ErrorIs(t, err, ErrSlotConflict)
}
