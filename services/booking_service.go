package services

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/edmondmuhia/mentor_marketplace/calendar"
	config "github.com/edmondmuhia/mentor_marketplace/configs"
	"github.com/edmondmuhia/mentor_marketplace/models"
	"github.com/edmondmuhia/mentor_marketplace/payments"
	"github.com/edmondmuhia/mentor_marketplace/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BookingService creates bookings and credits mentor earnings. Two paths race
// to credit the same booking: the synchronous confirm call from the client and
// the asynchronous payment-succeeded webhook. The earningsProcessed flag,
// checked-and-set in the crediting transaction, guarantees exactly one
// SESSION_EARNED entry per booking regardless of arrival order or duplicated
// notifications.
type BookingService struct {
	db        *gorm.DB
	wallets   *WalletService
	processor payments.Processor
	effects   *Dispatcher
	now       func() time.Time

	feePercent int
	tokenTTL   time.Duration

	// Webhook lookup backoff for the read-your-writes window while the
	// synchronous path commits.
	webhookRetries    int
	webhookRetryDelay time.Duration
}

func NewBookingService(db *gorm.DB, wallets *WalletService, processor payments.Processor, effects *Dispatcher) *BookingService {
	return &BookingService{
		db:                db,
		wallets:           wallets,
		processor:         processor,
		effects:           effects,
		now:               time.Now,
		feePercent:        config.PlatformFeePercent(),
		tokenTTL:          time.Duration(config.ActionTokenTTLDays()) * 24 * time.Hour,
		webhookRetries:    5,
		webhookRetryDelay: 500 * time.Millisecond,
	}
}

// CreateSessionIntent prices a session with the configured platform fee and
// creates the payment intent. The split is captured into the intent's metadata
// so both crediting paths reproduce the same ledger math.
func (s *BookingService) CreateSessionIntent(mentorID uuid.UUID, date, clock, studentEmail, studentName string) (*payments.PaymentIntent, error) {
	var mentor models.Mentor
	if err := s.db.First(&mentor, "user_id = ?", mentorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ServiceError{Code: "INVALID_STATE", Message: "Mentor not found."}
		}
		return nil, err
	}
	if mentor.SessionRateCents <= 0 {
		return nil, &ServiceError{Code: "INVALID_STATE", Message: "This mentor has not set a session rate."}
	}

	if _, err := utils.ParseSessionSlot(date, clock); err != nil {
		return nil, &ServiceError{Code: "INVALID_STATE", Message: "Invalid session date or time."}
	}

	total := mentor.SessionRateCents
	fee := utils.PlatformFeeCents(total, s.feePercent)

	return s.processor.CreatePaymentIntent(total, map[string]string{
		"mentor_id":             mentorID.String(),
		"date":                  date,
		"time":                  clock,
		"student_email":         studentEmail,
		"student_name":          studentName,
		"fee_percent":           strconv.Itoa(s.feePercent),
		"platform_fee_cents":    strconv.FormatInt(fee, 10),
		"mentor_earnings_cents": strconv.FormatInt(total-fee, 10),
	})
}

// ConfirmPaidBooking is the synchronous crediting path, called right after the
// client reports payment success. It verifies the intent, then creates the
// booking row and credits pending earnings in one transaction.
func (s *BookingService) ConfirmPaidBooking(paymentIntentID string) (*models.Booking, error) {
	pi, err := s.processor.RetrievePaymentIntent(paymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("payment lookup failed: %w", err)
	}
	if pi.Status != "succeeded" {
		return nil, &ServiceError{Code: "INVALID_STATE", Message: "Payment has not succeeded."}
	}

	booking, err := s.ensureBookingCredited(pi)
	if err != nil {
		return nil, err
	}

	s.performConfirmationEffects(booking.ID)
	return booking, nil
}

// HandlePaymentSucceeded is the asynchronous safety-net path driven by the
// processor's payment-succeeded notification. The notification may arrive
// before the synchronous path commits, so the lookup retries with bounded
// backoff before falling back to performing the work itself.
func (s *BookingService) HandlePaymentSucceeded(paymentIntentID string) error {
	var booking *models.Booking
	for attempt := 0; ; attempt++ {
		var found models.Booking
		err := s.db.First(&found, "stripe_payment_intent_id = ?", paymentIntentID).Error
		if err == nil {
			booking = &found
			break
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if attempt >= s.webhookRetries {
			break
		}
		time.Sleep(s.webhookRetryDelay * time.Duration(attempt+1))
	}

	if booking == nil {
		// The synchronous path never committed; perform the credit ourselves.
		pi, err := s.processor.RetrievePaymentIntent(paymentIntentID)
		if err != nil {
			return fmt.Errorf("payment lookup failed: %w", err)
		}
		if pi.Status != "succeeded" {
			log.Printf("Ignoring payment notification for intent %s in status %s", paymentIntentID, pi.Status)
			return nil
		}
		booking, err = s.ensureBookingCredited(pi)
		if err != nil {
			return err
		}
	} else if !booking.EarningsProcessed {
		// Row exists but the synchronous path failed partway.
		if err := s.creditBooking(booking); err != nil {
			return err
		}
	}

	s.performConfirmationEffects(booking.ID)
	return nil
}

// CreateFreeBooking confirms a free session: no payment, no earnings, same
// slot-conflict guard and confirmation side effects.
func (s *BookingService) CreateFreeBooking(mentorID uuid.UUID, date, clock, studentEmail, studentName string, studentID *uuid.UUID) (*models.Booking, error) {
	if _, err := utils.ParseSessionSlot(date, clock); err != nil {
		return nil, &ServiceError{Code: "INVALID_STATE", Message: "Invalid session date or time."}
	}

	booking := &models.Booking{
		MentorID:     mentorID,
		StudentID:    studentID,
		StudentEmail: studentEmail,
		StudentName:  studentName,
		Date:         date,
		Time:         clock,
		Status:       models.BookingConfirmed,
		Free:         true,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.createGuardingSlot(tx, booking)
	})
	if err != nil {
		return nil, err
	}

	s.performConfirmationEffects(booking.ID)
	return booking, nil
}

// MentorBookings returns a mentor's bookings, newest session first.
func (s *BookingService) MentorBookings(mentorID uuid.UUID) ([]models.Booking, error) {
	var bookings []models.Booking
	err := s.db.Where("mentor_id = ?", mentorID).Order("date desc, time desc").Find(&bookings).Error
	return bookings, err
}

// StudentBookings returns a student's bookings, newest session first.
func (s *BookingService) StudentBookings(studentID uuid.UUID) ([]models.Booking, error) {
	var bookings []models.Booking
	err := s.db.Where("student_id = ?", studentID).Order("date desc, time desc").Find(&bookings).Error
	return bookings, err
}

// ensureBookingCredited creates the booking for a succeeded intent and credits
// earnings, or returns the existing booking when another path already won.
func (s *BookingService) ensureBookingCredited(pi *payments.PaymentIntent) (*models.Booking, error) {
	mentorID, err := uuid.Parse(pi.Metadata["mentor_id"])
	if err != nil {
		return nil, fmt.Errorf("payment intent %s has no usable mentor_id: %w", pi.ID, err)
	}
	fee, _ := strconv.ParseInt(pi.Metadata["platform_fee_cents"], 10, 64)
	earnings, _ := strconv.ParseInt(pi.Metadata["mentor_earnings_cents"], 10, 64)
	if earnings <= 0 {
		earnings = pi.AmountCents - fee
	}

	intentID := pi.ID
	availableAt := s.now().Add(s.wallets.HoldDuration())
	booking := &models.Booking{
		MentorID:              mentorID,
		StudentEmail:          pi.Metadata["student_email"],
		StudentName:           pi.Metadata["student_name"],
		Date:                  pi.Metadata["date"],
		Time:                  pi.Metadata["time"],
		Status:                models.BookingConfirmed,
		TotalAmountCents:      pi.AmountCents,
		PlatformFeeCents:      fee,
		MentorEarningsCents:   earnings,
		EarningsProcessed:     true,
		AvailableAt:           &availableAt,
		StripePaymentIntentID: &intentID,
	}

	var existing *models.Booking
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var prior models.Booking
		lookupErr := tx.First(&prior, "stripe_payment_intent_id = ?", pi.ID).Error
		if lookupErr == nil {
			existing = &prior
			return nil
		}
		if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return lookupErr
		}

		if err := s.createGuardingSlot(tx, booking); err != nil {
			return err
		}
		return s.wallets.CreditPendingTx(tx, mentorID, earnings,
			fmt.Sprintf("Session earnings for %s %s", booking.Date, booking.Time), &booking.ID)
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return booking, nil
}

// creditBooking credits earnings for a booking whose row exists but was never
// credited. The conditional update is the at-most-once guard.
func (s *BookingService) creditBooking(booking *models.Booking) error {
	availableAt := s.now().Add(s.wallets.HoldDuration())
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Booking{}).
			Where("id = ? AND earnings_processed = ?", booking.ID, false).
			Updates(map[string]interface{}{
				"earnings_processed": true,
				"available_at":       availableAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		booking.EarningsProcessed = true
		booking.AvailableAt = &availableAt
		return s.wallets.CreditPendingTx(tx, booking.MentorID, booking.MentorEarningsCents,
			fmt.Sprintf("Session earnings for %s %s", booking.Date, booking.Time), &booking.ID)
	})
}

// createGuardingSlot inserts the booking, translating a duplicate-slot
// violation into a graceful conflict result: the first writer wins, the second
// gets SLOT_CONFLICT, never a crash or a duplicate row.
func (s *BookingService) createGuardingSlot(tx *gorm.DB, booking *models.Booking) error {
	var count int64
	if err := tx.Model(&models.Booking{}).
		Where("mentor_id = ? AND date = ? AND time = ?", booking.MentorID, booking.Date, booking.Time).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrSlotConflict
	}

	if err := tx.Create(booking).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(strings.ToLower(err.Error()), "unique") {
			return ErrSlotConflict
		}
		return err
	}
	return nil
}

// performConfirmationEffects runs the non-financial half of confirmation:
// issue the mentor's cancellation token, schedule the calendar event, and
// email both parties. Each piece is guarded so whichever path runs second
// skips what is already done; failures are logged and never affect the
// committed booking.
func (s *BookingService) performConfirmationEffects(bookingID uuid.UUID) {
	var booking models.Booking
	if err := s.db.First(&booking, "id = ?", bookingID).Error; err != nil {
		log.Printf("🔥 Failed to load booking %s for confirmation effects: %v", bookingID, err)
		return
	}
	var mentor models.Mentor
	if err := s.db.Preload("User").First(&mentor, "user_id = ?", booking.MentorID).Error; err != nil {
		log.Printf("🔥 Failed to load mentor %s for confirmation effects: %v", booking.MentorID, err)
		return
	}

	rawCancel := s.ensureCancelToken(&booking)
	s.ensureScheduled(&booking, &mentor)

	if rawCancel == "" {
		// Token already issued by an earlier run; the mentor already has the link.
		return
	}

	cancelURL := fmt.Sprintf("%s/actions/cancel/%s", config.AppBaseURL(), rawCancel)
	meetLink := ""
	if booking.MeetLink != nil {
		meetLink = *booking.MeetLink
	}

	effects := []SideEffect{
		emailEffect{
			ToName:  mentor.User.FullName,
			ToEmail: mentor.User.Email,
			Subject: "You Have a New Booking!",
			HTML: fmt.Sprintf("<h1>New Booking</h1><p>A student has booked a session with you on %s at %s.</p><p><b>Meeting link:</b> <a href='%s'>Join</a></p><p>If you need to cancel, use <a href='%s'>this link</a>.</p>",
				booking.Date, booking.Time, meetLink, cancelURL),
		},
	}
	if booking.StudentEmail != "" {
		effects = append(effects, emailEffect{
			ToName:  booking.StudentName,
			ToEmail: booking.StudentEmail,
			Subject: "Your Booking is Confirmed!",
			HTML: fmt.Sprintf("<h1>Booking Confirmed</h1><p>Your session on %s at %s is confirmed.</p><p><b>Meeting link:</b> <a href='%s'>Join</a></p>",
				booking.Date, booking.Time, meetLink),
		})
	}
	s.effects.Dispatch(effects)
}

// ensureCancelToken issues the mentor's cancellation token once, returning the
// raw secret only on the run that issued it.
func (s *BookingService) ensureCancelToken(booking *models.Booking) string {
	if booking.CancelTokenHash != nil {
		return ""
	}

	raw, hash, err := utils.NewActionToken()
	if err != nil {
		log.Printf("🔥 Failed to generate cancel token for booking %s: %v", booking.ID, err)
		return ""
	}
	expires := s.now().Add(s.tokenTTL)

	res := s.db.Model(&models.Booking{}).
		Where("id = ? AND cancel_token_hash IS NULL", booking.ID).
		Updates(map[string]interface{}{
			"cancel_token_hash":       hash,
			"cancel_token_expires_at": expires,
		})
	if res.Error != nil || res.RowsAffected == 0 {
		return ""
	}
	booking.CancelTokenHash = &hash
	booking.CancelTokenExpiresAt = &expires
	return raw
}

// ensureScheduled creates the calendar event once, or reuses the mentor's
// persistent meeting link. Scheduling failure marks the booking so it can be
// retried by support; it never unwinds the financial state.
func (s *BookingService) ensureScheduled(booking *models.Booking, mentor *models.Mentor) {
	if booking.CalendarEventID != nil || booking.MeetLink != nil {
		return
	}

	if mentor.MeetingLink != nil {
		if err := s.db.Model(&models.Booking{}).Where("id = ?", booking.ID).
			Update("meet_link", *mentor.MeetingLink).Error; err != nil {
			log.Printf("Failed to store meeting link for booking %s: %v", booking.ID, err)
			return
		}
		booking.MeetLink = mentor.MeetingLink
		return
	}

	if s.effects.Calendar == nil {
		return
	}

	startsAt, err := booking.StartsAt()
	if err != nil {
		log.Printf("🔥 Booking %s has unparseable slot: %v", booking.ID, err)
		return
	}

	attendees := []string{mentor.User.Email}
	if booking.StudentEmail != "" {
		attendees = append(attendees, booking.StudentEmail)
	}
	event, err := s.effects.Calendar.CreateMeetingEvent(calendar.EventDetails{
		Summary:        fmt.Sprintf("Mentoring session with %s", mentor.User.FullName),
		StartsAt:       startsAt.Format(time.RFC3339),
		DurationMins:   60,
		AttendeeEmails: attendees,
	})
	if err != nil {
		log.Printf("🔥 Failed to create calendar event for booking %s: %v", booking.ID, err)
		s.db.Model(&models.Booking{}).Where("id = ?", booking.ID).
			Update("status", models.BookingSchedulingFailed)
		return
	}

	if err := s.db.Model(&models.Booking{}).Where("id = ?", booking.ID).Updates(map[string]interface{}{
		"calendar_event_id": event.EventID,
		"meet_link":         event.MeetingLink,
	}).Error; err != nil {
		log.Printf("Failed to store calendar event for booking %s: %v", booking.ID, err)
		return
	}
	booking.CalendarEventID = &event.EventID
	booking.MeetLink = &event.MeetingLink
}
