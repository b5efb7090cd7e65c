package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/edmondmuhia/mentor_marketplace/calendar"
	config "github.com/edmondmuhia/mentor_marketplace/configs"
	"github.com/edmondmuhia/mentor_marketplace/models"
	"github.com/edmondmuhia/mentor_marketplace/payments"
	"github.com/edmondmuhia/mentor_marketplace/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type tokenPurpose string

const (
	purposeCancel     tokenPurpose = "cancel"
	purposeReschedule tokenPurpose = "reschedule"
	purposeRefund     tokenPurpose = "refund"
)

// CancellationService runs the tutor-cancel, student-reschedule and
// student-refund workflows. Each action is authorized solely by possession of
// a single-use hashed capability token mailed to the acting party; the usedAt
// stamp doubles as the concurrency guard, so the first successful claim wins
// and a racing duplicate sees TOKEN_ALREADY_USED.
type CancellationService struct {
	db        *gorm.DB
	wallets   *WalletService
	processor payments.Processor
	effects   *Dispatcher
	now       func() time.Time
	tokenTTL  time.Duration
}

func NewCancellationService(db *gorm.DB, wallets *WalletService, processor payments.Processor, effects *Dispatcher) *CancellationService {
	return &CancellationService{
		db:        db,
		wallets:   wallets,
		processor: processor,
		effects:   effects,
		now:       time.Now,
		tokenTTL:  time.Duration(config.ActionTokenTTLDays()) * 24 * time.Hour,
	}
}

// ActionContext is the display context a token action page renders before the
// user confirms.
type ActionContext struct {
	BookingID        uuid.UUID            `json:"booking_id"`
	MentorName       string               `json:"mentor_name"`
	StudentName      string               `json:"student_name"`
	StudentEmail     string               `json:"student_email"`
	Date             string               `json:"date"`
	Time             string               `json:"time"`
	Status           models.BookingStatus `json:"status"`
	Free             bool                 `json:"free"`
	TotalAmountCents int64                `json:"total_amount_cents"`
}

// CancelContext resolves the tutor-cancel token for display.
func (s *CancellationService) CancelContext(rawToken string) (*ActionContext, error) {
	booking, err := s.findByToken(rawToken, purposeCancel)
	if err != nil {
		return nil, err
	}
	return s.buildContext(booking)
}

// RescheduleContext resolves the student-reschedule token for display.
func (s *CancellationService) RescheduleContext(rawToken string) (*ActionContext, error) {
	booking, err := s.findByToken(rawToken, purposeReschedule)
	if err != nil {
		return nil, err
	}
	return s.buildContext(booking)
}

// RefundContext resolves the student-refund token for display.
func (s *CancellationService) RefundContext(rawToken string) (*ActionContext, error) {
	booking, err := s.findByToken(rawToken, purposeRefund)
	if err != nil {
		return nil, err
	}
	return s.buildContext(booking)
}

// CancelByMentorToken cancels a booking on the tutor's behalf: the booking
// moves to cancelled_by_tutor, the calendar event is deleted best-effort, and
// the student receives fresh single-use reschedule and refund links.
func (s *CancellationService) CancelByMentorToken(rawToken string) (*models.Booking, error) {
	booking, err := s.findByToken(rawToken, purposeCancel)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.BookingRefunded || booking.Status == models.BookingCancelledByMentor {
		return nil, ErrInvalidState
	}
	if booking.StudentEmail == "" {
		return nil, ErrMissingStudentEmail
	}

	rawReschedule, rescheduleHash, err := utils.NewActionToken()
	if err != nil {
		return nil, err
	}
	rawRefund, refundHash, err := utils.NewActionToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	expires := now.Add(s.tokenTTL)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Booking{}).
			Where("id = ? AND cancel_token_used_at IS NULL AND status NOT IN ?",
				booking.ID, []models.BookingStatus{models.BookingRefunded, models.BookingCancelledByMentor}).
			Updates(map[string]interface{}{
				"status":                     models.BookingCancelledByMentor,
				"cancelled_at":               now,
				"cancel_token_used_at":       now,
				"reschedule_token_hash":      rescheduleHash,
				"reschedule_token_expires_at": expires,
				"reschedule_token_used_at":   nil,
				"refund_token_hash":          refundHash,
				"refund_token_expires_at":    expires,
				"refund_token_used_at":       nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTokenAlreadyUsed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	effects := []SideEffect{}
	if booking.CalendarEventID != nil {
		effects = append(effects, calendarDeleteEffect{EventID: *booking.CalendarEventID})
	}

	base := config.AppBaseURL()
	effects = append(effects, emailEffect{
		ToName:  booking.StudentName,
		ToEmail: booking.StudentEmail,
		Subject: "Your Session Was Cancelled by Your Tutor",
		HTML: fmt.Sprintf("<h1>Session Cancelled</h1><p>Your session on %s at %s was cancelled by your tutor.</p><p>You can <a href='%s/actions/reschedule/%s'>pick a new time</a>%s</p>",
			booking.Date, booking.Time, base, rawReschedule, s.refundLinkFragment(booking, base, rawRefund)),
	})
	s.effects.Dispatch(effects)

	if err := s.db.First(booking, "id = ?", booking.ID).Error; err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *CancellationService) refundLinkFragment(booking *models.Booking, base, rawRefund string) string {
	if booking.Free {
		return "."
	}
	return fmt.Sprintf(" or <a href='%s/actions/refund/%s'>request a refund</a>.", base, rawRefund)
}

// RescheduleByToken moves a cancelled booking to a new slot chosen by the
// student. The slot must fall inside the tutor's recurring weekly
// availability, must not collide with an existing booking, and consumes the
// reschedule token; both student tokens are invalidated on success.
func (s *CancellationService) RescheduleByToken(rawToken, newDate, newTime string) (*models.Booking, error) {
	booking, err := s.findByToken(rawToken, purposeReschedule)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingCancelledByMentor {
		return nil, ErrInvalidState
	}

	startsAt, err := utils.ParseSessionSlot(newDate, newTime)
	if err != nil {
		return nil, &ServiceError{Code: "INVALID_STATE", Message: "Invalid session date or time."}
	}
	if startsAt.Before(s.now()) {
		return nil, &ServiceError{Code: "INVALID_STATE", Message: "The new session time cannot be in the past."}
	}

	inWindow, err := s.withinAvailability(booking.MentorID, startsAt, newTime)
	if err != nil {
		return nil, err
	}
	if !inWindow {
		return nil, ErrOutsideAvailability
	}

	var conflicts int64
	if err := s.db.Model(&models.Booking{}).
		Where("mentor_id = ? AND date = ? AND time = ? AND id <> ?", booking.MentorID, newDate, newTime, booking.ID).
		Count(&conflicts).Error; err != nil {
		return nil, err
	}
	if conflicts > 0 {
		return nil, ErrSlotConflict
	}

	rawCancel, cancelHash, err := utils.NewActionToken()
	if err != nil {
		return nil, err
	}

	newStatus := models.BookingConfirmed
	if !booking.Free {
		newStatus = models.BookingCompleted
	}
	now := s.now()
	cancelExpires := now.Add(s.tokenTTL)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Booking{}).
			Where("id = ? AND reschedule_token_used_at IS NULL AND status = ?", booking.ID, models.BookingCancelledByMentor).
			Updates(map[string]interface{}{
				"date":                        newDate,
				"time":                        newTime,
				"status":                      newStatus,
				"cancelled_at":                nil,
				"cancel_token_hash":           cancelHash,
				"cancel_token_expires_at":     cancelExpires,
				"cancel_token_used_at":        nil,
				"reschedule_token_hash":       nil,
				"reschedule_token_expires_at": nil,
				"reschedule_token_used_at":    nil,
				"refund_token_hash":           nil,
				"refund_token_expires_at":     nil,
				"refund_token_used_at":        nil,
				"calendar_event_id":           nil,
			})
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
				return ErrSlotConflict
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTokenAlreadyUsed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	priorEventID := ""
	if booking.CalendarEventID != nil {
		priorEventID = *booking.CalendarEventID
	}

	if err := s.db.First(booking, "id = ?", booking.ID).Error; err != nil {
		return nil, err
	}

	s.dispatchRescheduleEffects(booking, priorEventID, rawCancel)
	return booking, nil
}

// RefundByToken refunds a cancelled paid booking: the external refund is
// issued first (failure aborts with no state change), then earnings are
// reversed out of whichever wallet bucket holds them and the booking reaches
// its terminal refunded status.
func (s *CancellationService) RefundByToken(rawToken string) (*models.Booking, error) {
	booking, err := s.findByToken(rawToken, purposeRefund)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingCancelledByMentor {
		return nil, ErrInvalidState
	}

	var refundID *string
	if !booking.Free && booking.StripePaymentIntentID != nil {
		id, err := s.processor.CreateRefund(*booking.StripePaymentIntentID, "requested_by_customer", map[string]string{
			"booking_id": booking.ID.String(),
		})
		if err != nil {
			log.Printf("🔥 Refund for booking %s failed at processor: %v", booking.ID, err)
			return nil, ErrRefundFailed
		}
		refundID = &id
	}

	now := s.now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var current models.Booking
		if err := tx.First(&current, "id = ?", booking.ID).Error; err != nil {
			return err
		}

		res := tx.Model(&models.Booking{}).
			Where("id = ? AND refund_token_used_at IS NULL AND status = ?", booking.ID, models.BookingCancelledByMentor).
			Updates(map[string]interface{}{
				"status":                   models.BookingRefunded,
				"stripe_refund_id":         refundID,
				"refund_token_used_at":     now,
				"reschedule_token_used_at": now,
				"earnings_processed":       false,
				"funds_released":           false,
				"mentor_earnings_cents":    0,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTokenAlreadyUsed
		}

		if current.EarningsProcessed && current.MentorEarningsCents > 0 {
			return s.wallets.ReverseEarningsTx(tx, current.MentorID, current.MentorEarningsCents, current.FundsReleased, current.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if booking.CalendarEventID != nil {
		s.effects.Dispatch([]SideEffect{calendarDeleteEffect{EventID: *booking.CalendarEventID}})
	}

	if err := s.db.First(booking, "id = ?", booking.ID).Error; err != nil {
		return nil, err
	}
	return booking, nil
}

// findByToken resolves a booking by the hash of the supplied raw secret. Raw
// secrets are never stored or compared directly.
func (s *CancellationService) findByToken(rawToken string, purpose tokenPurpose) (*models.Booking, error) {
	if rawToken == "" || len(rawToken) > 128 {
		return nil, ErrInvalidToken
	}
	hash := utils.HashActionToken(rawToken)

	var booking models.Booking
	err := s.db.First(&booking, fmt.Sprintf("%s_token_hash = ?", purpose), hash).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	expires, used := booking.CancelTokenExpiresAt, booking.CancelTokenUsedAt
	switch purpose {
	case purposeReschedule:
		expires, used = booking.RescheduleTokenExpiresAt, booking.RescheduleTokenUsedAt
	case purposeRefund:
		expires, used = booking.RefundTokenExpiresAt, booking.RefundTokenUsedAt
	}

	if used != nil {
		return nil, ErrTokenAlreadyUsed
	}
	if expires == nil || expires.Before(s.now()) {
		return nil, ErrExpiredToken
	}
	return &booking, nil
}

func (s *CancellationService) buildContext(booking *models.Booking) (*ActionContext, error) {
	var mentor models.User
	if err := s.db.First(&mentor, "id = ?", booking.MentorID).Error; err != nil {
		return nil, ErrBookingNotFound
	}

	return &ActionContext{
		BookingID:        booking.ID,
		MentorName:       mentor.FullName,
		StudentName:      booking.StudentName,
		StudentEmail:     booking.StudentEmail,
		Date:             booking.Date,
		Time:             booking.Time,
		Status:           booking.Status,
		Free:             booking.Free,
		TotalAmountCents: booking.TotalAmountCents,
	}, nil
}

// withinAvailability checks the requested start against the mentor's
// recurring weekly windows.
func (s *CancellationService) withinAvailability(mentorID uuid.UUID, startsAt time.Time, clock string) (bool, error) {
	minute, err := utils.MinuteOfDay(clock)
	if err != nil {
		return false, err
	}

	var count int64
	err = s.db.Model(&models.AvailabilityWindow{}).
		Where("mentor_id = ? AND weekday = ? AND start_minute <= ? AND end_minute > ?",
			mentorID, int(startsAt.Weekday()), minute, minute).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *CancellationService) dispatchRescheduleEffects(booking *models.Booking, priorEventID, rawCancel string) {
	var mentor models.Mentor
	if err := s.db.Preload("User").First(&mentor, "user_id = ?", booking.MentorID).Error; err != nil {
		log.Printf("🔥 Failed to load mentor %s for reschedule effects: %v", booking.MentorID, err)
		return
	}

	effects := []SideEffect{}
	if priorEventID != "" {
		effects = append(effects, calendarDeleteEffect{EventID: priorEventID})
	}
	s.effects.Dispatch(effects)

	// Reuse the mentor's persistent room when present, otherwise create a
	// fresh event for the new slot.
	if mentor.MeetingLink != nil {
		if err := s.db.Model(&models.Booking{}).Where("id = ?", booking.ID).
			Update("meet_link", *mentor.MeetingLink).Error; err != nil {
			log.Printf("Failed to store meeting link for booking %s: %v", booking.ID, err)
		} else {
			booking.MeetLink = mentor.MeetingLink
		}
	} else if s.effects.Calendar != nil {
		startsAt, err := booking.StartsAt()
		if err == nil {
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
				log.Printf("🔥 Failed to create calendar event for rescheduled booking %s: %v", booking.ID, err)
			} else {
				if err := s.db.Model(&models.Booking{}).Where("id = ?", booking.ID).Updates(map[string]interface{}{
					"calendar_event_id": event.EventID,
					"meet_link":         event.MeetingLink,
				}).Error; err == nil {
					booking.CalendarEventID = &event.EventID
					booking.MeetLink = &event.MeetingLink
				}
			}
		}
	}

	meetLink := ""
	if booking.MeetLink != nil {
		meetLink = *booking.MeetLink
	}
	cancelURL := fmt.Sprintf("%s/actions/cancel/%s", config.AppBaseURL(), rawCancel)

	emails := []SideEffect{
		emailEffect{
			ToName:  mentor.User.FullName,
			ToEmail: mentor.User.Email,
			Subject: "A Session Was Rescheduled",
			HTML: fmt.Sprintf("<h1>Session Rescheduled</h1><p>Your student moved the session to %s at %s.</p><p><b>Meeting link:</b> <a href='%s'>Join</a></p><p>If you need to cancel, use <a href='%s'>this link</a>.</p>",
				booking.Date, booking.Time, meetLink, cancelURL),
		},
	}
	if booking.StudentEmail != "" {
		emails = append(emails, emailEffect{
			ToName:  booking.StudentName,
			ToEmail: booking.StudentEmail,
			Subject: "Your Session Was Rescheduled",
			HTML: fmt.Sprintf("<h1>Session Rescheduled</h1><p>Your session is now on %s at %s.</p><p><b>Meeting link:</b> <a href='%s'>Join</a></p>",
				booking.Date, booking.Time, meetLink),
		})
	}
	s.effects.Dispatch(emails)
}
