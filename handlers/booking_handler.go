package handlers

import (
	"github.com/edmondmuhia/mentor_marketplace/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type CreateSessionIntentRequest struct {
	MentorID     string `json:"mentor_id" validate:"required,uuid4"`
	Date         string `json:"date" validate:"required,datetime=2006-01-02"`
	Time         string `json:"time" validate:"required,datetime=15:04"`
	StudentEmail string `json:"student_email" validate:"required,email"`
	StudentName  string `json:"student_name" validate:"required"`
}

type ConfirmBookingRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
}

// CreateSessionIntent quotes a session and opens a payment intent for it. The
// booking row itself is only created once the payment succeeds.
func CreateSessionIntent(svc *services.BookingService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req CreateSessionIntentRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
		}
		if err := validate.Struct(req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		mentorID, err := uuid.Parse(req.MentorID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid mentor id"})
		}

		intent, err := svc.CreateSessionIntent(mentorID, req.Date, req.Time, req.StudentEmail, req.StudentName)
		if err != nil {
			return respondServiceError(c, err)
		}

		return c.JSON(fiber.Map{
			"payment_intent_id": intent.ID,
			"client_secret":     intent.ClientSecret,
			"amount_cents":      intent.AmountCents,
		})
	}
}

// ConfirmBooking is the synchronous confirmation path the frontend calls after
// Stripe reports the payment succeeded. It races the webhook; both converge on
// a single credited booking.
func ConfirmBooking(svc *services.BookingService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req ConfirmBookingRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
		}
		if err := validate.Struct(req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		booking, err := svc.ConfirmPaidBooking(req.PaymentIntentID)
		if err != nil {
			return respondServiceError(c, err)
		}
		return c.JSON(booking)
	}
}

func CreateFreeBooking(svc *services.BookingService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req CreateSessionIntentRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
		}
		if err := validate.Struct(req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		mentorID, err := uuid.Parse(req.MentorID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid mentor id"})
		}

		var studentID *uuid.UUID
		if id, err := currentUserID(c); err == nil {
			studentID = &id
		}

		booking, err := svc.CreateFreeBooking(mentorID, req.Date, req.Time, req.StudentEmail, req.StudentName, studentID)
		if err != nil {
			return respondServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(booking)
	}
}

func GetMyMentorBookings(svc *services.BookingService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := currentUserID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}

		bookings, err := svc.MentorBookings(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load bookings"})
		}
		return c.JSON(bookings)
	}
}

func GetMyBookings(svc *services.BookingService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := currentUserID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}

		bookings, err := svc.StudentBookings(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load bookings"})
		}
		return c.JSON(bookings)
	}
}
