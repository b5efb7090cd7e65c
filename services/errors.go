package services

import "github.com/gofiber/fiber/v2"

// ServiceError is a typed, client-mappable failure. Code is the wire
// discriminator the HTTP layer exposes; token errors map to 400, slot
// conflicts to 409, other invalid-state results to 422 and external failures
// to 500.
type ServiceError struct {
	Code    string
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func (e *ServiceError) HTTPStatus() int {
	switch e.Code {
	case "INVALID_TOKEN", "EXPIRED_TOKEN", "TOKEN_ALREADY_USED", "NO_AVAILABLE_BALANCE":
		return fiber.StatusBadRequest
	case "SLOT_CONFLICT":
		return fiber.StatusConflict
	case "BOOKING_NOT_FOUND", "PAYOUT_NOT_FOUND", "INVALID_STATE", "MISSING_STUDENT_EMAIL":
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

var (
	ErrInvalidToken     = &ServiceError{Code: "INVALID_TOKEN", Message: "This link is not valid."}
	ErrExpiredToken     = &ServiceError{Code: "EXPIRED_TOKEN", Message: "This link has expired. Please request a new one."}
	ErrTokenAlreadyUsed = &ServiceError{Code: "TOKEN_ALREADY_USED", Message: "This link has already been used."}
	ErrBookingNotFound  = &ServiceError{Code: "BOOKING_NOT_FOUND", Message: "Booking not found."}
	ErrPayoutNotFound   = &ServiceError{Code: "PAYOUT_NOT_FOUND", Message: "Payout not found."}
	ErrInvalidState     = &ServiceError{Code: "INVALID_STATE", Message: "This booking is not in a state that allows the requested action."}
	ErrSlotConflict     = &ServiceError{Code: "SLOT_CONFLICT", Message: "This time slot is no longer available."}
	ErrMissingStudentEmail = &ServiceError{Code: "MISSING_STUDENT_EMAIL", Message: "No student email is on record for this booking."}
	ErrRefundFailed     = &ServiceError{Code: "REFUND_FAILED", Message: "The refund could not be processed. No changes were made; please try again."}
	ErrNoAvailableBalance = &ServiceError{Code: "NO_AVAILABLE_BALANCE", Message: "No available balance to withdraw."}
	ErrOutsideAvailability = &ServiceError{Code: "INVALID_STATE", Message: "The requested time is outside the tutor's availability."}
	ErrTransferFailed   = &ServiceError{Code: "TRANSFER_FAILED", Message: "The transfer to your bank account failed. Your balance was not affected."}
)
