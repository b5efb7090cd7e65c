package handlers

import (
	"github.com/edmondmuhia/mentor_marketplace/services"
	"github.com/gofiber/fiber/v2"
)

type RescheduleActionRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Time string `json:"time" validate:"required,datetime=15:04"`
}

// The action endpoints are unauthenticated: possession of the emailed token is
// the authorization. GET resolves the token to display context, POST executes.

func GetCancelContext(svc *services.CancellationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, err := svc.CancelContext(c.Params("token"))
		if err != nil {
			return respondServiceError(c, err)
		}
		return c.JSON(ctx)
	}
}

func ExecuteCancel(svc *services.CancellationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		booking, err := svc.CancelByMentorToken(c.Params("token"))
		if err != nil {
			return respondServiceError(c, err)
		}
		return c.JSON(fiber.Map{"message": "Session cancelled. The student has been notified.", "booking": booking})
	}
}

func GetRescheduleContext(svc *services.CancellationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, err := svc.RescheduleContext(c.Params("token"))
		if err != nil {
			return respondServiceError(c, err)
		}
		return c.JSON(ctx)
	}
}

func ExecuteReschedule(svc *services.CancellationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req RescheduleActionRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
		}
		if err := validate.Struct(req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		booking, err := svc.RescheduleByToken(c.Params("token"), req.Date, req.Time)
		if err != nil {
			return respondServiceError(c, err)
		}
		return c.JSON(fiber.Map{"message": "Session rescheduled.", "booking": booking})
	}
}

func GetRefundContext(svc *services.CancellationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, err := svc.RefundContext(c.Params("token"))
		if err != nil {
			return respondServiceError(c, err)
		}
		return c.JSON(ctx)
	}
}

func ExecuteRefund(svc *services.CancellationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		booking, err := svc.RefundByToken(c.Params("token"))
		if err != nil {
			return respondServiceError(c, err)
		}
		return c.JSON(fiber.Map{"message": "Refund issued.", "booking": booking})
	}
}
