package handlers

import (
	"github.com/edmondmuhia/mentor_marketplace/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type WithdrawRequest struct {
	AmountCents *int64 `json:"amount_cents" validate:"omitempty,gt=0"`
}

// RequestWithdrawal starts a payout of the mentor's available balance. When
// the connected account cannot receive transfers yet, the response carries an
// onboarding URL instead of a completed transfer.
func RequestWithdrawal(svc *services.PayoutService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := currentUserID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}

		var req WithdrawRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
		}
		if err := validate.Struct(req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		result, err := svc.RequestWithdrawal(userID, req.AmountCents)
		if err != nil {
			return respondServiceError(c, err)
		}
		return c.JSON(withdrawalResponse(result))
	}
}

// CompleteOnboarding resumes a payout parked behind Stripe onboarding, called
// when the mentor returns from the hosted onboarding flow.
func CompleteOnboarding(svc *services.PayoutService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := currentUserID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}

		payoutID, err := uuid.Parse(c.Params("payoutId"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payout id"})
		}

		result, err := svc.ProcessPendingPayout(payoutID, userID)
		if err != nil {
			return respondServiceError(c, err)
		}
		return c.JSON(withdrawalResponse(result))
	}
}

func GetMyPayouts(svc *services.PayoutService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := currentUserID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}

		payouts, err := svc.Payouts(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load payouts"})
		}
		return c.JSON(payouts)
	}
}

func withdrawalResponse(result *services.WithdrawalResult) fiber.Map {
	resp := fiber.Map{"payout": result.Payout}
	if result.OnboardingURL != "" {
		resp["onboarding_url"] = result.OnboardingURL
	}
	if result.NeedsVerification {
		resp["needs_verification"] = true
	}
	return resp
}
