package handlers

import (
	"github.com/edmondmuhia/mentor_marketplace/services"
	"github.com/edmondmuhia/mentor_marketplace/utils"
	"github.com/gofiber/fiber/v2"
)

// GetMyWallet returns the mentor's balances. Reading the wallet also releases
// any matured holds, so the pending and available figures are current as of
// this request.
func GetMyWallet(svc *services.WalletService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := currentUserID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}

		wallet, err := svc.Wallet(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load wallet"})
		}

		return c.JSON(fiber.Map{
			"available_cents":   wallet.AvailableCents,
			"pending_cents":     wallet.PendingCents,
			"available_display": utils.FormatCents(wallet.AvailableCents),
			"pending_display":   utils.FormatCents(wallet.PendingCents),
		})
	}
}

func GetMyLedger(svc *services.WalletService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := currentUserID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}

		entries, err := svc.Ledger(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load ledger"})
		}
		return c.JSON(entries)
	}
}
