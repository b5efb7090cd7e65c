package handlers

import (
	"bytes"
	"encoding/csv"

	"github.com/edmondmuhia/mentor_marketplace/database"
	"github.com/edmondmuhia/mentor_marketplace/models"
	"github.com/edmondmuhia/mentor_marketplace/services"
	"github.com/edmondmuhia/mentor_marketplace/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type AdjustmentRequest struct {
	MentorID    string `json:"mentor_id" validate:"required,uuid4"`
	AmountCents int64  `json:"amount_cents" validate:"required"`
	Description string `json:"description" validate:"required"`
}

func AdminListPayouts(c *fiber.Ctx) error {
	var payouts []models.MentorPayout
	query := database.DB.Preload("Mentor").Order("created_at desc")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Find(&payouts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load payouts"})
	}
	return c.JSON(payouts)
}

// AdminCreateAdjustment credits or debits a mentor's available balance with a
// signed correction entry.
func AdminCreateAdjustment(svc *services.WalletService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req AdjustmentRequest
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

		if err := svc.ManualAdjust(mentorID, req.AmountCents, req.Description); err != nil {
			return respondServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Adjustment recorded"})
	}
}

// AdminExportLedgerCSV streams a mentor's full ledger as a CSV download.
func AdminExportLedgerCSV(c *fiber.Ctx) error {
	mentorID, err := uuid.Parse(c.Params("mentorId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid mentor id"})
	}

	var entries []models.MentorLedgerEntry
	if err := database.DB.Where("mentor_id = ?", mentorID).
		Order("created_at asc").Find(&entries).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load ledger"})
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"id", "type", "amount", "balance_after", "booking_id", "payout_id", "description", "created_at"})
	for _, e := range entries {
		balanceAfter := ""
		if e.BalanceAfterCents != nil {
			balanceAfter = utils.FormatCents(*e.BalanceAfterCents)
		}
		bookingID, payoutID := "", ""
		if e.RelatedBookingID != nil {
			bookingID = e.RelatedBookingID.String()
		}
		if e.RelatedPayoutID != nil {
			payoutID = e.RelatedPayoutID.String()
		}
		_ = w.Write([]string{
			e.ID.String(),
			string(e.Type),
			utils.FormatCents(e.AmountCents),
			balanceAfter,
			bookingID,
			payoutID,
			e.Description,
			e.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to build CSV"})
	}

	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", "attachment; filename=ledger-"+mentorID.String()+".csv")
	return c.Send(buf.Bytes())
}

// AdminMentorWallet returns a mentor's balances plus the ledger sum of
// net-effect entries, for spotting drift between the two.
func AdminMentorWallet(c *fiber.Ctx) error {
	mentorID, err := uuid.Parse(c.Params("mentorId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid mentor id"})
	}

	var wallet models.MentorWallet
	if err := database.DB.Where("mentor_id = ?", mentorID).First(&wallet).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Wallet not found"})
	}

	var entries []models.MentorLedgerEntry
	if err := database.DB.Where("mentor_id = ?", mentorID).Find(&entries).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load ledger"})
	}
	var ledgerSum int64
	for _, e := range entries {
		if e.Type.NetEffect() {
			ledgerSum += e.AmountCents
		}
	}

	walletTotal := wallet.AvailableCents + wallet.PendingCents
	return c.JSON(fiber.Map{
		"available_cents":  wallet.AvailableCents,
		"pending_cents":    wallet.PendingCents,
		"ledger_sum_cents": ledgerSum,
		"drift_cents":      walletTotal - ledgerSum,
	})
}
