package routes

import (
	"github.com/edmondmuhia/mentor_marketplace/handlers"
	"github.com/edmondmuhia/mentor_marketplace/middleware"
	"github.com/edmondmuhia/mentor_marketplace/services"
	"github.com/gofiber/fiber/v2"
)

func AdminRoutes(app *fiber.App, wallets *services.WalletService) {
	api := app.Group("/api/v1")

	admin := api.Group("/admin", middleware.Protected(), middleware.AdminRequired())
	admin.Get("/payouts", handlers.AdminListPayouts)
	admin.Post("/adjustments", handlers.AdminCreateAdjustment(wallets))
	admin.Get("/mentors/:mentorId/wallet", handlers.AdminMentorWallet)
	admin.Get("/mentors/:mentorId/ledger.csv", handlers.AdminExportLedgerCSV)
}
