package routes

import (
	"github.com/edmondmuhia/mentor_marketplace/handlers"
	"github.com/edmondmuhia/mentor_marketplace/middleware"
	"github.com/edmondmuhia/mentor_marketplace/services"
	"github.com/gofiber/fiber/v2"
)

func MentorRoutes(app *fiber.App, bookings *services.BookingService, wallets *services.WalletService, payouts *services.PayoutService) {
	api := app.Group("/api/v1")

	api.Post("/mentors/apply", middleware.Protected(), handlers.ApplyAsMentor)

	mentor := api.Group("/mentors/me", middleware.Protected(), middleware.MentorRequired())
	mentor.Get("/", handlers.GetMentorProfile)
	mentor.Get("/bookings", handlers.GetMyMentorBookings(bookings))
	mentor.Put("/availability", handlers.SetAvailability)
	mentor.Get("/availability", handlers.GetAvailability)

	mentor.Get("/wallet", handlers.GetMyWallet(wallets))
	mentor.Get("/ledger", handlers.GetMyLedger(wallets))

	mentor.Post("/payouts", handlers.RequestWithdrawal(payouts))
	mentor.Get("/payouts", handlers.GetMyPayouts(payouts))
	mentor.Post("/payouts/:payoutId/complete", handlers.CompleteOnboarding(payouts))
}
