package routes

import (
	"github.com/edmondmuhia/mentor_marketplace/handlers"
	"github.com/edmondmuhia/mentor_marketplace/services"
	"github.com/gofiber/fiber/v2"
)

func WebhookRoutes(app *fiber.App, bookings *services.BookingService, payouts *services.PayoutService) {
	api := app.Group("/api/v1")

	api.Post("/payments/webhook", handlers.HandleStripeWebhook(bookings, payouts))
}
