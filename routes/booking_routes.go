package routes

import (
	"github.com/edmondmuhia/mentor_marketplace/handlers"
	"github.com/edmondmuhia/mentor_marketplace/middleware"
	"github.com/edmondmuhia/mentor_marketplace/services"
	"github.com/gofiber/fiber/v2"
)

func BookingRoutes(app *fiber.App, bookings *services.BookingService) {
	api := app.Group("/api/v1")

	// Public booking entry points: students book before they have accounts.
	api.Post("/bookings/session-intent", handlers.CreateSessionIntent(bookings))
	api.Post("/bookings/confirm", handlers.ConfirmBooking(bookings))
	api.Post("/bookings/free", handlers.CreateFreeBooking(bookings))

	protected := api.Group("/bookings", middleware.Protected())
	protected.Get("/mine", handlers.GetMyBookings(bookings))
}
