package main

import (
	"log"
	"time"

	"github.com/edmondmuhia/mentor_marketplace/calendar"
	"github.com/edmondmuhia/mentor_marketplace/database"
	"github.com/edmondmuhia/mentor_marketplace/jobs"
	"github.com/edmondmuhia/mentor_marketplace/notifications"
	"github.com/edmondmuhia/mentor_marketplace/payments"
	"github.com/edmondmuhia/mentor_marketplace/routes"
	"github.com/edmondmuhia/mentor_marketplace/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
)

func main() {
	database.ConnectDB()
	database.Migrate()
	database.SeedAdmin()

	processor := payments.NewStripeService()

	dispatcher := &services.Dispatcher{Calendar: calendar.NewHTTPService()}
	if mailer := notifications.NewBrevoService(); mailer != nil {
		dispatcher.Mail = mailer
	}

	wallets := services.NewWalletService(database.DB)
	bookings := services.NewBookingService(database.DB, wallets, processor, dispatcher)
	payouts := services.NewPayoutService(database.DB, wallets, processor, dispatcher)
	cancellations := services.NewCancellationService(database.DB, wallets, processor, dispatcher)

	c := cron.New()
	c.AddFunc("0 9 * * *", jobs.SendOnboardingReminders(processor, dispatcher.Mail))
	go c.Start()
	log.Println("✅ Cron job for onboarding reminders scheduled successfully.")

	app := fiber.New(fiber.Config{
		Prefork:           false,
		AppName:           "Mentor Marketplace",
		CaseSensitive:     true,
		StrictRouting:     true,
		EnablePrintRoutes: true,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Printf("[ERROR] %v | Path: %s | Method: %s", err, c.Path(), c.Method())
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Stripe-Signature",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": "Welcome to Mentor Marketplace API",
		})
	})

	routes.AuthRoutes(app)
	routes.BookingRoutes(app, bookings)
	routes.MentorRoutes(app, bookings, wallets, payouts)
	routes.ActionRoutes(app, cancellations)
	routes.WebhookRoutes(app, bookings, payouts)
	routes.AdminRoutes(app, wallets)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	log.Println("✅ Server is running on port 8080")
	err := app.Listen(":8080")
	if err != nil {
		log.Fatalf("🔥 Server failed to start: %v", err)
	}
}
