package routes

import (
	"github.com/edmondmuhia/mentor_marketplace/handlers"
	"github.com/edmondmuhia/mentor_marketplace/services"
	"github.com/gofiber/fiber/v2"
)

// ActionRoutes are token-authorized: no JWT, the single-use emailed token in
// the path is the credential.
func ActionRoutes(app *fiber.App, cancellations *services.CancellationService) {
	api := app.Group("/api/v1")

	actions := api.Group("/actions")
	actions.Get("/cancel/:token", handlers.GetCancelContext(cancellations))
	actions.Post("/cancel/:token", handlers.ExecuteCancel(cancellations))
	actions.Get("/reschedule/:token", handlers.GetRescheduleContext(cancellations))
	actions.Post("/reschedule/:token", handlers.ExecuteReschedule(cancellations))
	actions.Get("/refund/:token", handlers.GetRefundContext(cancellations))
	actions.Post("/refund/:token", handlers.ExecuteRefund(cancellations))
}
