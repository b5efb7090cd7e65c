package handlers

import (
	"encoding/json"
	"log"

	config "github.com/edmondmuhia/mentor_marketplace/configs"
	"github.com/edmondmuhia/mentor_marketplace/services"
	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// HandleStripeWebhook verifies the event signature and dispatches the events
// the settlement flows depend on. Errors after verification are logged but
// acknowledged with 200 so Stripe does not retry events we already handled.
func HandleStripeWebhook(bookings *services.BookingService, payouts *services.PayoutService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		event, err := webhook.ConstructEvent(c.Body(), c.Get("Stripe-Signature"), config.Config("STRIPE_WEBHOOK_SECRET"))
		if err != nil {
			log.Printf("⚠️ Webhook signature verification failed: %v", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid signature"})
		}

		switch event.Type {
		case "payment_intent.succeeded":
			var pi stripe.PaymentIntent
			if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
				log.Printf("🔥 Failed to parse payment_intent.succeeded payload: %v", err)
				break
			}
			if err := bookings.HandlePaymentSucceeded(pi.ID); err != nil {
				log.Printf("🔥 Failed to process payment %s: %v", pi.ID, err)
			}

		case "account.updated":
			var account stripe.Account
			if err := json.Unmarshal(event.Data.Raw, &account); err != nil {
				log.Printf("🔥 Failed to parse account.updated payload: %v", err)
				break
			}
			if err := payouts.HandleAccountUpdated(account.ID, account.PayoutsEnabled); err != nil {
				log.Printf("🔥 Failed to process account update %s: %v", account.ID, err)
			}

		case "payment_intent.payment_failed":
			var pi stripe.PaymentIntent
			if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
				log.Printf("🔥 Failed to parse payment_intent.payment_failed payload: %v", err)
				break
			}
			// No booking exists yet for a failed payment; nothing to unwind.
			log.Printf("Payment %s failed, no booking created", pi.ID)

		case "transfer.created":
			var transfer stripe.Transfer
			if err := json.Unmarshal(event.Data.Raw, &transfer); err != nil {
				log.Printf("🔥 Failed to parse transfer.created payload: %v", err)
				break
			}
			// The transfer was recorded when we created it; this confirms receipt.
			log.Printf("Transfer %s confirmed by processor", transfer.ID)

		case "transfer.reversed":
			var transfer stripe.Transfer
			if err := json.Unmarshal(event.Data.Raw, &transfer); err != nil {
				log.Printf("🔥 Failed to parse transfer.reversed payload: %v", err)
				break
			}
			if err := payouts.HandleTransferReversed(transfer.ID); err != nil {
				log.Printf("🔥 Failed to process transfer reversal %s: %v", transfer.ID, err)
			}

		default:
			// Unhandled event types are acknowledged without action.
		}

		return c.JSON(fiber.Map{"received": true})
	}
}
