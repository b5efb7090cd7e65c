package jobs

import (
	"fmt"
	"log"
	"time"

	config "github.com/edmondmuhia/mentor_marketplace/configs"
	"github.com/edmondmuhia/mentor_marketplace/database"
	"github.com/edmondmuhia/mentor_marketplace/models"
	"github.com/edmondmuhia/mentor_marketplace/notifications"
	"github.com/edmondmuhia/mentor_marketplace/payments"
)

// SendOnboardingReminders nudges mentors whose payouts have been parked behind
// Stripe onboarding for more than a day, with a fresh onboarding link since
// the original one has long expired.
func SendOnboardingReminders(processor payments.Processor, mailer notifications.Sender) func() {
	return func() {
		log.Println("Running job: SendOnboardingReminders...")

		cutoff := time.Now().Add(-24 * time.Hour)

		var stalled []models.MentorPayout
		err := database.DB.
			Preload("Mentor").
			Where("status = ? AND updated_at < ?", models.PayoutRequiresOnboarding, cutoff).
			Find(&stalled).Error
		if err != nil {
			log.Printf("Error checking for stalled payouts: %v", err)
			return
		}

		if len(stalled) == 0 {
			return
		}

		base := config.AppBaseURL()
		for _, payout := range stalled {
			var mentor models.Mentor
			if err := database.DB.First(&mentor, "user_id = ?", payout.MentorID).Error; err != nil {
				log.Printf("Error loading mentor %s for payout reminder: %v", payout.MentorID, err)
				continue
			}
			if mentor.StripeAccountID == nil {
				continue
			}

			link, err := processor.CreateOnboardingLink(*mentor.StripeAccountID,
				fmt.Sprintf("%s/payouts/%s/return", base, payout.ID),
				fmt.Sprintf("%s/payouts/onboarding/refresh", base))
			if err != nil {
				log.Printf("Error creating onboarding link for mentor %s: %v", payout.MentorID, err)
				continue
			}

			if mailer != nil {
				emailBody := fmt.Sprintf(
					"<h1>Your Payout Is Waiting</h1><p>Your withdrawal is on hold until you finish verifying your payout account.</p><p><a href='%s'>Complete verification</a> to receive your money.</p>",
					link,
				)
				go mailer.Send(payout.Mentor.FullName, payout.Mentor.Email, "Finish Setting Up Your Payouts", emailBody)
			}
		}

		log.Printf("Sent %d onboarding reminder(s).", len(stalled))
	}
}
