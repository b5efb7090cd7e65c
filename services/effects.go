package services

import (
	"log"

	"github.com/edmondmuhia/mentor_marketplace/calendar"
	"github.com/edmondmuhia/mentor_marketplace/notifications"
)

// SideEffect is a notification or calendar action produced by a financial
// state transition. Transitions commit first, then their effects are
// dispatched; a failed effect is logged and never rolls back the transition.
type SideEffect interface {
	perform(d *Dispatcher)
}

type emailEffect struct {
	ToName  string
	ToEmail string
	Subject string
	HTML    string
}

func (e emailEffect) perform(d *Dispatcher) {
	if d.Mail == nil {
		log.Println("Email client not initialized, skipping email send.")
		return
	}
	if err := d.Mail.Send(e.ToName, e.ToEmail, e.Subject, e.HTML); err != nil {
		log.Printf("🔥 Failed to send email to %s: %v", e.ToEmail, err)
		return
	}
	log.Printf("✅ Email sent successfully to %s", e.ToEmail)
}

type calendarDeleteEffect struct {
	EventID string
}

func (e calendarDeleteEffect) perform(d *Dispatcher) {
	if d.Calendar == nil || e.EventID == "" {
		return
	}
	if err := d.Calendar.DeleteMeetingEvent(e.EventID); err != nil {
		log.Printf("Failed to delete calendar event %s: %v", e.EventID, err)
	}
}

// Dispatcher performs side effects against the email and calendar
// collaborators.
type Dispatcher struct {
	Mail     notifications.Sender
	Calendar calendar.Service
}

func (d *Dispatcher) Dispatch(effects []SideEffect) {
	for _, e := range effects {
		e.perform(d)
	}
}
