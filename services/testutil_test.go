package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/edmondmuhia/mentor_marketplace/calendar"
	"github.com/edmondmuhia/mentor_marketplace/models"
	"github.com/edmondmuhia/mentor_marketplace/payments"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Mentor{},
		&models.AvailabilityWindow{},
		&models.Booking{},
		&models.MentorWallet{},
		&models.MentorLedgerEntry{},
		&models.MentorPayout{},
	))
	return db
}

// fakeProcessor is an in-memory Processor with per-call failure switches.
type fakeProcessor struct {
	mu sync.Mutex

	payoutsEnabled bool
	failTransfer   bool
	failRefund     bool
	failAccount    bool

	intents      map[string]*payments.PaymentIntent
	transferSeq  int
	transferKeys []string
	refundedPIs  []string
	accountSeq   int
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		payoutsEnabled: true,
		intents:        map[string]*payments.PaymentIntent{},
	}
}

func (f *fakeProcessor) CreatePaymentIntent(amountCents int64, metadata map[string]string) (*payments.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pi := &payments.PaymentIntent{
		ID:           fmt.Sprintf("pi_%d", len(f.intents)+1),
		ClientSecret: "secret",
		Status:       "requires_payment_method",
		AmountCents:  amountCents,
		Metadata:     metadata,
	}
	f.intents[pi.ID] = pi
	return pi, nil
}

func (f *fakeProcessor) RetrievePaymentIntent(id string) (*payments.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pi, ok := f.intents[id]
	if !ok {
		return nil, fmt.Errorf("no such payment intent %s", id)
	}
	return pi, nil
}

func (f *fakeProcessor) markSucceeded(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[id].Status = "succeeded"
}

func (f *fakeProcessor) CreateTransfer(amountCents int64, destinationAccountID string, metadata map[string]string, idempotencyKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTransfer {
		return "", fmt.Errorf("transfer declined")
	}
	f.transferSeq++
	f.transferKeys = append(f.transferKeys, idempotencyKey)
	return fmt.Sprintf("tr_%d", f.transferSeq), nil
}

func (f *fakeProcessor) CreateRefund(paymentIntentID, reason string, metadata map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRefund {
		return "", fmt.Errorf("refund declined")
	}
	f.refundedPIs = append(f.refundedPIs, paymentIntentID)
	return "re_" + paymentIntentID, nil
}

func (f *fakeProcessor) CreateAccount(email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAccount {
		return "", fmt.Errorf("account creation failed")
	}
	f.accountSeq++
	return fmt.Sprintf("acct_%d", f.accountSeq), nil
}

func (f *fakeProcessor) RetrieveAccount(accountID string) (*payments.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAccount {
		return nil, fmt.Errorf("account lookup failed")
	}
	return &payments.Account{
		ID:             accountID,
		ChargesEnabled: f.payoutsEnabled,
		PayoutsEnabled: f.payoutsEnabled,
	}, nil
}

func (f *fakeProcessor) CreateOnboardingLink(accountID, returnURL, refreshURL string) (string, error) {
	return "https://connect.example.com/onboard/" + accountID, nil
}

type fakeCalendar struct {
	mu      sync.Mutex
	fail    bool
	created int
	deleted []string
}

func (f *fakeCalendar) CreateMeetingEvent(details calendar.EventDetails) (*calendar.MeetingEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, fmt.Errorf("calendar unavailable")
	}
	f.created++
	id := fmt.Sprintf("evt_%d", f.created)
	return &calendar.MeetingEvent{EventID: id, MeetingLink: "https://meet.example.com/" + id}, nil
}

func (f *fakeCalendar) DeleteMeetingEvent(eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, eventID)
	return nil
}

type sentMail struct {
	To      string
	Subject string
	HTML    string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (f *fakeMailer) Send(toName, toEmail, subject, htmlContent string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{To: toEmail, Subject: subject, HTML: htmlContent})
	return nil
}

// fixture bundles the services under test with their fakes and a movable
// clock.
type fixture struct {
	db        *gorm.DB
	processor *fakeProcessor
	cal       *fakeCalendar
	mail      *fakeMailer

	wallets       *WalletService
	bookings      *BookingService
	payouts       *PayoutService
	cancellations *CancellationService

	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	processor := newFakeProcessor()
	cal := &fakeCalendar{}
	mail := &fakeMailer{}
	dispatcher := &Dispatcher{Mail: mail, Calendar: cal}

	f := &fixture{
		db:        db,
		processor: processor,
		cal:       cal,
		mail:      mail,
		clock:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	f.wallets = NewWalletService(db)
	f.wallets.now = f.now

	f.bookings = NewBookingService(db, f.wallets, processor, dispatcher)
	f.bookings.now = f.now
	f.bookings.webhookRetries = 0
	f.bookings.webhookRetryDelay = 0

	f.payouts = NewPayoutService(db, f.wallets, processor, dispatcher)
	f.payouts.now = f.now

	f.cancellations = NewCancellationService(db, f.wallets, processor, dispatcher)
	f.cancellations.now = f.now

	return f
}

func (f *fixture) now() time.Time { return f.clock }

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

// newMentor creates a user plus mentor profile with a $100.00 session rate.
func (f *fixture) newMentor(t *testing.T) *models.Mentor {
	t.Helper()

	user := models.User{
		FullName: "Grace Wanjiru",
		Email:    fmt.Sprintf("mentor-%s@example.com", uuid.NewString()[:8]),
		Password: "hashed",
		Role:     "mentor",
	}
	require.NoError(t, f.db.Create(&user).Error)

	mentor := models.Mentor{
		UserID:           user.ID,
		Status:           "approved",
		SessionRateCents: 10000,
	}
	require.NoError(t, f.db.Create(&mentor).Error)
	mentor.User = user
	return &mentor
}

// paidBooking runs the full paid-booking flow (intent, payment, confirm) and
// returns the committed booking.
func (f *fixture) paidBooking(t *testing.T, mentor *models.Mentor, date, clock string) *models.Booking {
	t.Helper()

	pi, err := f.bookings.CreateSessionIntent(mentor.UserID, date, clock, "student@example.com", "Amina Yusuf")
	require.NoError(t, err)
	f.processor.markSucceeded(pi.ID)

	booking, err := f.bookings.ConfirmPaidBooking(pi.ID)
	require.NoError(t, err)
	return booking
}

func (f *fixture) reloadBooking(t *testing.T, id uuid.UUID) *models.Booking {
	t.Helper()
	var booking models.Booking
	require.NoError(t, f.db.First(&booking, "id = ?", id).Error)
	return &booking
}

func (f *fixture) ledger(t *testing.T, mentorID uuid.UUID) []models.MentorLedgerEntry {
	t.Helper()
	var entries []models.MentorLedgerEntry
	require.NoError(t, f.db.Where("mentor_id = ?", mentorID).Order("created_at asc, id asc").Find(&entries).Error)
	return entries
}

func (f *fixture) entryTypes(t *testing.T, mentorID uuid.UUID) []models.LedgerEntryType {
	t.Helper()
	entries := f.ledger(t, mentorID)
	types := make([]models.LedgerEntryType, 0, len(entries))
	for _, e := range entries {
		types = append(types, e.Type)
	}
	return types
}

// ledgerNetSum sums entries that change the wallet total, mirroring the
// reconciliation the admin drift endpoint performs.
func (f *fixture) ledgerNetSum(t *testing.T, mentorID uuid.UUID) int64 {
	t.Helper()
	var sum int64
	for _, e := range f.ledger(t, mentorID) {
		if e.Type.NetEffect() {
			sum += e.AmountCents
		}
	}
	return sum
}
