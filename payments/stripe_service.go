package payments

import (
	"log"

	config "github.com/edmondmuhia/mentor_marketplace/configs"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/account"
	"github.com/stripe/stripe-go/v82/accountlink"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/transfer"
)

// PaymentIntent is the subset of the processor's payment-intent object the
// booking flow consumes.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
	AmountCents  int64
	Metadata     map[string]string
}

// Account is the subset of a Connect sub-account's state the payout flow
// consumes.
type Account struct {
	ID             string
	ChargesEnabled bool
	PayoutsEnabled bool
	CurrentlyDue   []string
}

// Processor is the payment-processor collaborator. The core services depend on
// this interface so tests can substitute fakes; StripeService is the one real
// implementation.
type Processor interface {
	CreatePaymentIntent(amountCents int64, metadata map[string]string) (*PaymentIntent, error)
	RetrievePaymentIntent(id string) (*PaymentIntent, error)
	CreateTransfer(amountCents int64, destinationAccountID string, metadata map[string]string, idempotencyKey string) (string, error)
	CreateRefund(paymentIntentID, reason string, metadata map[string]string) (string, error)
	CreateAccount(email string) (string, error)
	RetrieveAccount(accountID string) (*Account, error)
	CreateOnboardingLink(accountID, returnURL, refreshURL string) (string, error)
}

type StripeService struct{}

func NewStripeService() *StripeService {
	stripe.Key = config.Config("STRIPE_SECRET_KEY")
	if stripe.Key == "" {
		log.Println("⚠️ STRIPE_SECRET_KEY is not set, Stripe calls will fail")
	}
	return &StripeService{}
}

func (s *StripeService) CreatePaymentIntent(amountCents int64, metadata map[string]string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, err
	}
	return fromStripeIntent(pi), nil
}

func (s *StripeService) RetrievePaymentIntent(id string) (*PaymentIntent, error) {
	pi, err := paymentintent.Get(id, nil)
	if err != nil {
		return nil, err
	}
	return fromStripeIntent(pi), nil
}

func (s *StripeService) CreateTransfer(amountCents int64, destinationAccountID string, metadata map[string]string, idempotencyKey string) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		Destination: stripe.String(destinationAccountID),
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	params.SetIdempotencyKey(idempotencyKey)

	tr, err := transfer.New(params)
	if err != nil {
		return "", err
	}
	return tr.ID, nil
}

func (s *StripeService) CreateRefund(paymentIntentID, reason string, metadata map[string]string) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Reason:        stripe.String(reason),
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	r, err := refund.New(params)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

func (s *StripeService) CreateAccount(email string) (string, error) {
	params := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{
				Requested: stripe.Bool(true),
			},
		},
	}

	acct, err := account.New(params)
	if err != nil {
		return "", err
	}
	return acct.ID, nil
}

func (s *StripeService) RetrieveAccount(accountID string) (*Account, error) {
	acct, err := account.GetByID(accountID, nil)
	if err != nil {
		return nil, err
	}

	out := &Account{
		ID:             acct.ID,
		ChargesEnabled: acct.ChargesEnabled,
		PayoutsEnabled: acct.PayoutsEnabled,
	}
	if acct.Requirements != nil {
		out.CurrentlyDue = acct.Requirements.CurrentlyDue
	}
	return out, nil
}

func (s *StripeService) CreateOnboardingLink(accountID, returnURL, refreshURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		ReturnURL:  stripe.String(returnURL),
		RefreshURL: stripe.String(refreshURL),
		Type:       stripe.String("account_onboarding"),
	}

	link, err := accountlink.New(params)
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

func fromStripeIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	return &PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
		Metadata:     pi.Metadata,
	}
}
