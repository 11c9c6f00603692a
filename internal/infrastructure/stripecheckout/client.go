package stripecheckout

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"giftsplit-backend/internal/application/provider"
	"giftsplit-backend/internal/pkg/apperr"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Client adapts Stripe hosted Checkout to the provider contract.
// A per-client API handle keeps the secret key out of stripe's package globals.
type Client struct {
	API           *client.API
	WebhookSecret string
	AppBaseURL    string
}

// New returns a Client. With an empty secret key session calls fail with an
// upstream error, while webhook verification still works.
func New(secretKey, webhookSecret, appBaseURL string) *Client {
	c := &Client{WebhookSecret: webhookSecret, AppBaseURL: strings.TrimRight(appBaseURL, "/")}
	if secretKey != "" {
		c.API = client.New(secretKey, nil)
	}
	return c
}

var errNotConfigured = errors.New("STRIPE_SECRET_KEY is not set")

// CreateSession opens a one-line-item payment-mode Checkout Session.
func (c *Client) CreateSession(ctx context.Context, in provider.CreateSessionInput) (*provider.Session, error) {
	if c.API == nil {
		return nil, apperr.Upstream("Stripe integration pending", errNotConfigured)
	}
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:    stripe.String(c.AppBaseURL + "/pay/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:     stripe.String(c.AppBaseURL + "/pay/cancel"),
		CustomerEmail: stripe.String(in.Recipient),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(in.Currency),
					UnitAmount: stripe.Int64(in.AmountMinorUnits),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(in.Description),
					},
				},
			},
		},
	}
	params.Context = ctx
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := c.API.CheckoutSessions.New(params)
	if err != nil {
		return nil, apperr.Upstream("Failed to create checkout session", err)
	}
	return &provider.Session{ID: s.ID, URL: s.URL}, nil
}

// RetrieveSession re-reads a session to recover its hosted URL.
func (c *Client) RetrieveSession(ctx context.Context, sessionID string) (*provider.Session, error) {
	if c.API == nil {
		return nil, apperr.Upstream("Stripe integration pending", errNotConfigured)
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := c.API.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, apperr.Upstream("Failed to retrieve checkout session", err)
	}
	return &provider.Session{ID: s.ID, URL: s.URL}, nil
}

// VerifyAndParseEvent checks the Stripe-Signature header (HMAC-SHA256, 5 minute
// tolerance) and decodes the event. Any failure is an authentication fault.
func (c *Client) VerifyAndParseEvent(payload []byte, signatureHeader string) (*provider.Event, error) {
	if c.WebhookSecret == "" {
		return nil, apperr.Authentication("Missing STRIPE_WEBHOOK_SECRET", nil)
	}
	if signatureHeader == "" {
		return nil, apperr.Authentication("Missing Stripe-Signature", nil)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signatureHeader, c.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, apperr.Authentication("Webhook signature verification failed", err)
	}

	out := &provider.Event{ID: ev.ID, Type: string(ev.Type), Raw: payload}
	if out.Type != provider.EventCheckoutCompleted || ev.Data == nil {
		return out, nil
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return nil, apperr.Validation("Malformed checkout session payload")
	}
	out.SessionID = s.ID
	amount := s.AmountTotal
	out.AmountTotal = &amount
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	return out, nil
}
