// Package provider describes the hosted-checkout payment provider the gift
// flow depends on. The Stripe adapter lives in internal/infrastructure/stripecheckout.
package provider

import "context"

// EventCheckoutCompleted is the only event type that moves money state.
const EventCheckoutCompleted = "checkout.session.completed"

type CreateSessionInput struct {
	Recipient        string
	AmountMinorUnits int64
	Currency         string
	Description      string
	Metadata         map[string]string
}

// Session is a provider-side checkout session. URL may be empty on retrieval.
type Session struct {
	ID  string
	URL string
}

// Event is a verified provider event. The completion fields are filled only
// for EventCheckoutCompleted.
type Event struct {
	ID              string
	Type            string
	SessionID       string
	AmountTotal     *int64
	PaymentIntentID string
	Raw             []byte
}

// Checkout creates and re-reads hosted checkout sessions.
type Checkout interface {
	CreateSession(ctx context.Context, in CreateSessionInput) (*Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (*Session, error)
}

// EventVerifier authenticates a raw webhook delivery against the shared secret.
type EventVerifier interface {
	VerifyAndParseEvent(payload []byte, signatureHeader string) (*Event, error)
}
