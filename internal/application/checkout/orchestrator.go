package checkout

import (
	"context"
	"errors"
	"time"

	"giftsplit-backend/internal/application/emails"
	"giftsplit-backend/internal/application/gifts"
	"giftsplit-backend/internal/application/provider"
	"giftsplit-backend/internal/domain"
	"giftsplit-backend/internal/infrastructure/cache"
	"giftsplit-backend/internal/infrastructure/database"
	"giftsplit-backend/internal/pkg/apperr"
	"giftsplit-backend/internal/pkg/logctx"
)

const defaultProviderTimeout = 15 * time.Second

// Locker serializes work on one key across instances.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// NoopLocker is used when Redis is not configured; the partial unique index
// on created sessions still keeps a single canonical session per invitee.
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

// Result is the outcome for one participant of a lock-and-send run.
type Result struct {
	Email             string `json:"email"`
	AmountCents       int64  `json:"amountCents"`
	ProviderSessionID string `json:"providerSessionId"`
	CheckoutURL       string `json:"checkoutUrl"`
	Reused            bool   `json:"reused"`
}

// Orchestrator makes sure every unpaid participant of a locked gift has
// exactly one live checkout session, and notifies only on fresh sessions.
type Orchestrator struct {
	Gifts    *gifts.Service
	Sessions *Repository
	Provider provider.Checkout
	// Sender may be nil; notifications are then skipped.
	Sender  emails.Sender
	Locker  Locker
	Timeout time.Duration
}

// LockAndSend locks the gift (assigning amounts once) and then creates or
// reuses a checkout session per unpaid participant. It stops at the first
// participant that fails; work already persisted for earlier participants
// stays, and calling again is safe.
func (o *Orchestrator) LockAndSend(ctx context.Context, giftID string) ([]Result, error) {
	locked, err := o.Gifts.LockAndAssign(ctx, giftID)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(locked.Invitees))
	for _, inv := range locked.Invitees {
		if inv.Status == domain.InviteePaid {
			continue
		}
		res, err := o.sendOne(ctx, &locked.Gift, inv)
		if err != nil {
			logctx.From(ctx).Error().Err(err).
				Str("gift_id", locked.Gift.ID.String()).
				Str("invitee_id", inv.ID.String()).
				Msg("Checkout orchestration failed")
			return nil, err
		}
		if res == nil {
			continue
		}
		results = append(results, *res)
	}
	return results, nil
}

// sendOne returns a nil Result when the participant turned out to be paid
// once its lock was held.
func (o *Orchestrator) sendOne(ctx context.Context, gift *domain.Gift, inv domain.Invitee) (*Result, error) {
	if inv.AmountCents == nil {
		return nil, apperr.Integrity("Invitee amount missing")
	}
	amount := *inv.AmountCents

	release, err := o.locker().Acquire(ctx, "invitee:"+inv.ID.String())
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return nil, apperr.Conflict("Checkout for this invitee is already in progress")
		}
		return nil, err
	}
	defer release()

	// The lock snapshot may predate a payment webhook.
	current, err := o.Sessions.Invitee(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.InviteePaid {
		return nil, nil
	}

	existing, err := o.Sessions.LatestForInvitee(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case domain.SessionCreated:
			return o.reuse(ctx, inv.Email, amount, existing.ProviderSessionID), nil
		case domain.SessionPaid:
			logctx.From(ctx).Warn().Str("invitee_id", inv.ID.String()).
				Str("session_id", existing.ProviderSessionID).
				Msg("Session already paid; no new checkout created")
			return nil, nil
		}
	}

	pctx, cancel := context.WithTimeout(ctx, o.timeout())
	session, err := o.Provider.CreateSession(pctx, provider.CreateSessionInput{
		Recipient:        inv.Email,
		AmountMinorUnits: amount,
		Currency:         gift.Currency,
		Description:      gift.Name,
		Metadata: map[string]string{
			"giftId":    gift.ID.String(),
			"inviteeId": inv.ID.String(),
		},
	})
	cancel()
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUpstream {
			return nil, err
		}
		return nil, apperr.Upstream("Payment provider request failed", err)
	}
	if session.URL == "" {
		return nil, apperr.Upstream("Stripe session URL missing", nil)
	}

	if _, err := o.Sessions.CreateForInvitee(ctx, inv.ID, session.ID); err != nil {
		if !database.IsUniqueViolation(err) {
			return nil, err
		}
		// Another instance stored a live session first; that one is canonical.
		canonical, ferr := o.Sessions.LatestForInvitee(ctx, inv.ID)
		if ferr != nil || canonical == nil || canonical.Status != domain.SessionCreated {
			return nil, err
		}
		logctx.From(ctx).Warn().Str("invitee_id", inv.ID.String()).
			Str("orphan_session_id", session.ID).
			Msg("Concurrent checkout session detected; reusing canonical session")
		return o.reuse(ctx, inv.Email, amount, canonical.ProviderSessionID), nil
	}

	o.notify(ctx, gift, inv.Email, amount, session.URL)
	return &Result{
		Email:             inv.Email,
		AmountCents:       amount,
		ProviderSessionID: session.ID,
		CheckoutURL:       session.URL,
		Reused:            false,
	}, nil
}

// reuse re-reads the live URL. A missing URL or a failed lookup degrades to "".
func (o *Orchestrator) reuse(ctx context.Context, email string, amount int64, providerSessionID string) *Result {
	url := ""
	pctx, cancel := context.WithTimeout(ctx, o.timeout())
	defer cancel()
	s, err := o.Provider.RetrieveSession(pctx, providerSessionID)
	if err != nil {
		logctx.From(ctx).Warn().Err(err).Str("session_id", providerSessionID).Msg("Checkout session retrieve failed")
	} else if s != nil {
		url = s.URL
	}
	return &Result{
		Email:             email,
		AmountCents:       amount,
		ProviderSessionID: providerSessionID,
		CheckoutURL:       url,
		Reused:            true,
	}
}

func (o *Orchestrator) notify(ctx context.Context, gift *domain.Gift, to string, amount int64, url string) {
	if o.Sender == nil {
		return
	}
	msg := emails.PaymentRequest(to, gift.Name, amount, gift.Currency, url)
	if err := o.Sender.Send(ctx, msg); err != nil {
		logctx.From(ctx).Warn().Err(err).Str("to", to).Str("gift_id", gift.ID.String()).Msg("Payment email failed")
	}
}

func (o *Orchestrator) locker() Locker {
	if o.Locker != nil {
		return o.Locker
	}
	return NoopLocker{}
}

func (o *Orchestrator) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return defaultProviderTimeout
}
