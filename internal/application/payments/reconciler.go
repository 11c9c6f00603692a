package payments

import (
	"context"
	"errors"
	"time"

	"giftsplit-backend/internal/application/provider"
	"giftsplit-backend/internal/domain"
	"giftsplit-backend/internal/infrastructure/database"
	"giftsplit-backend/internal/pkg/apperr"
	"giftsplit-backend/internal/pkg/logctx"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Outcome string

const (
	// OutcomeApplied: a completed checkout moved its session and invitee to paid.
	OutcomeApplied Outcome = "applied"
	// OutcomeRecorded: the event was ledgered; its type carries no state change.
	OutcomeRecorded Outcome = "recorded"
	// OutcomeDuplicate: the event id was already in the ledger.
	OutcomeDuplicate Outcome = "duplicate"
)

var errDuplicateEvent = errors.New("webhook event already recorded")

// Reconciler applies provider webhook events exactly once per event id.
type Reconciler struct {
	DB       *gorm.DB
	Verifier provider.EventVerifier
	Now      func() time.Time
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

// HandleDelivery authenticates a raw delivery and applies it. Unauthenticated
// deliveries never reach the ledger.
func (r *Reconciler) HandleDelivery(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	ev, err := r.Verifier.VerifyAndParseEvent(payload, signature)
	if err != nil {
		return "", err
	}
	return r.Apply(ctx, ev)
}

// Apply records the event id and, for completed checkouts, marks the session
// and its invitee paid. All three writes share one transaction so a failure
// leaves no ledger row and the provider's redelivery retries the event.
func (r *Reconciler) Apply(ctx context.Context, ev *provider.Event) (Outcome, error) {
	if ev == nil || ev.ID == "" {
		return "", apperr.Validation("Webhook event id missing")
	}
	now := r.now()
	outcome := OutcomeRecorded

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry := &domain.WebhookEvent{
			EventID:    ev.ID,
			Type:       ev.Type,
			Payload:    datatypes.JSON(ev.Raw),
			ReceivedAt: now,
		}
		if err := tx.Create(entry).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return errDuplicateEvent
			}
			return err
		}
		if ev.Type != provider.EventCheckoutCompleted {
			return nil
		}

		sess, err := markSessionPaid(tx, ev, now)
		if err != nil {
			return err
		}
		if err := markInviteePaid(tx, sess, now); err != nil {
			return err
		}
		outcome = OutcomeApplied
		return nil
	})
	if errors.Is(err, errDuplicateEvent) {
		logctx.From(ctx).Info().Str("event_id", ev.ID).Str("type", ev.Type).Msg("Webhook event already handled")
		return OutcomeDuplicate, nil
	}
	if err != nil {
		if apperr.Is(err, apperr.KindIntegrity) {
			logctx.From(ctx).Error().Err(err).Str("event_id", ev.ID).Str("session_id", ev.SessionID).Msg("Webhook reconciliation integrity fault")
		}
		return "", err
	}

	if err := r.DB.WithContext(ctx).Model(&domain.WebhookEvent{}).
		Where("event_id = ?", ev.ID).
		Update("handled_at", r.now()).Error; err != nil {
		logctx.From(ctx).Warn().Err(err).Str("event_id", ev.ID).Msg("Failed to mark webhook event handled")
	}
	if outcome == OutcomeApplied {
		logctx.From(ctx).Info().Str("event_id", ev.ID).Str("session_id", ev.SessionID).Msg("Checkout session paid")
	}
	return outcome, nil
}

func markSessionPaid(tx *gorm.DB, ev *provider.Event, now time.Time) (*domain.CheckoutSession, error) {
	if ev.SessionID == "" {
		return nil, apperr.Integrity("Completed checkout event has no session id")
	}
	var sess domain.CheckoutSession
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider_session_id = ?", ev.SessionID).
		First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Integrity("No checkout session matches the completed event")
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"status": domain.SessionPaid}
	if sess.PaidAt == nil {
		updates["paid_at"] = now
	}
	if ev.AmountTotal != nil {
		updates["amount_total_cents"] = *ev.AmountTotal
	}
	if ev.PaymentIntentID != "" {
		updates["payment_intent_id"] = ev.PaymentIntentID
	}
	if err := tx.Model(&sess).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &sess, nil
}

func markInviteePaid(tx *gorm.DB, sess *domain.CheckoutSession, now time.Time) error {
	var inv domain.Invitee
	err := tx.Where("id = ?", sess.InviteeID).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Integrity("Checkout session has no linked invitee")
	}
	if err != nil {
		return err
	}
	if inv.Status == domain.InviteePaid {
		return nil
	}
	return tx.Model(&inv).Updates(map[string]interface{}{
		"status":  domain.InviteePaid,
		"paid_at": now,
	}).Error
}
