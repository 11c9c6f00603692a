package checkout

import (
	"context"
	"errors"
	"time"

	"giftsplit-backend/internal/domain"
	"giftsplit-backend/internal/pkg/apperr"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository maps invitees to their provider checkout sessions.
type Repository struct {
	DB *gorm.DB
}

// LatestForInvitee returns the invitee's most recent session, or nil.
func (r *Repository) LatestForInvitee(ctx context.Context, inviteeID uuid.UUID) (*domain.CheckoutSession, error) {
	var sess domain.CheckoutSession
	err := r.DB.WithContext(ctx).
		Where("invitee_id = ?", inviteeID).
		Order("created_at DESC, id DESC").
		First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Invitee re-reads the current invitee row.
func (r *Repository) Invitee(ctx context.Context, inviteeID uuid.UUID) (*domain.Invitee, error) {
	var inv domain.Invitee
	err := r.DB.WithContext(ctx).Where("id = ?", inviteeID).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Invitee not found")
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// CreateForInvitee records a fresh "created" session and moves the invitee
// to checkout_created in one transaction. A second live session for the same
// invitee fails with a unique violation.
func (r *Repository) CreateForInvitee(ctx context.Context, inviteeID uuid.UUID, providerSessionID string) (*domain.CheckoutSession, error) {
	sess := &domain.CheckoutSession{
		InviteeID:         inviteeID,
		ProviderSessionID: providerSessionID,
		Status:            domain.SessionCreated,
		CreatedAt:         time.Now().UTC(),
	}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sess).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Invitee{}).
			Where("id = ? AND status IN ?", inviteeID, []string{domain.InviteeInvited, domain.InviteeAccepted}).
			Update("status", domain.InviteeCheckoutCreated).Error
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// FindByProviderSessionID looks a session up by the provider's id.
func (r *Repository) FindByProviderSessionID(ctx context.Context, providerSessionID string) (*domain.CheckoutSession, error) {
	var sess domain.CheckoutSession
	err := r.DB.WithContext(ctx).Where("provider_session_id = ?", providerSessionID).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Unknown sessionId")
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

type SessionInvitee struct {
	ID          uuid.UUID  `json:"id"`
	GiftID      uuid.UUID  `json:"giftId"`
	Email       string     `json:"email"`
	Status      string     `json:"status"`
	AmountCents *int64     `json:"amountCents"`
	CreatedAt   time.Time  `json:"createdAt"`
	PaidAt      *time.Time `json:"paidAt"`
}

// SessionStatus is the persisted view of a checkout, used by the pay/success page.
type SessionStatus struct {
	SessionID        string          `json:"sessionId"`
	Status           string          `json:"status"`
	AmountTotalCents *int64          `json:"amountTotalCents"`
	CreatedAt        time.Time       `json:"createdAt"`
	PaidAt           *time.Time      `json:"paidAt"`
	Invitee          *SessionInvitee `json:"invitee"`
}

// Status reads the session and, when it still resolves, its invitee.
func (r *Repository) Status(ctx context.Context, providerSessionID string) (*SessionStatus, error) {
	sess, err := r.FindByProviderSessionID(ctx, providerSessionID)
	if err != nil {
		return nil, err
	}
	out := &SessionStatus{
		SessionID:        sess.ProviderSessionID,
		Status:           sess.Status,
		AmountTotalCents: sess.AmountTotalCents,
		CreatedAt:        sess.CreatedAt,
		PaidAt:           sess.PaidAt,
	}
	var inv domain.Invitee
	if err := r.DB.WithContext(ctx).Where("id = ?", sess.InviteeID).First(&inv).Error; err == nil {
		out.Invitee = &SessionInvitee{
			ID:          inv.ID,
			GiftID:      inv.GiftID,
			Email:       inv.Email,
			Status:      inv.Status,
			AmountCents: inv.AmountCents,
			CreatedAt:   inv.CreatedAt,
			PaidAt:      inv.PaidAt,
		}
	}
	return out, nil
}
