package gifts

import (
	"context"
	"errors"
	"time"

	"giftsplit-backend/internal/domain"
	"giftsplit-backend/internal/infrastructure/database"
	"giftsplit-backend/internal/pkg/apperr"
	"giftsplit-backend/internal/pkg/logctx"
	"giftsplit-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// tokenAttempts bounds retries on token collisions. Repeated collisions at
// 24 random bytes mean the generator or the store is broken.
const tokenAttempts = 3

type CreateLinkInput struct {
	ExpiresAt     *time.Time `json:"expiresAt"`
	ExpiresInDays *int       `json:"expiresInDays" validate:"omitempty,min=1,max=365"`
}

// CreateLink issues a new invitation link for the gift.
func (s *Service) CreateLink(ctx context.Context, giftID string, in CreateLinkInput) (*domain.InvitationLink, error) {
	if in.ExpiresAt != nil && in.ExpiresInDays != nil {
		return nil, apperr.Validation("Provide either expiresAt or expiresInDays, not both")
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	gift, err := findGift(s.DB.WithContext(ctx), giftID)
	if err != nil {
		return nil, err
	}

	var expiresAt time.Time
	if in.ExpiresAt != nil {
		expiresAt = in.ExpiresAt.UTC()
	} else {
		days := 7
		if in.ExpiresInDays != nil {
			days = *in.ExpiresInDays
		}
		expiresAt = s.now().AddDate(0, 0, days)
	}
	return s.issueLink(ctx, gift.ID, &expiresAt)
}

func (s *Service) issueLink(ctx context.Context, giftID uuid.UUID, expiresAt *time.Time) (*domain.InvitationLink, error) {
	for attempt := 1; attempt <= tokenAttempts; attempt++ {
		tok, err := s.newToken()
		if err != nil {
			return nil, err
		}
		link := &domain.InvitationLink{
			GiftID:    giftID,
			Token:     tok,
			CreatedAt: s.now(),
			ExpiresAt: expiresAt,
		}
		err = s.DB.WithContext(ctx).Create(link).Error
		if err == nil {
			return link, nil
		}
		if !database.IsUniqueViolation(err) {
			return nil, err
		}
		logctx.From(ctx).Warn().Int("attempt", attempt).Str("gift_id", giftID.String()).Msg("Invitation token collision")
	}
	return nil, apperr.New(apperr.KindInternal, "Failed to generate unique invitation token", nil)
}

// LatestActiveLink returns the newest link that is neither revoked nor expired.
func (s *Service) LatestActiveLink(ctx context.Context, giftID string) (*domain.InvitationLink, error) {
	gift, err := findGift(s.DB.WithContext(ctx), giftID)
	if err != nil {
		return nil, err
	}
	var link domain.InvitationLink
	err = s.DB.WithContext(ctx).
		Where("gift_id = ? AND revoked_at IS NULL AND (expires_at IS NULL OR expires_at > ?)", gift.ID, s.now()).
		Order("created_at DESC").
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("No active invitation link found")
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// RevokeLink stamps revoked_at once; revoking twice keeps the first stamp.
func (s *Service) RevokeLink(ctx context.Context, giftID, linkID string) (*domain.InvitationLink, error) {
	gift, err := findGift(s.DB.WithContext(ctx), giftID)
	if err != nil {
		return nil, err
	}
	id, err := parseID(linkID, "Invitation link not found")
	if err != nil {
		return nil, err
	}
	var link domain.InvitationLink
	if err := s.DB.WithContext(ctx).Where("id = ? AND gift_id = ?", id, gift.ID).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Invitation link not found")
		}
		return nil, err
	}
	if link.Revoked() {
		return &link, nil
	}
	now := s.now()
	if err := s.DB.WithContext(ctx).Model(&link).
		Where("revoked_at IS NULL").
		Update("revoked_at", now).Error; err != nil {
		return nil, err
	}
	link.RevokedAt = &now
	return &link, nil
}
