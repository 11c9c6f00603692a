package gifts

import (
	"context"
	"errors"
	"strings"
	"time"

	"giftsplit-backend/internal/domain"
	"giftsplit-backend/internal/pkg/apperr"
	"giftsplit-backend/internal/pkg/validation"

	"gorm.io/gorm"
)

const (
	DecisionYes = "yes"
	DecisionNo  = "no"
)

type JoinGift struct {
	domain.Gift
	InviteeCount int64 `json:"inviteeCount"`
}

// JoinPreview is what a guest sees when opening an invitation link.
type JoinPreview struct {
	Token     string     `json:"token"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt"`
	Gift      JoinGift   `json:"gift"`
}

type InviteeStatus struct {
	Exists  bool            `json:"exists"`
	Invitee *domain.Invitee `json:"invitee,omitempty"`
}

type RespondInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"max=40"`
	Decision string `json:"decision" validate:"required,oneof=yes no"`
}

// Preview resolves an active link to its gift.
func (s *Service) Preview(ctx context.Context, tok string) (*JoinPreview, error) {
	db := s.DB.WithContext(ctx)
	link, err := s.activeLink(db, tok)
	if err != nil {
		return nil, err
	}
	gift, err := findGift(db, link.GiftID.String())
	if err != nil {
		return nil, err
	}
	var count int64
	if err := db.Model(&domain.Invitee{}).Where("gift_id = ?", gift.ID).Count(&count).Error; err != nil {
		return nil, err
	}
	return &JoinPreview{
		Token:     link.Token,
		CreatedAt: link.CreatedAt,
		ExpiresAt: link.ExpiresAt,
		Gift:      JoinGift{Gift: *gift, InviteeCount: count},
	}, nil
}

// InviteeStatus tells a guest whether their email already has a record.
func (s *Service) InviteeStatus(ctx context.Context, tok, email string) (*InviteeStatus, error) {
	email = validation.NormalizeEmail(email)
	if !validation.IsValidEmail(email) {
		return nil, apperr.Validation("email must be a valid email")
	}
	db := s.DB.WithContext(ctx)
	link, err := s.activeLink(db, tok)
	if err != nil {
		return nil, err
	}
	var inv domain.Invitee
	err = db.Where("gift_id = ? AND email = ?", link.GiftID, email).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &InviteeStatus{Exists: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &InviteeStatus{Exists: true, Invitee: &inv}, nil
}

// Respond records a guest's yes/no. The first decision is final: repeating
// it updates name and phone, changing it is a conflict. An organizer-entered
// invite that was never answered may go either way once.
func (s *Service) Respond(ctx context.Context, tok string, in RespondInput) (*domain.Invitee, bool, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = validation.NormalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Decision = strings.ToLower(strings.TrimSpace(in.Decision))
	if err := validation.Struct(in); err != nil {
		return nil, false, err
	}
	status := domain.InviteeAccepted
	if in.Decision == DecisionNo {
		status = domain.InviteeDeclined
	}

	var result domain.Invitee
	created := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		link, err := s.activeLink(tx, tok)
		if err != nil {
			return err
		}
		gift, err := findGiftForUpdate(tx, link.GiftID.String())
		if err != nil {
			return err
		}
		if gift.Locked() {
			return apperr.Conflict("Gift is already locked and cannot accept new joins")
		}

		var existing domain.Invitee
		err = tx.Where("gift_id = ? AND email = ?", gift.ID, in.Email).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result = domain.Invitee{
				GiftID:    gift.ID,
				Name:      in.Name,
				Email:     in.Email,
				Phone:     in.Phone,
				Status:    status,
				CreatedAt: s.now(),
			}
			created = true
			return tx.Create(&result).Error
		}
		if err != nil {
			return err
		}

		if existing.Status != domain.InviteeInvited && existing.Status != status {
			return apperr.Conflict("You have already responded to this invitation")
		}
		if err := tx.Model(&existing).Updates(map[string]interface{}{
			"name":   in.Name,
			"phone":  in.Phone,
			"status": status,
		}).Error; err != nil {
			return err
		}
		existing.Name, existing.Phone, existing.Status = in.Name, in.Phone, status
		result = existing
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &result, created, nil
}

// activeLink resolves a token: unknown is not-found, revoked or expired is gone.
func (s *Service) activeLink(db *gorm.DB, tok string) (*domain.InvitationLink, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return nil, apperr.NotFound("Invitation link not found")
	}
	var link domain.InvitationLink
	if err := db.Where("token = ?", tok).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Invitation link not found")
		}
		return nil, err
	}
	if link.Revoked() {
		return nil, apperr.Gone("Invitation link has been revoked")
	}
	if link.Expired(s.now()) {
		return nil, apperr.Gone("Invitation link has expired")
	}
	return &link, nil
}
