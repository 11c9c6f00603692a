package gifts

import (
	"context"
	"errors"
	"strings"
	"time"

	"giftsplit-backend/internal/domain"
	"giftsplit-backend/internal/infrastructure/database"
	"giftsplit-backend/internal/pkg/apperr"
	"giftsplit-backend/internal/pkg/logctx"
	"giftsplit-backend/internal/pkg/money"
	"giftsplit-backend/internal/pkg/token"
	"giftsplit-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultCurrency   = "usd"
	defaultLinkExpiry = 7 * 24 * time.Hour
)

// Service owns gifts, their invitees and invitation links.
type Service struct {
	DB *gorm.DB
	// Now and NewToken default to UTC time.Now and token.New.
	Now      func() time.Time
	NewToken func() (string, error)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) newToken() (string, error) {
	if s.NewToken != nil {
		return s.NewToken()
	}
	return token.New()
}

type CreateGiftInput struct {
	Name            string `json:"name" validate:"required,max=120"`
	TotalPriceCents int64  `json:"totalPriceCents" validate:"gt=0,max=5000000"`
	Currency        string `json:"currency" validate:"omitempty,len=3"`
}

type CreatedGift struct {
	Gift *domain.Gift
	Link *domain.InvitationLink
}

// CreateGift stores the gift and issues its first invitation link. When the
// link cannot be issued the gift is still returned alongside the error.
func (s *Service) CreateGift(ctx context.Context, in CreateGiftInput) (*CreatedGift, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Currency = strings.ToLower(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = defaultCurrency
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	gift := &domain.Gift{
		Name:            in.Name,
		Currency:        in.Currency,
		TotalPriceCents: in.TotalPriceCents,
		CreatedAt:       s.now(),
	}
	if err := s.DB.WithContext(ctx).Create(gift).Error; err != nil {
		return nil, err
	}

	expiresAt := s.now().Add(defaultLinkExpiry)
	link, err := s.issueLink(ctx, gift.ID, &expiresAt)
	if err != nil {
		logctx.From(ctx).Error().Err(err).Str("gift_id", gift.ID.String()).Msg("Invitation link generation failed")
		return &CreatedGift{Gift: gift}, apperr.New(apperr.KindInternal, "Gift created, but failed to generate invitation link", err)
	}
	return &CreatedGift{Gift: gift, Link: link}, nil
}

// ListGifts returns every gift, newest first, with invitee tallies.
func (s *Service) ListGifts(ctx context.Context) ([]GiftListItem, error) {
	var gifts []domain.Gift
	if err := s.DB.WithContext(ctx).Order("created_at DESC").Find(&gifts).Error; err != nil {
		return nil, err
	}
	items := make([]GiftListItem, 0, len(gifts))
	if len(gifts) == 0 {
		return items, nil
	}

	ids := make([]uuid.UUID, len(gifts))
	for i, g := range gifts {
		ids[i] = g.ID
	}
	var invitees []domain.Invitee
	if err := s.DB.WithContext(ctx).Where("gift_id IN ?", ids).Find(&invitees).Error; err != nil {
		return nil, err
	}
	byGift := make(map[uuid.UUID][]domain.Invitee, len(gifts))
	for _, inv := range invitees {
		byGift[inv.GiftID] = append(byGift[inv.GiftID], inv)
	}

	for _, g := range gifts {
		counts, amounts := tally(byGift[g.ID])
		items = append(items, GiftListItem{Gift: g, Counts: counts, Amounts: amounts})
	}
	return items, nil
}

// GetGift returns the gift, its invitees in creation order and a summary.
func (s *Service) GetGift(ctx context.Context, giftID string) (*GiftDetail, error) {
	gift, err := findGift(s.DB.WithContext(ctx), giftID)
	if err != nil {
		return nil, err
	}
	var invitees []domain.Invitee
	if err := s.DB.WithContext(ctx).
		Where("gift_id = ?", gift.ID).
		Order("created_at ASC, id ASC").
		Find(&invitees).Error; err != nil {
		return nil, err
	}

	counts, amounts := tally(invitees)
	remaining := gift.TotalPriceCents - amounts.PaidTotalCents
	if remaining < 0 {
		remaining = 0
	}
	amounts.RemainingCents = &remaining

	var preview *int64
	eligible := 0
	for i := range invitees {
		if invitees[i].Eligible() {
			eligible++
		}
	}
	if eligible > 0 {
		shares, err := money.Split(gift.TotalPriceCents, eligible)
		if err != nil {
			return nil, err
		}
		preview = &shares[0]
	}

	return &GiftDetail{
		Gift:     *gift,
		Summary:  Summary{Counts: counts, Amounts: amounts, PerPersonPreviewCents: preview},
		Invitees: invitees,
	}, nil
}

type AddInviteesInput struct {
	Emails []string `json:"emails" validate:"required,min=1,max=100,dive,required,email"`
}

// AddInvitees adds organizer-entered invitees. Rejected once the gift is locked.
func (s *Service) AddInvitees(ctx context.Context, giftID string, in AddInviteesInput) ([]domain.Invitee, error) {
	for i := range in.Emails {
		in.Emails[i] = validation.NormalizeEmail(in.Emails[i])
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(in.Emails))
	var emails []string
	for _, e := range in.Emails {
		if !seen[e] {
			seen[e] = true
			emails = append(emails, e)
		}
	}

	var created []domain.Invitee
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		gift, err := findGiftForUpdate(tx, giftID)
		if err != nil {
			return err
		}
		if gift.Locked() {
			return apperr.Conflict("Gift is already locked; cannot add invitees")
		}

		// Creation time is the assignment order, so keep it strictly increasing.
		base := s.now()
		rows := make([]domain.Invitee, len(emails))
		for i, e := range emails {
			rows[i] = domain.Invitee{
				GiftID:    gift.ID,
				Email:     e,
				Status:    domain.InviteeInvited,
				CreatedAt: base.Add(time.Duration(i) * time.Microsecond),
			}
		}
		if err := tx.Create(&rows).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return apperr.Conflict("Invitee already exists for this gift")
			}
			return err
		}
		created = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func parseID(id, notFound string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, apperr.NotFound(notFound)
	}
	return parsed, nil
}

func findGift(db *gorm.DB, giftID string) (*domain.Gift, error) {
	id, err := parseID(giftID, "Gift not found")
	if err != nil {
		return nil, err
	}
	var gift domain.Gift
	if err := db.Where("id = ?", id).First(&gift).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Gift not found")
		}
		return nil, err
	}
	return &gift, nil
}

// findGiftForUpdate serializes writers of one gift's participant set.
func findGiftForUpdate(tx *gorm.DB, giftID string) (*domain.Gift, error) {
	return findGift(tx.Clauses(clause.Locking{Strength: "UPDATE"}), giftID)
}
