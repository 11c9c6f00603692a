package gifts

import (
	"context"
	"time"

	"giftsplit-backend/internal/domain"
	"giftsplit-backend/internal/pkg/apperr"
	"giftsplit-backend/internal/pkg/logctx"
	"giftsplit-backend/internal/pkg/money"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	assignmentReadAttempts = 5
	assignmentReadBackoff  = 50 * time.Millisecond
)

// LockResult is the frozen participant set of a locked gift.
type LockResult struct {
	Gift domain.Gift
	// Invitees are the eligible participants in creation order, all with amounts.
	Invitees []domain.Invitee
	// Assigned is true only for the caller whose conditional update locked the gift.
	Assigned bool
}

// LockAndAssign freezes the gift and assigns every eligible participant an
// even share of the total. The null to timestamp transition of
// split_locked_at decides which caller assigns; everyone else reads.
func (s *Service) LockAndAssign(ctx context.Context, giftID string) (*LockResult, error) {
	var id uuid.UUID
	assigned := false

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		gift, err := findGiftForUpdate(tx, giftID)
		if err != nil {
			return err
		}
		id = gift.ID

		eligible, err := eligibleInvitees(tx, gift.ID)
		if err != nil {
			return err
		}
		if len(eligible) == 0 {
			return apperr.Conflict("No invitees to split with")
		}
		if gift.Locked() {
			return nil
		}

		res := tx.Model(&domain.Gift{}).
			Where("id = ? AND split_locked_at IS NULL", gift.ID).
			Update("split_locked_at", s.now())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		shares, err := money.Split(gift.TotalPriceCents, len(eligible))
		if err != nil {
			return err
		}
		for i := range eligible {
			if err := tx.Model(&domain.Invitee{}).
				Where("id = ? AND amount_cents IS NULL", eligible[i].ID).
				Update("amount_cents", shares[i]).Error; err != nil {
				return err
			}
		}
		assigned = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if assigned {
		logctx.From(ctx).Info().Str("gift_id", id.String()).Msg("Gift locked and amounts assigned")
	}

	for attempt := 1; ; attempt++ {
		var gift domain.Gift
		if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&gift).Error; err != nil {
			return nil, err
		}
		invitees, err := eligibleInvitees(s.DB.WithContext(ctx), id)
		if err != nil {
			return nil, err
		}
		if allAssigned(invitees) {
			return &LockResult{Gift: gift, Invitees: invitees, Assigned: assigned}, nil
		}
		if attempt >= assignmentReadAttempts {
			return nil, apperr.Integrity("Invitee amount missing after lock")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(assignmentReadBackoff):
		}
	}
}

func eligibleInvitees(db *gorm.DB, giftID uuid.UUID) ([]domain.Invitee, error) {
	var invitees []domain.Invitee
	err := db.Where("gift_id = ? AND status NOT IN ?", giftID, domain.ExcludedFromSplit).
		Order("created_at ASC, id ASC").
		Find(&invitees).Error
	return invitees, err
}

func allAssigned(invitees []domain.Invitee) bool {
	for i := range invitees {
		if invitees[i].AmountCents == nil {
			return false
		}
	}
	return true
}
