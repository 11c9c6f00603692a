package gifts

import "giftsplit-backend/internal/domain"

type Counts struct {
	Invited         int `json:"invited"`
	Accepted        int `json:"accepted"`
	Declined        int `json:"declined"`
	CheckoutCreated int `json:"checkoutCreated"`
	Paid            int `json:"paid"`
}

type Amounts struct {
	AssignedTotalCents int64  `json:"assignedTotalCents"`
	PaidTotalCents     int64  `json:"paidTotalCents"`
	RemainingCents     *int64 `json:"remainingCents,omitempty"`
}

type GiftListItem struct {
	domain.Gift
	Counts  Counts  `json:"counts"`
	Amounts Amounts `json:"amounts"`
}

type Summary struct {
	Counts                Counts  `json:"counts"`
	Amounts               Amounts `json:"amounts"`
	PerPersonPreviewCents *int64  `json:"perPersonPreviewCents"`
}

type GiftDetail struct {
	Gift     domain.Gift      `json:"gift"`
	Summary  Summary          `json:"summary"`
	Invitees []domain.Invitee `json:"invitees"`
}

func tally(invitees []domain.Invitee) (Counts, Amounts) {
	var c Counts
	var a Amounts
	for _, inv := range invitees {
		switch inv.Status {
		case domain.InviteeInvited:
			c.Invited++
		case domain.InviteeAccepted:
			c.Accepted++
		case domain.InviteeDeclined:
			c.Declined++
		case domain.InviteeCheckoutCreated:
			c.CheckoutCreated++
		case domain.InviteePaid:
			c.Paid++
		}
		if inv.AmountCents == nil {
			continue
		}
		a.AssignedTotalCents += *inv.AmountCents
		if inv.Status == domain.InviteePaid {
			a.PaidTotalCents += *inv.AmountCents
		}
	}
	return c, a
}
