package gifts

import (
	"strings"
	"time"

	"giftsplit-backend/internal/application/checkout"
	giftsvc "giftsplit-backend/internal/application/gifts"
	"giftsplit-backend/internal/domain"
	"giftsplit-backend/internal/pkg/apperr"
	"giftsplit-backend/internal/pkg/response"
	"giftsplit-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers bundles organizer-facing gift handlers with dependencies.
type Handlers struct {
	Service  *giftsvc.Service
	Checkout *checkout.Orchestrator
	// AppBaseURL prefixes shareable join URLs.
	AppBaseURL string
}

// LinkView is an invitation link plus its shareable join URL.
type LinkView struct {
	ID        uuid.UUID  `json:"id"`
	GiftID    uuid.UUID  `json:"giftId"`
	Token     string     `json:"token"`
	URL       string     `json:"url"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt"`
	RevokedAt *time.Time `json:"revokedAt"`
}

func (h *Handlers) linkView(l *domain.InvitationLink) *LinkView {
	if l == nil {
		return nil
	}
	return &LinkView{
		ID:        l.ID,
		GiftID:    l.GiftID,
		Token:     l.Token,
		URL:       strings.TrimRight(h.AppBaseURL, "/") + "/join/" + l.Token,
		CreatedAt: l.CreatedAt,
		ExpiresAt: l.ExpiresAt,
		RevokedAt: l.RevokedAt,
	}
}

// CreateGift POST /api/gifts
func (h *Handlers) CreateGift(c *fiber.Ctx) error {
	var in giftsvc.CreateGiftInput
	if err := validation.DecodeJSON(c.Body(), &in); err != nil {
		return response.FromError(c, err)
	}
	out, err := h.Service.CreateGift(c.UserContext(), in)
	if err != nil {
		if out != nil && out.Gift != nil {
			return response.Error(c, apperr.PublicMessage(err), fiber.StatusInternalServerError, fiber.Map{
				"gift": out.Gift,
			})
		}
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Gift created", fiber.Map{
		"gift":           out.Gift,
		"invitationLink": h.linkView(out.Link),
	}, nil)
}

// ListGifts GET /api/gifts
func (h *Handlers) ListGifts(c *fiber.Ctx) error {
	items, err := h.Service.ListGifts(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Gifts retrieved", items, fiber.Map{"count": len(items)})
}

// GetGift GET /api/gifts/:giftId
func (h *Handlers) GetGift(c *fiber.Ctx) error {
	detail, err := h.Service.GetGift(c.UserContext(), c.Params("giftId"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Gift retrieved", detail, nil)
}

// AddInvitees POST /api/gifts/:giftId/invitees
func (h *Handlers) AddInvitees(c *fiber.Ctx) error {
	var in giftsvc.AddInviteesInput
	if err := validation.DecodeJSON(c.Body(), &in); err != nil {
		return response.FromError(c, err)
	}
	invitees, err := h.Service.AddInvitees(c.UserContext(), c.Params("giftId"), in)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Invitees added", invitees, fiber.Map{"count": len(invitees)})
}

// CreateLink POST /api/gifts/:giftId/invitation-links
func (h *Handlers) CreateLink(c *fiber.Ctx) error {
	var in giftsvc.CreateLinkInput
	if err := validation.DecodeJSON(c.Body(), &in); err != nil {
		return response.FromError(c, err)
	}
	link, err := h.Service.CreateLink(c.UserContext(), c.Params("giftId"), in)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Invitation link created", h.linkView(link), nil)
}

// LatestLink GET /api/gifts/:giftId/invitation-links/latest
func (h *Handlers) LatestLink(c *fiber.Ctx) error {
	link, err := h.Service.LatestActiveLink(c.UserContext(), c.Params("giftId"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Invitation link retrieved", h.linkView(link), nil)
}

// RevokeLink DELETE /api/gifts/:giftId/invitation-links/:linkId
func (h *Handlers) RevokeLink(c *fiber.Ctx) error {
	link, err := h.Service.RevokeLink(c.UserContext(), c.Params("giftId"), c.Params("linkId"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Invitation link revoked", h.linkView(link), nil)
}

// LockAndSend POST /api/gifts/:giftId/lock-and-send
func (h *Handlers) LockAndSend(c *fiber.Ctx) error {
	results, err := h.Checkout.LockAndSend(c.UserContext(), c.Params("giftId"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Checkout links sent", results, fiber.Map{"count": len(results)})
}
