package join

import (
	giftsvc "giftsplit-backend/internal/application/gifts"
	"giftsplit-backend/internal/pkg/apperr"
	"giftsplit-backend/internal/pkg/response"
	"giftsplit-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

// Handlers serves the public join flow reached through an invitation link.
type Handlers struct {
	Service *giftsvc.Service
}

// Preview GET /api/join/:token
func (h *Handlers) Preview(c *fiber.Ctx) error {
	preview, err := h.Service.Preview(c.UserContext(), c.Params("token"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Invitation retrieved", preview, nil)
}

// Invitee GET /api/join/:token/invitee?email=
func (h *Handlers) Invitee(c *fiber.Ctx) error {
	email := c.Query("email")
	if email == "" {
		return response.FromError(c, apperr.Validation("email is required"))
	}
	status, err := h.Service.InviteeStatus(c.UserContext(), c.Params("token"), email)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Invitee status retrieved", status, nil)
}

// Respond POST /api/join/:token/respond
func (h *Handlers) Respond(c *fiber.Ctx) error {
	var in giftsvc.RespondInput
	if err := validation.DecodeJSON(c.Body(), &in); err != nil {
		return response.FromError(c, err)
	}
	invitee, created, err := h.Service.Respond(c.UserContext(), c.Params("token"), in)
	if err != nil {
		return response.FromError(c, err)
	}
	if created {
		return response.SuccessCreated(c, "Response recorded", invitee, nil)
	}
	return response.Success(c, "Response updated", invitee, nil)
}
