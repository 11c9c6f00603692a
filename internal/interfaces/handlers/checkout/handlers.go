package checkout

import (
	checkoutsvc "giftsplit-backend/internal/application/checkout"
	"giftsplit-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// Handlers exposes checkout session lookups for the post-payment page.
type Handlers struct {
	Sessions *checkoutsvc.Repository
}

// Status GET /api/checkout-sessions/:sessionId/status
func (h *Handlers) Status(c *fiber.Ctx) error {
	status, err := h.Sessions.Status(c.UserContext(), c.Params("sessionId"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Checkout session retrieved", status, nil)
}
