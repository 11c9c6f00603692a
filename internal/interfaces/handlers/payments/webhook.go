package payments

import (
	"fmt"

	paysvc "giftsplit-backend/internal/application/payments"
	"giftsplit-backend/internal/pkg/apperr"
	"giftsplit-backend/internal/pkg/logctx"

	"github.com/gofiber/fiber/v2"
)

type WebhookHandler struct {
	Reconciler *paysvc.Reconciler
}

// HandleWebhook POST /api/stripe/webhook: raw body, signature verification, then reconcile.
// Anything other than a rejected signature answers 5xx so Stripe redelivers.
func (wh *WebhookHandler) HandleWebhook(c *fiber.Ctx) error {
	rawBody := c.BodyRaw()
	// Stripe sends "Stripe-Signature"; Fiber's Get is case-insensitive
	sig := c.Get("Stripe-Signature")

	if len(rawBody) == 0 {
		logctx.From(c.UserContext()).Warn().Msg("Stripe webhook received empty body (ensure no global body parser consumes the webhook body)")
		return c.Status(fiber.StatusBadRequest).SendString("Webhook Error: empty body")
	}

	// Copy: fasthttp reuses the request buffer once the handler returns.
	payload := append([]byte(nil), rawBody...)
	outcome, err := wh.Reconciler.HandleDelivery(c.UserContext(), payload, sig)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindAuthentication, apperr.KindValidation:
			logctx.From(c.UserContext()).Warn().Err(err).Bool("has_sig", sig != "").Msg("Stripe webhook rejected")
			return c.Status(fiber.StatusBadRequest).SendString(fmt.Sprintf("Webhook Error: %s", apperr.PublicMessage(err)))
		default:
			logctx.From(c.UserContext()).Error().Err(err).Msg("Stripe webhook processing failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"received": false,
				"error":    apperr.PublicMessage(err),
			})
		}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "outcome": outcome})
}
