package payments

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	paysvc "giftsplit-backend/internal/application/payments"
	"giftsplit-backend/internal/domain"
	"giftsplit-backend/internal/infrastructure/database"
	"giftsplit-backend/internal/infrastructure/stripecheckout"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_handler_test"

func setupWebhookApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	wh := &WebhookHandler{Reconciler: &paysvc.Reconciler{
		DB:       db,
		Verifier: stripecheckout.New("", webhookSecret, ""),
	}}
	app := fiber.New()
	app.Post("/api/stripe/webhook", wh.HandleWebhook)
	return app, db
}

func seedSession(t *testing.T, db *gorm.DB, sessionID string) *domain.Invitee {
	t.Helper()
	now := time.Now().UTC()
	gift := &domain.Gift{Name: "Concert tickets", Currency: "usd", TotalPriceCents: 800, SplitLockedAt: &now, CreatedAt: now}
	require.NoError(t, db.Create(gift).Error)
	amount := int64(800)
	inv := &domain.Invitee{GiftID: gift.ID, Email: "jo@example.com", Status: domain.InviteeCheckoutCreated, AmountCents: &amount, CreatedAt: now}
	require.NoError(t, db.Create(inv).Error)
	require.NoError(t, db.Create(&domain.CheckoutSession{
		InviteeID: inv.ID, ProviderSessionID: sessionID, Status: domain.SessionCreated, CreatedAt: now,
	}).Error)
	return inv
}

func signed(payload []byte, secret string) string {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func completedEvent(t *testing.T, eventID, sessionID string) []byte {
	body, err := json.Marshal(map[string]interface{}{
		"id":     eventID,
		"object": "event",
		"type":   "checkout.session.completed",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":           sessionID,
				"object":       "checkout.session",
				"amount_total": 800,
			},
		},
	})
	require.NoError(t, err)
	return body
}

func post(t *testing.T, app *fiber.App, body []byte, sig string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/stripe/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set("Stripe-Signature", sig)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(raw)
}

func TestHandleWebhook_AppliesThenDeduplicates(t *testing.T) {
	app, db := setupWebhookApp(t)
	inv := seedSession(t, db, "cs_live_1")
	body := completedEvent(t, "evt_100", "cs_live_1")

	code, out := post(t, app, body, signed(body, webhookSecret))
	require.Equal(t, fiber.StatusOK, code, out)
	assert.JSONEq(t, `{"received":true,"outcome":"applied"}`, out)

	var got domain.Invitee
	require.NoError(t, db.First(&got, "id = ?", inv.ID).Error)
	assert.Equal(t, domain.InviteePaid, got.Status)

	code, out = post(t, app, body, signed(body, webhookSecret))
	require.Equal(t, fiber.StatusOK, code)
	assert.JSONEq(t, `{"received":true,"outcome":"duplicate"}`, out)
}

func TestHandleWebhook_EmptyBody(t *testing.T) {
	app, _ := setupWebhookApp(t)
	code, out := post(t, app, nil, "")
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, "Webhook Error: empty body", out)
}

func TestHandleWebhook_BadSignature(t *testing.T) {
	app, db := setupWebhookApp(t)
	seedSession(t, db, "cs_live_2")
	body := completedEvent(t, "evt_200", "cs_live_2")

	code, out := post(t, app, body, signed(body, "whsec_other"))
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Contains(t, out, "Webhook Error:")

	code, _ = post(t, app, body, "")
	assert.Equal(t, fiber.StatusBadRequest, code)

	var count int64
	db.Model(&domain.WebhookEvent{}).Count(&count)
	assert.Zero(t, count)
}

func TestHandleWebhook_UnknownSessionAsksForRedelivery(t *testing.T) {
	app, db := setupWebhookApp(t)
	body := completedEvent(t, "evt_300", "cs_nowhere")

	code, _ := post(t, app, body, signed(body, webhookSecret))
	assert.Equal(t, fiber.StatusInternalServerError, code)

	var count int64
	db.Model(&domain.WebhookEvent{}).Count(&count)
	assert.Zero(t, count)
}
