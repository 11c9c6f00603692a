package emails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"giftsplit-backend/internal/pkg/money"
)

const brevoAPI = "https://api.brevo.com/v3/smtp/email"

// defaultHTTPClient serves every BrevoClient without its own Client.
var defaultHTTPClient = &http.Client{Timeout: 15 * time.Second}

// BrevoSendRequest matches Brevo API v3 send transactional email body.
type BrevoSendRequest struct {
	Sender      BrevoSender `json:"sender"`
	To          []BrevoTo   `json:"to"`
	Subject     string      `json:"subject"`
	HTMLContent string      `json:"htmlContent"`
}

type BrevoSender struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type BrevoTo struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Message is one outbound notification.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers notifications. A nil Sender means notifications are off.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// BrevoClient sends emails via Brevo (Sendinblue). Empty APIKey = no-op.
// Send never mutates the client, so one value is safe to share.
type BrevoClient struct {
	APIKey   string
	MailFrom string
	Endpoint string
	Client   *http.Client
}

// NewBrevoClient returns a client with its own HTTP client.
func NewBrevoClient(apiKey, mailFrom string) *BrevoClient {
	return &BrevoClient{
		APIKey:   apiKey,
		MailFrom: mailFrom,
		Client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *BrevoClient) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return defaultHTTPClient
}

func (c *BrevoClient) from() string {
	if c.MailFrom != "" {
		return c.MailFrom
	}
	return "noreply@giftsplit.app"
}

func (c *BrevoClient) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return brevoAPI
}

// Send posts one email to Brevo.
func (c *BrevoClient) Send(ctx context.Context, msg Message) error {
	if c.APIKey == "" {
		return nil
	}
	body := BrevoSendRequest{
		Sender:      BrevoSender{Email: c.from(), Name: "Gift Split"},
		To:          []BrevoTo{{Email: msg.To}},
		Subject:     msg.Subject,
		HTMLContent: msg.HTML,
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("brevo send failed: status %d", resp.StatusCode)
	}
	return nil
}

// PaymentRequest builds the "chip in" email carrying a participant's checkout link.
func PaymentRequest(to, giftName string, amountCents int64, currency, checkoutURL string) Message {
	content := fmt.Sprintf(`
    <h2>Chip in for: %s</h2>
    <p>Amount: <strong>%s</strong></p>
    <p><a href="%s" class="pay-button">Pay now</a></p>
`, EscapeHTML(giftName), EscapeHTML(money.Format(amountCents, currency)), EscapeHTML(checkoutURL))
	return Message{
		To:      to,
		Subject: "Chip in: " + giftName,
		HTML:    EmailLayout(content),
	}
}
