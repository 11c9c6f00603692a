package emails

import (
	"fmt"
	"html"
	"time"
)

const (
	themePrimary   = "#111827"
	themeTextMain  = "#1F2937"
	themeTextMuted = "#6B7280"
	themeBgBody    = "#F3F4F6"
	themeWhite     = "#FFFFFF"
)

// EmailLayout wraps content in the shared transactional email shell.
func EmailLayout(contentHTML string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Gift Split</title>
  <style>
    body { margin: 0; padding: 0; background-color: %s; -webkit-font-smoothing: antialiased; }
    body, td, p, a { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; color: %s; }
    .content-body p { margin: 0 0 20px 0; font-size: 16px; line-height: 1.6; }
    .content-body h2 { font-size: 20px; margin: 0 0 16px 0; }
    .pay-button { display: inline-block; padding: 12px 16px; border-radius: 10px; background: %s; color: #ffffff !important; text-decoration: none; font-weight: 600; }
    .footer-text { color: %s; font-size: 12px; }
  </style>
</head>
<body>
  <table role="presentation" width="100%%" cellspacing="0" cellpadding="0" style="background-color: %s;">
    <tr>
      <td align="center" style="padding: 32px 0;">
        <table role="presentation" width="560" cellspacing="0" cellpadding="0" style="background-color: %s; border-radius: 8px;">
          <tr><td class="content-body" style="padding: 32px 40px;">%s</td></tr>
          <tr><td align="center" style="padding: 0 40px 24px 40px;"><p class="footer-text">© %d Gift Split</p></td></tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`,
		themeBgBody, themeTextMain, themePrimary, themeTextMuted,
		themeBgBody, themeWhite, contentHTML, time.Now().Year())
}

// EscapeHTML escapes HTML specials for safe interpolation.
func EscapeHTML(s string) string {
	return html.EscapeString(s)
}
