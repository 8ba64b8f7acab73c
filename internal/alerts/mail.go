package alerts

import (
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"

	"tellbot/internal/engine"
)

// formatMail renders one alert as a multipart/alternative mail and returns
// the envelope sender, envelope recipient, and message data.
func formatMail(cfg Config, a engine.Alert) (from, to string, data []byte, err error) {
	if strings.TrimSpace(cfg.From) == "" {
		return "", "", nil, fmt.Errorf("alerts: from address not configured")
	}
	from = cfg.EnvelopeFrom
	if from == "" {
		from, err = addrSpec(cfg.From)
		if err != nil {
			return "", "", nil, fmt.Errorf("alerts: bad from address: %w", err)
		}
	}
	to, err = addrSpec(a.Address)
	if err != nil {
		return "", "", nil, fmt.Errorf("alerts: bad recipient address: %w", err)
	}

	subject := fmt.Sprintf("New%s TellBot message (%d unread)",
		urgentTag(a.Message.Priority), a.Unread)
	if cfg.SubjectTag != "" {
		subject = fmt.Sprintf("[%s] %s", cfg.SubjectTag, subject)
	}

	msgFrom := "@" + a.Message.From.Display
	msgTo := a.Message.Reason
	boundary := strings.ReplaceAll(uuid.NewString(), "-", "")

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", cfg.From)
	fmt.Fprintf(&b, "To: %s\n", a.Address)
	fmt.Fprintf(&b, "Subject: %s\n", subject)
	b.WriteString("MIME-Version: 1.0\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\n", boundary)
	b.WriteString("\nThis is a multi-part MIME message.\n")

	fmt.Fprintf(&b, "\n--%s\nContent-Type: text/plain; charset=utf-8\n\n", boundary)
	fmt.Fprintf(&b, "You have a new unread TellBot message (%d total).\n\n", a.Unread)
	fmt.Fprintf(&b, "From: %s\nTo: %s\nPriority: %s\nText: %s\n",
		msgFrom, msgTo, a.Message.Priority, a.Message.Text)
	b.WriteString("\nReply to this email to unsubscribe.\n")

	fmt.Fprintf(&b, "\n--%s\nContent-Type: text/html; charset=utf-8\n\n", boundary)
	fmt.Fprintf(&b, "<!DOCTYPE html>\n<html>\n  <body>\n")
	fmt.Fprintf(&b, "    <p>You have a new unread TellBot message (%d total).</p>\n", a.Unread)
	b.WriteString("    <p><table border=0 cellpadding=0 cellspacing=0>\n")
	fmt.Fprintf(&b, "      <tr><th align=left>From:&nbsp;</th><td>%s</td></tr>\n", html.EscapeString(msgFrom))
	fmt.Fprintf(&b, "      <tr><th align=left>To:&nbsp;</th><td>%s</td></tr>\n", html.EscapeString(msgTo))
	fmt.Fprintf(&b, "      <tr><th align=left>Priority:&nbsp;</th><td>%s</td></tr>\n", html.EscapeString(string(a.Message.Priority)))
	fmt.Fprintf(&b, "      <tr><th align=left>Text:&nbsp;</th><td>%s</td></tr>\n",
		strings.ReplaceAll(html.EscapeString(a.Message.Text), "\n", "<br/>"))
	b.WriteString("    </table></p>\n")
	b.WriteString("    <p><small>Reply to this email to unsubscribe.</small></p>\n")
	b.WriteString("  </body>\n</html>\n")
	fmt.Fprintf(&b, "\n--%s--\n", boundary)

	return from, to, []byte(b.String()), nil
}

func urgentTag(p engine.Priority) string {
	if p == engine.PriorityUrgent {
		return " urgent"
	}
	return ""
}
