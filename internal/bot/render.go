package bot

import (
	"fmt"
	"strings"
	"time"

	"tellbot/internal/engine"
)

const replyHelp = "Reply with a !reply to any single message to reply to the " +
	"author, or with a !reply-all to reply to the group the message was " +
	"sent to (or the sender if none)."

const userspecHelp = "Nicknames must be preceded by an @ sign and may not " +
	"contain spaces."

// formatNick renders a nick for output. The subject (the user being replied
// to) sees themselves as "you" and the bot as "me"; everyone else is shown
// by nick, with an @ prefix when ping is set.
func (b *Bot) formatNick(nick string, ping bool, subject string, title bool) string {
	key := engine.NormalizeNick(nick)
	var out string
	switch {
	case subject != "" && key == engine.NormalizeNick(subject):
		out = "you"
	case key == engine.NormalizeNick(b.config().Nick):
		out = "me"
	case ping:
		out = "@" + engine.DisplayNick(nick)
	default:
		out = engine.DisplayNick(nick)
	}
	if title {
		out = titleFirst(out)
	}
	return out
}

// recipientList renders the resolved recipient breakdown: direct mentions
// stand alone, group tokens show their contributed members in parentheses,
// with "-empty-" for empty groups and "..." when membership was partially
// attributed elsewhere or trimmed by self-exclusion.
func (b *Bot) recipientList(res *engine.TellResult, subject string, ping bool) string {
	delivered := map[engine.UserKey]bool{}
	for _, n := range res.Delivery {
		delivered[n.Key] = true
	}

	var parts []string
	for _, seg := range res.List.Segments {
		if !seg.Group {
			if len(seg.Members) == 0 {
				continue
			}
			parts = append(parts, b.formatNick(seg.Members[0].Display, ping, subject, false))
			continue
		}
		var names []string
		for _, m := range seg.Members {
			if !delivered[m.Key] {
				continue
			}
			names = append(names, b.formatNick(m.Display, ping, subject, false))
		}
		switch {
		case seg.Total == 0:
			names = append(names, "-empty-")
		case len(names) != seg.Total:
			names = append(names, "...")
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", seg.Token, formatList(names, "")))
	}
	return formatList(parts, "no-one")
}

// deliveryLine renders one delivered message: sender, why the recipient got
// it, its age, and the text. A reason that is just a direct mention of the
// recipient adds nothing and is omitted.
func (b *Bot) deliveryLine(m *engine.Message, recipient string, now time.Time) string {
	reason := ""
	if !isMentionOf(m.Reason, recipient) {
		reason = b.formatReason(m.Reason, recipient)
	}
	return fmt.Sprintf("[%s%s, %s ago] %s",
		b.formatNick(m.From.Display, false, recipient, true),
		reason,
		formatDelta(now.Sub(m.Created)),
		m.Text)
}

// formatReason explains an addressing token: "@joe" reads "to joe", "*ops"
// reads "to *ops", and each reply prefix adds one "replying".
func (b *Bot) formatReason(src, subject string) string {
	if rest, ok := strings.CutPrefix(src, "<re> "); ok {
		return " replying" + b.formatReason(rest, subject)
	}
	if nick, ok := strings.CutPrefix(src, "@"); ok {
		return " to " + b.formatNick(nick, false, subject, false)
	}
	return " to " + src
}

func isMentionOf(token, nick string) bool {
	rest, ok := strings.CutPrefix(token, "@")
	return ok && engine.NormalizeNick(rest) == engine.NormalizeNick(nick)
}

// memberList renders a group's membership for display.
func (b *Bot) memberList(members []engine.Name, ping bool, subject string) string {
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, b.formatNick(m.Display, ping, subject, false))
	}
	return formatList(names, "-none-")
}

// membersHeading builds the "Members before (3): ..." line.
func (b *Bot) membersHeading(comment string, members []engine.Name, ping bool, subject string) string {
	head := "Members"
	if comment != "" {
		head += " " + comment
	}
	if len(members) > 0 {
		head += fmt.Sprintf(" (%d)", len(members))
	}
	return head + ": " + b.memberList(members, ping, subject)
}

// aliasesHeading builds the "Aliases of @base before (2): ..." line. The
// base is shown with the casing recorded in names when available.
func (b *Bot) aliasesHeading(base engine.Name, names []engine.Name, comment string, ping bool, subject string) string {
	shown := base.Display
	for _, n := range names {
		if n.Key == base.Key {
			shown = n.Display
			break
		}
	}
	head := "Aliases"
	if shown != "" {
		head += " of @" + shown
		if len(names) == 0 {
			names = []engine.Name{base}
		}
	}
	if comment != "" {
		head += " " + comment
	}
	if len(names) > 0 {
		head += fmt.Sprintf(" (%d)", len(names))
	}
	list := make([]string, 0, len(names))
	for _, n := range names {
		list = append(list, b.formatNick(n.Display, ping, subject, false))
	}
	return head + ": " + formatList(list, "-none-")
}
