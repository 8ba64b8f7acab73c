package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tellbot/internal/engine"
	"tellbot/internal/transport"
)

// handleTell implements !tell and !tnotify. The recipient expression is
// consumed token by token; the first token that is neither a list token nor
// an option starts the message body, which is taken as the raw tail of the
// line so internal spacing survives.
func (b *Bot) handleTell(ctx context.Context, msg transport.Message, toks []token) {
	var (
		ops  []engine.Op
		ping bool
		pri  = engine.PriorityNormal
		body string
	)
loop:
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if op, ok := engine.ParseOp(t.Text); ok {
			ops = append(ops, op)
			continue
		}
		switch {
		case t.Text == "--":
			if i+1 < len(toks) {
				body = msg.Text[toks[i+1].Start:]
			}
			break loop
		case t.Text == "--ping":
			ping = true
		case t.Text == "--priority":
			if i+1 >= len(toks) {
				b.reply(ctx, msg, "Missing message priority.")
				return
			}
			i++
			p, err := engine.ParsePriority(toks[i].Text)
			if err != nil {
				b.replyf(ctx, msg, "Unknown priority %s.", toks[i].Text)
				return
			}
			pri = p
		case strings.HasPrefix(t.Text, "--priority="):
			p, err := engine.ParsePriority(t.Text[len("--priority="):])
			if err != nil {
				b.replyf(ctx, msg, "Unknown priority %s.", t.Text[len("--priority="):])
				return
			}
			pri = p
		case strings.HasPrefix(t.Text, "--"):
			b.replyf(ctx, msg, "Unknown option %s.", t.Text)
			return
		case strings.HasPrefix(t.Text, "-"):
			b.reply(ctx, msg, "Single-letter options are not supported.")
			return
		default:
			body = msg.Text[t.Start:]
			break loop
		}
	}
	res, err := b.eng.Tell(ctx, engine.TellRequest{
		Sender:     engine.NameOf(msg.Sender),
		Room:       msg.Room,
		Ops:        ops,
		Text:       strings.TrimSpace(body),
		Priority:   pri,
		Privileged: msg.Privileged,
	})
	if err != nil {
		if engine.IsKind(err, engine.KindUnauthorized) {
			b.reply(ctx, msg, "Only privileged users may send urgent messages.")
			return
		}
		b.replyRejection(ctx, msg, err)
		return
	}

	reclist := b.recipientList(res, msg.Sender, ping)
	if strings.TrimSpace(body) == "" {
		b.replyf(ctx, msg, "Nothing to tell %s (did you specify a message?).", reclist)
		return
	}
	b.replyf(ctx, msg, "Will tell %s.", reclist)
}

// handleNotify implements the generic !notify command, which several bots
// may claim. Mode "always" answers immediately; "delay" arms a fallback
// that fires only if nothing replied to the trigger message in time.
func (b *Bot) handleNotify(ctx context.Context, msg transport.Message, toks []token) {
	cfg := b.config()
	switch cfg.NotifyMode {
	case "always":
		b.handleTell(ctx, msg, toks)
	case "delay":
		b.scheduleDelayed(msg, toks, cfg.NotifyDelay)
	}
}

// handleReply implements !reply and !reply-all against the delivery notice
// the message responds to.
func (b *Bot) handleReply(ctx context.Context, msg transport.Message, toks []token, all bool) {
	if msg.ParentID == "" {
		b.reply(ctx, msg, "Nothing to reply to.")
		return
	}
	body := ""
	if len(toks) > 0 {
		body = msg.Text[toks[0].Start:]
	}

	res, err := b.eng.Reply(ctx, engine.ReplyRequest{
		Sender:     engine.NameOf(msg.Sender),
		Room:       msg.Room,
		NoticeID:   msg.ParentID,
		Text:       strings.TrimSpace(body),
		All:        all,
		Privileged: msg.Privileged,
	})
	if err != nil {
		if engine.IsKind(err, engine.KindStaleReplyContext) {
			// Plain !reply stays silent on unrecognized parents so other
			// bots' reply commands are not answered over.
			if all {
				b.reply(ctx, msg, "Message not recognized.")
			}
			return
		}
		b.replyRejection(ctx, msg, err)
		return
	}

	reclist := b.recipientList(res, msg.Sender, false)
	if strings.TrimSpace(body) == "" {
		b.replyf(ctx, msg, "Nothing to tell %s (did you specify a message?).", reclist)
		return
	}
	b.replyf(ctx, msg, "Will tell %s.", reclist)
}

// handleInbox implements !inbox (and its !boop alias): flush pending
// messages, optionally re-showing recently delivered ones.
func (b *Bot) handleInbox(ctx context.Context, msg transport.Message, toks []token) {
	stale := false
	for _, t := range toks {
		switch {
		case t.Text == "--stale":
			stale = true
		case t.Text == "--":
		case strings.HasPrefix(t.Text, "-"):
			b.replyf(ctx, msg, "Unknown option %s.", t.Text)
			return
		}
	}

	res, err := b.eng.Inbox(ctx, engine.NameOf(msg.Sender), msg.Room, stale)
	if err != nil {
		b.replyRejection(ctx, msg, err)
		if res == nil {
			return
		}
	}
	if len(res.Messages) == 0 {
		b.reply(ctx, msg, "No mail.")
		return
	}
	b.deliverMessages(ctx, msg, res.Messages)
}

// handleGroup implements !tgroup, !tungroup, and !tgrouplist. The first
// bare *token names the group; everything after it is the change set.
func (b *Bot) handleGroup(ctx context.Context, msg transport.Message, cmd string, toks []token) {
	var (
		groupName string
		haveGroup bool
		ops       []engine.Op
		ping      bool
		desc      *string
		count     int
	)
loop:
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if op, ok := engine.ParseOp(t.Text); ok {
			if !haveGroup {
				if op.Group && !op.Remove && strings.HasPrefix(t.Text, "*") {
					groupName = op.Ref
					haveGroup = true
					continue
				}
				b.reply(ctx, msg, "Please specify a group first.")
				return
			}
			ops = append(ops, op)
			count++
			continue
		}
		switch {
		case t.Text == "--":
			d := ""
			if i+1 < len(toks) {
				d = strings.TrimSpace(msg.Text[toks[i+1].Start:])
			}
			desc = &d
			break loop
		case t.Text == "--ping":
			ping = true
		case strings.HasPrefix(t.Text, "--"):
			b.replyf(ctx, msg, "Unknown option %s.", t.Text)
			return
		case strings.HasPrefix(t.Text, "-"):
			b.reply(ctx, msg, "Single-letter options are not supported.")
			return
		default:
			b.replyf(ctx, msg, "Please specify only group changes or a single "+
				"group name to display members of. (%s)", userspecHelp)
			return
		}
	}
	if !haveGroup {
		if cmd == "!tgrouplist" {
			b.reply(ctx, msg, "Please specify a group to show.")
		} else {
			b.reply(ctx, msg, "Please specify a group to show or change.")
		}
		return
	}
	if cmd == "!tgrouplist" && (count != 0 || desc != nil) {
		b.reply(ctx, msg, "Use !tgroup to edit a group.")
		return
	}

	req := engine.GroupRequest{Name: groupName, Description: desc}
	if count != 0 {
		req.Ops = ops
		req.Remove = cmd == "!tungroup"
	}
	res, err := b.eng.Group(ctx, req)
	if err != nil {
		b.replyRejection(ctx, msg, err)
		return
	}

	var lines []string
	lines = append(lines, "Group: *"+res.Name)
	if desc != nil && *desc != "" {
		lines = append(lines, "New description: "+indentLines(*desc))
	} else if res.Description != "" {
		lines = append(lines, "Description: "+indentLines(res.Description))
	}
	if count != 0 {
		lines = append(lines,
			b.membersHeading("before", res.Before, ping, msg.Sender),
			b.membersHeading("after", res.After, ping, msg.Sender))
	} else {
		lines = append(lines, b.membersHeading("", res.Before, ping, msg.Sender))
	}
	b.reply(ctx, msg, strings.Join(lines, "\n"))
}

// handleListGroups implements !tlistgroups: group names matching the
// pattern, clustered by their first letter.
func (b *Bot) handleListGroups(ctx context.Context, msg transport.Message, toks []token) {
	pattern := ""
	switch len(toks) {
	case 0:
	case 1:
		pattern = toks[0].Text
	default:
		b.reply(ctx, msg, "Please specify a matching pattern or nothing.")
		return
	}

	groups, err := b.eng.ListGroups(pattern)
	if err != nil {
		b.replyRejection(ctx, msg, err)
		return
	}
	if len(groups) == 0 {
		if pattern == "" {
			b.reply(ctx, msg, "No groups.")
		} else {
			b.reply(ctx, msg, "No groups matching pattern.")
		}
		return
	}

	var lines []string
	var cur []string
	for _, g := range groups {
		name := "*" + g.Name
		if len(cur) > 0 && !strings.EqualFold(name[:2], cur[len(cur)-1][:2]) {
			lines = append(lines, strings.Join(cur, ", "))
			cur = cur[:0]
		}
		cur = append(cur, name)
	}
	lines = append(lines, strings.Join(cur, ", "))
	b.reply(ctx, msg, strings.Join(lines, "\n"))
}

// handleGroupsOf implements !tgroupsof: per resolved user, the groups they
// belong to.
func (b *Bot) handleGroupsOf(ctx context.Context, msg transport.Message, toks []token) {
	ops, ping, ok := b.parsePlainList(ctx, msg, toks)
	if !ok {
		return
	}
	if len(ops) == 0 {
		b.reply(ctx, msg, "No-one to look for.")
		return
	}

	infos, err := b.eng.GroupsOf(ops)
	if err != nil {
		b.replyRejection(ctx, msg, err)
		return
	}
	var lines []string
	for _, info := range infos {
		count := ""
		if len(info.Groups) > 0 {
			count = fmt.Sprintf(" (%d)", len(info.Groups))
		}
		names := make([]string, 0, len(info.Groups))
		for _, g := range info.Groups {
			names = append(names, "*"+g)
		}
		lines = append(lines, fmt.Sprintf("Groups of %s%s: %s",
			b.formatNick(info.Name.Display, ping, msg.Sender, false),
			count, formatList(names, "-none-")))
	}
	b.reply(ctx, msg, strings.Join(lines, "\n"))
}

// handleAlias implements !alias and !unalias. The first bare @token names
// the subject; the rest are the nicks to merge in or split off. Groups are
// not aliasable.
func (b *Bot) handleAlias(ctx context.Context, msg transport.Message, cmd string, toks []token) {
	var (
		base     engine.Name
		haveBase bool
		ops      []engine.Op
		ping     bool
		count    int
	)
	for _, t := range toks {
		if op, ok := engine.ParseOp(t.Text); ok {
			if op.Group {
				b.reply(ctx, msg, "Please do not specify groups.")
				return
			}
			if !haveBase {
				if op.Remove || !strings.HasPrefix(t.Text, "@") {
					b.reply(ctx, msg, "Please specify a user first.")
					return
				}
				base = engine.NameOf(op.Ref)
				haveBase = true
				continue
			}
			ops = append(ops, op)
			count++
			continue
		}
		switch {
		case t.Text == "--ping":
			ping = true
		case strings.HasPrefix(t.Text, "--"):
			b.replyf(ctx, msg, "Unknown option %s.", t.Text)
			return
		default:
			b.replyf(ctx, msg, "Please specify only alias changes or a single "+
				"name to display aliases of. (%s)", userspecHelp)
			return
		}
	}
	if !haveBase {
		b.reply(ctx, msg, "Please specify an alias to show or change.")
		return
	}

	var (
		res *engine.AliasResult
		err error
	)
	if cmd == "!unalias" {
		res, err = b.eng.Unalias(ctx, base, ops)
	} else {
		res, err = b.eng.Alias(ctx, base, ops)
	}
	if err != nil {
		b.replyRejection(ctx, msg, err)
		return
	}

	var lines []string
	if count == 0 {
		lines = append(lines, b.aliasesHeading(base, res.Before, "", ping, msg.Sender))
	} else {
		lines = append(lines,
			b.aliasesHeading(base, res.Before, "before", ping, msg.Sender),
			b.aliasesHeading(base, res.Identity.Names, "after", ping, msg.Sender))
	}
	b.reply(ctx, msg, strings.Join(lines, "\n"))
}

// handleSeen implements !seen: when and where each resolved user was last
// observed, plus their pending-message count.
func (b *Bot) handleSeen(ctx context.Context, msg transport.Message, toks []token) {
	var ops []engine.Op
	for _, t := range toks {
		if op, ok := engine.ParseOp(t.Text); ok {
			ops = append(ops, op)
			continue
		}
		b.reply(ctx, msg, "Please specify users or groups only.")
		return
	}
	if len(ops) == 0 {
		b.reply(ctx, msg, "No-one to check for.")
		return
	}

	infos, err := b.eng.Seen(ops)
	if err != nil {
		b.replyRejection(ctx, msg, err)
		return
	}

	now := time.Now()
	var lines []string
	for _, info := range infos {
		pm := ""
		switch {
		case info.Unread == 1:
			pm = " (1 pending message)"
		case info.Unread > 1:
			pm = fmt.Sprintf(" (%d pending messages)", info.Unread)
		}
		fnick := b.formatNick(info.Name.Display, true, msg.Sender, true)
		if !info.Found {
			lines = append(lines, fmt.Sprintf("%s not seen%s.", fnick, pm))
			continue
		}
		comment := ""
		if engine.NormalizeNick(info.Record.Name) != engine.NormalizeNick(info.Name.Display) {
			comment = " (as " + b.formatNick(info.Record.Name, true, msg.Sender, false) + ")"
		}
		room := ""
		if info.Record.Room == msg.Room {
			room = " here"
		} else if info.Record.Room != "" {
			room = " in " + info.Record.Room
		}
		delta := "just now"
		if d := now.Sub(info.Record.At); d >= time.Second {
			delta = formatDelta(d) + " ago"
		}
		lines = append(lines, fmt.Sprintf("%s%s last seen%s on %s, %s%s.",
			fnick, comment, room, formatDatetime(info.Record.At), delta, pm))
	}
	b.reply(ctx, msg, strings.Join(lines, "\n"))
}

// parsePlainList consumes list tokens plus --ping, rejecting other options.
func (b *Bot) parsePlainList(ctx context.Context, msg transport.Message, toks []token) ([]engine.Op, bool, bool) {
	var (
		ops  []engine.Op
		ping bool
	)
	for _, t := range toks {
		if op, ok := engine.ParseOp(t.Text); ok {
			ops = append(ops, op)
			continue
		}
		switch {
		case t.Text == "--ping":
			ping = true
		case strings.HasPrefix(t.Text, "--"):
			b.replyf(ctx, msg, "Unknown option %s.", t.Text)
			return nil, false, false
		}
	}
	return ops, ping, true
}
