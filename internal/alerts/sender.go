package alerts

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"os/exec"
	"regexp"
	"strings"
)

// Sender submits one formatted mail. from and to are bare addr-specs.
type Sender interface {
	Send(ctx context.Context, from, to string, data []byte) error
}

func newSender(cfg Config) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "null":
		return nullSender{}, nil
	case "sendmail":
		cmd := cfg.SendmailCommand
		if cmd == "" {
			cmd = "sendmail"
		}
		return &sendmailSender{command: cmd}, nil
	default:
		return nil, fmt.Errorf("unknown alert backend %q", cfg.Backend)
	}
}

// nullSender swallows everything; useful for testing and for running with
// alerts nominally enabled but nowhere to send.
type nullSender struct{}

func (nullSender) Send(context.Context, string, string, []byte) error { return nil }

// sendmailSender pipes the message through a local sendmail-compatible
// command.
type sendmailSender struct {
	command string
}

var leadingDot = regexp.MustCompile(`(?m)^\.`)

func (s *sendmailSender) Send(ctx context.Context, from, to string, data []byte) error {
	cmd := exec.CommandContext(ctx, s.command, "-f", from, to)
	// Dot-stuff the body and terminate with a lone dot, as SMTP-style
	// consumers expect.
	stuffed := append(leadingDot.ReplaceAll(data, []byte("..")), []byte("\n.\n")...)
	cmd.Stdin = bytes.NewReader(stuffed)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", s.command, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// addrSpec extracts the bare address from a possibly display-named mailbox
// ("TellBot <tellbot@example.com>" -> "tellbot@example.com").
func addrSpec(s string) (string, error) {
	a, err := mail.ParseAddress(s)
	if err != nil {
		return "", err
	}
	return a.Address, nil
}
