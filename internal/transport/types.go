package transport

import "context"

// Message is one inbound chat message, normalized across adapters.
type Message struct {
	ID       string // chat message id, unique within the room
	Room     string
	ParentID string // id of the message this one replies to, "" if none
	Sender   string // raw sender nick as the platform shows it
	SenderID int64
	Text     string

	FromSelf   bool // sent by the bot itself
	Privileged bool // sender may use restricted features
}

// Adapter connects the bot to one chat platform. Start delivers inbound
// messages on out until Stop or context cancellation.
type Adapter interface {
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error

	// Send posts text into a room, optionally as a reply to replyTo, and
	// returns the chat message id of the first posted message.
	Send(ctx context.Context, room, text, replyTo string) (string, error)
}
