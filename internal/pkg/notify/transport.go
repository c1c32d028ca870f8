package notify

import "context"

// Message is one outbound email.
type Message struct {
	From    string
	To      string
	ReplyTo string
	Subject string
	HTML    string
}

type Transport interface {
	Send(ctx context.Context, msg Message) error
}

type TransportFunc func(ctx context.Context, msg Message) error

func (f TransportFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
