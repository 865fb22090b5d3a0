package walletmock

import (
	"context"
	"sync"
)

const mailboxSize = 64

// Relay is an in-process relay backed by buffered channels.
type Relay struct {
	mu        sync.Mutex
	mailboxes map[string]chan []byte
	sendErr   error
}

func NewRelay() *Relay {
	return &Relay{mailboxes: make(map[string]chan []byte)}
}

// FailSends makes every following Send return err.
func (r *Relay) FailSends(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sendErr = err
}

func (r *Relay) Send(ctx context.Context, mailbox string, payload []byte) error {
	r.mu.Lock()
	err := r.sendErr
	r.mu.Unlock()

	if err != nil {
		return err
	}

	select {
	case r.mailbox(mailbox) <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) Receive(ctx context.Context, mailbox string) ([]byte, error) {
	select {
	case payload := <-r.mailbox(mailbox):
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending returns the number of undelivered messages in mailbox.
func (r *Relay) Pending(mailbox string) int {
	return len(r.mailbox(mailbox))
}

func (r *Relay) mailbox(name string) chan []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.mailboxes[name]
	if !ok {
		ch = make(chan []byte, mailboxSize)
		r.mailboxes[name] = ch
	}

	return ch
}
