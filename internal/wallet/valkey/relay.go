package walletvalkey

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"
)

const (
	mailboxTTL  = 10 * time.Minute
	pollTimeout = 1 // seconds a single BLPOP may block
)

// Relay exchanges sealed messages through valkey lists, one list per mailbox.
type Relay struct {
	valkey valkey.Client
	prefix string
}

func NewRelay(valkeyClient valkey.Client, prefix string) *Relay {
	return &Relay{
		valkey: valkeyClient,
		prefix: strings.TrimSuffix(prefix, ":"),
	}
}

func (r *Relay) Send(ctx context.Context, mailbox string, payload []byte) error {
	key := r.key(mailbox)

	cmds := valkey.Commands{
		r.valkey.B().Rpush().Key(key).Element(valkey.BinaryString(payload)).Build(),
		r.valkey.B().Expire().Key(key).Seconds(int64(mailboxTTL.Seconds())).Build(),
	}
	for _, resp := range r.valkey.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("pushing to mailbox %s: %w", mailbox, err)
		}
	}

	return nil
}

// Receive pops the oldest message of mailbox, waiting for one if it is empty.
func (r *Relay) Receive(ctx context.Context, mailbox string) ([]byte, error) {
	key := r.key(mailbox)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// BLPOP answers [key, element]
		vals, err := r.valkey.Do(ctx, r.valkey.B().Blpop().Key(key).Timeout(pollTimeout).Build()).AsStrSlice()
		if err != nil {
			if valkey.IsValkeyNil(err) {
				continue
			}

			return nil, fmt.Errorf("popping from mailbox %s: %w", mailbox, err)
		}

		if len(vals) != 2 {
			return nil, fmt.Errorf("unexpected BLPOP reply of %d elements", len(vals))
		}

		return []byte(vals[1]), nil
	}
}

func (r *Relay) key(mailbox string) string {
	return fmt.Sprintf("%s:mailbox:%s", r.prefix, mailbox)
}
