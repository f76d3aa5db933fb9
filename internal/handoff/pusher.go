package handoff

import (
	"context"
	"sync"

	"github.com/zecrypt/zecrypt-go/internal/logging"
)

// PushState is the lifecycle of a direct session push.
type PushState int

const (
	// PushIdle means no push has been attempted yet.
	PushIdle PushState = iota
	// PushSending means a push is in flight.
	PushSending
	// PushAcknowledged means the peer accepted the session.
	PushAcknowledged
	// PushFailed means the peer was unreachable or rejected the push. The
	// failure is logged, never retried; the polling path remains as fallback.
	PushFailed
)

// Messenger delivers one message to the peer surface.
type Messenger interface {
	Send(ctx context.Context, msg Message) error
}

// Pusher hands a fresh login directly to the peer surface instead of waiting
// for it to poll.
type Pusher struct {
	mu        sync.Mutex
	state     PushState
	messenger Messenger
	log       logging.Logger
}

// NewPusher returns a pusher over messenger.
func NewPusher(messenger Messenger, log logging.Logger) *Pusher {
	return &Pusher{messenger: messenger, log: log}
}

// State returns the outcome of the last push.
func (p *Pusher) State() PushState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// PushLogin sends the session payload to the peer. A failed push is recorded
// and logged but does not propagate: the caller's own login already
// succeeded.
func (p *Pusher) PushLogin(ctx context.Context, payload *BridgePayload) {
	p.mu.Lock()
	p.state = PushSending
	p.mu.Unlock()

	msg := Message{
		Type:          MsgLogin,
		Token:         payload.Token,
		WorkspaceID:   payload.WorkspaceID,
		ProjectID:     payload.ProjectID,
		ProjectAESKey: payload.ProjectAESKey,
	}

	err := p.messenger.Send(ctx, msg)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.state = PushFailed
		p.log.Warn(ctx, "session push not delivered", "error", err)
		return
	}
	p.state = PushAcknowledged
}
