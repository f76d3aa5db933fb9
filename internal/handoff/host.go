package handoff

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/zecrypt/zecrypt-go/internal/logging"
)

// maxFrameSize caps a single native-messaging frame. Browsers enforce 1 MB
// toward the host; anything larger is a corrupt or hostile stream.
const maxFrameSize = 1 << 20

// Host speaks the native-messaging framing (a 32-bit little-endian length
// prefix, then that many bytes of JSON) over a reader/writer pair, usually
// the process stdio, and feeds each message to the handler.
type Host struct {
	handler *Handler
	in      io.Reader
	out     io.Writer
	log     logging.Logger
}

// NewHost builds a host serving handler over in/out.
func NewHost(handler *Handler, in io.Reader, out io.Writer, log logging.Logger) *Host {
	return &Host{handler: handler, in: in, out: out, log: log}
}

// Run serves messages until the input stream closes or ctx is cancelled. A
// malformed frame body produces an error reply; only a broken stream ends the
// loop.
func (h *Host) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := readFrame(h.in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("handoff host read: %w", err)
		}

		var reply Reply
		if msg == nil {
			reply = failReply("malformed message")
		} else {
			reply = h.handler.Handle(ctx, *msg)
			if reply.Error != "" {
				h.log.Warn(ctx, "handoff message failed", "type", msg.Type, "error", reply.Error)
			}
		}

		if err := writeFrame(h.out, reply); err != nil {
			return fmt.Errorf("handoff host write: %w", err)
		}
	}
}

// FrameMessenger delivers messages over an already-open framed stream. It
// satisfies Messenger for the push path.
type FrameMessenger struct {
	w io.Writer
}

// NewFrameMessenger wraps w.
func NewFrameMessenger(w io.Writer) *FrameMessenger {
	return &FrameMessenger{w: w}
}

// Send writes msg as one frame.
func (m *FrameMessenger) Send(ctx context.Context, msg Message) error {
	return writeFrame(m.w, msg)
}

// readFrame reads one framed message. A nil message with nil error means the
// frame was read but its body did not decode.
func readFrame(r io.Reader) (*Message, error) {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	if size > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, nil
	}
	return &msg, nil
}

// writeFrame writes v as one framed message.
func writeFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(body))); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}
