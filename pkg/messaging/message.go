package messaging

import (
	"time"

	"github.com/cuemby/cyclone/pkg/tree"
	"github.com/google/uuid"
)

// Reply is what a message recipient hands back to Send when the message
// declares ExpectReply.
type Reply struct {
	Success bool
	Payload *tree.Node
	Err     error
}

// Message is one unit of runtime messaging: sender name,
// destination object path, function name, optional payload tree,
// expected-reply flag, and a per-message timeout.
type Message struct {
	ID          string
	Sender      string
	Destination string
	Function    string
	Payload     *tree.Node
	ExpectReply bool
	Timeout     time.Duration

	replyCh chan Reply
}

// New builds a message ready to hand to Bus.Send. Callers that don't need
// a reply can ignore ExpectReply/Timeout (zero values mean "fire and
// forget").
func New(sender, destination, function string, payload *tree.Node) *Message {
	return &Message{
		ID:          uuid.NewString(),
		Sender:      sender,
		Destination: destination,
		Function:    function,
		Payload:     payload,
	}
}

// Reply delivers a reply to whatever Send call is blocked waiting for
// this message, if any. A second call is a no-op: the channel already
// holds the first reply.
func (m *Message) Reply(success bool, payload *tree.Node, err error) {
	if m.replyCh == nil {
		return
	}
	select {
	case m.replyCh <- Reply{Success: success, Payload: payload, Err: err}:
	default:
	}
}
