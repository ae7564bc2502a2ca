package notify

import (
	"log"
	"sync"
)

// CodeGeneric is the fallback error code used when a failure carries no
// structured code (network errors, malformed frames).
const CodeGeneric = 0

// Notice is one user-facing error delivered from a background task.
type Notice struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// messages maps backend error codes to user-facing text. Unknown codes fall
// back to the generic message.
var messages = map[int]string{
	CodeGeneric: "Something went wrong. Please check your network and try again.",
	-10001:      "Invalid request parameters.",
	-10203:      "The source content is too long for the selected model.",
	-10504:      "Audio synthesis failed on the provider side. Please try again.",
	-10601:      "Generation quota exceeded for this API key.",
}

// MessageFor returns the user-facing message for a backend error code.
func MessageFor(code int) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return messages[CodeGeneric]
}

// Notifier delivers notices point-to-point from background tasks to a single
// consumer. Delivery is non-blocking: when the buffer is full the oldest
// notice is dropped so a slow consumer can never stall a reconciliation path.
type Notifier struct {
	mu sync.Mutex
	ch chan Notice
}

func New(buffer int) *Notifier {
	if buffer <= 0 {
		buffer = 16
	}
	return &Notifier{ch: make(chan Notice, buffer)}
}

// Publish enqueues a notice for the given error code.
func (n *Notifier) Publish(code int) {
	n.publish(Notice{Code: code, Message: MessageFor(code)})
}

func (n *Notifier) publish(notice Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for {
		select {
		case n.ch <- notice:
			return
		default:
		}
		select {
		case dropped := <-n.ch:
			log.Printf("[Notify] buffer full, dropping notice code=%d", dropped.Code)
		default:
		}
	}
}

// C exposes the receive side for the consumer.
func (n *Notifier) C() <-chan Notice {
	return n.ch
}

// Drain returns all currently queued notices without blocking.
func (n *Notifier) Drain() []Notice {
	var out []Notice
	for {
		select {
		case notice := <-n.ch:
			out = append(out, notice)
		default:
			return out
		}
	}
}
