package rx

import (
	"weak"

	"github.com/danmuck/wireframe/internal/protocol"
)

// Callback receives one completed frame.
type Callback func(protocol.FrameSnapshot)

// Subscription is the handle returned by Subscribe. The engine holds
// only a weak pointer to the callback wrapper; the caller must retain
// the Subscription itself for delivery to keep happening (holding only
// the callback does not keep the wrapper alive). Dropping the last strong reference lets the entry
// expire; the engine reclaims it lazily on the next delivery pass.
type Subscription struct {
	fn Callback
}

// Unsubscribe is a no-op placeholder for callers migrating from an
// explicit-unsubscribe API; dropping the Subscription is sufficient.
func (s *Subscription) Unsubscribe() {}

type subscriber struct {
	weak weak.Pointer[Subscription]
}

func newSubscriber(sub *Subscription) subscriber {
	return subscriber{weak: weak.Make(sub)}
}
