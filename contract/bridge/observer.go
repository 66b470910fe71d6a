package bridge

// Observer is notified after each emit and each inbound delivery.
// handlers is the number of handlers the delivery dispatched to.
// Implementations must be safe for concurrent use and must not block.
type Observer interface {
	Emitted(channel string, err error)
	Delivered(channel string, handlers int, err error)
}

// NopObserver discards all notifications.
type NopObserver struct{}

func (NopObserver) Emitted(string, error)        {}
func (NopObserver) Delivered(string, int, error) {}
