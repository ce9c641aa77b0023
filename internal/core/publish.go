package core

// Consumer receives every recomputed live set of a session, typically the
// rendering layer. Publish is called synchronously with the complete set.
type Consumer interface {
	Publish(LiveSet)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(LiveSet)

// Publish implements Consumer.
func (f ConsumerFunc) Publish(l LiveSet) { f(l) }

// publish hands l to c. A nil consumer makes publication a no-op.
func publish(c Consumer, l LiveSet) {
	if c == nil {
		return
	}
	c.Publish(l)
}
