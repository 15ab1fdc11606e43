package pipeline

import "fmt"

// EnvelopeStage annotates the raw text with where and when it arrived so
// the model can reason about the platform and the sender.
func EnvelopeStage() Stage {
	return func(c *Context, next func() error) error {
		from := c.Peer
		if c.PeerName != "" {
			from = fmt.Sprintf("%s (%s)", c.PeerName, c.Peer)
		}
		c.Envelope = fmt.Sprintf("[%s via %s at %s] %s",
			from, c.Channel, c.ReceivedAt.UTC().Format("2006-01-02 15:04 MST"), c.Incoming)
		return next()
	}
}
