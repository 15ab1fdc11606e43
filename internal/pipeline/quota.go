package pipeline

import (
	"log/slog"

	"omnigate/internal/metrics"
	"omnigate/internal/quota"
)

// QuotaStage rejects over-limit owners before any store or provider work.
// The counter increment is the only side effect of a rejected message.
func QuotaStage(tracker *quota.Tracker, message string, m *metrics.Gateway, logger *slog.Logger) Stage {
	return func(c *Context, next func() error) error {
		if tracker == nil || tracker.Allow(c.Owner) {
			return next()
		}
		logger.Info("quota exceeded", "owner", c.Owner, "used", tracker.Used(c.Owner))
		if m != nil {
			m.QuotaRejected.Inc()
		}
		c.Reply = message
		return nil
	}
}
