package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"omnigate/internal/domain"
)

// Scheduler delivers due reminders through the connector they were set
// from. It polls once a minute; a reminder is marked delivered only after
// the platform send succeeds, so a failed send retries next tick.
type Scheduler struct {
	store  domain.Store
	sender domain.MessageSender
	logger *slog.Logger
	cron   *cron.Cron
	now    func() time.Time
}

type Config struct {
	Store  domain.Store
	Sender domain.MessageSender
	Logger *slog.Logger
	Now    func() time.Time // test hook
}

func New(cfg Config) *Scheduler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		store:  cfg.Store,
		sender: cfg.Sender,
		logger: cfg.Logger,
		now:    cfg.Now,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc("@every 1m", func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("schedule reminder tick: %w", err)
	}
	s.cron.Start()
	s.logger.Info("reminder scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Tick delivers everything due as of now.
func (s *Scheduler) Tick(ctx context.Context) {
	due, err := s.store.DueReminders(ctx, s.now().UTC())
	if err != nil {
		s.logger.Error("due reminders query failed", "err", err)
		return
	}

	for _, r := range due {
		key := domain.ConnectorKey{Owner: r.Owner, Channel: r.Channel, Mode: r.Mode}
		text := "Reminder: " + r.Text

		if err := s.sender.SendVia(ctx, key, r.Peer, text); err != nil {
			s.logger.Warn("reminder delivery failed, will retry",
				"id", r.ID, "key", key.String(), "err", err)
			continue
		}
		if err := s.store.MarkReminderDelivered(ctx, r.ID); err != nil {
			s.logger.Error("mark delivered failed", "id", r.ID, "err", err)
			continue
		}
		s.logger.Info("reminder delivered", "id", r.ID, "key", key.String(), "peer", r.Peer)
	}
}
