package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Dispatcher delivers one batch of queued notifications.
type Dispatcher interface {
	DispatchPending(ctx context.Context) (sent, failed int, err error)
}

// NotificationWorker drains the notification queue periodically.
type NotificationWorker struct {
	dispatcher Dispatcher
	interval   time.Duration
}

// NewNotificationWorker constructs a NotificationWorker.
func NewNotificationWorker(dispatcher Dispatcher, interval time.Duration) *NotificationWorker {
	return &NotificationWorker{dispatcher: dispatcher, interval: interval}
}

// Start begins the periodic dispatch loop until context is canceled.
func (w *NotificationWorker) Start(ctx context.Context) {
	log.Info().Dur("interval", w.interval).Msg("Starting notification worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.run(ctx)
		case <-ctx.Done():
			log.Info().Msg("Notification worker stopped")
			return
		}
	}
}

func (w *NotificationWorker) run(ctx context.Context) {
	sent, failed, err := w.dispatcher.DispatchPending(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to dispatch notifications")
		return
	}
	if sent+failed > 0 {
		log.Info().Int("sent", sent).Int("failed", failed).Msg("Dispatched notifications")
	}
}
