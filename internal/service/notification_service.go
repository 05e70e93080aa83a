package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/registry_api/internal/metrics"
	"github.com/GTDGit/registry_api/internal/models"
)

// Sender delivers one notification.
type Sender interface {
	Send(ctx context.Context, n *models.Notification) error
}

// LogSender writes notifications to the log instead of sending them.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, n *models.Notification) error {
	log.Info().
		Int64("notification_id", n.ID).
		Str("registration_id", n.RegistrationID).
		Str("recipient", n.Recipient).
		Str("subject", n.Subject).
		Msg("Notification sent")
	return nil
}

// NotificationProcessor claims pending notifications and reports delivery results.
type NotificationProcessor interface {
	ProcessPending(ctx context.Context, limit, maxAttempts int, deliver func(n *models.Notification) error) (sent, failed int, err error)
}

// NotificationService drains the notification queue through a Sender.
type NotificationService struct {
	repo        NotificationProcessor
	sender      Sender
	metrics     *metrics.Metrics
	batchSize   int
	maxAttempts int
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(repo NotificationProcessor, sender Sender, m *metrics.Metrics, batchSize, maxAttempts int) *NotificationService {
	if sender == nil {
		sender = LogSender{}
	}
	return &NotificationService{repo: repo, sender: sender, metrics: m, batchSize: batchSize, maxAttempts: maxAttempts}
}

// DispatchPending delivers one batch of pending notifications.
func (s *NotificationService) DispatchPending(ctx context.Context) (sent, failed int, err error) {
	sent, failed, err = s.repo.ProcessPending(ctx, s.batchSize, s.maxAttempts, func(n *models.Notification) error {
		if err := s.sender.Send(ctx, n); err != nil {
			log.Warn().Err(err).Int64("notification_id", n.ID).Int("attempts", n.Attempts+1).Msg("Notification delivery failed")
			return err
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	s.metrics.AddNotifications("sent", sent)
	s.metrics.AddNotifications("failed", failed)
	return sent, failed, nil
}
