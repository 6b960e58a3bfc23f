package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/notify"
)

// Queue yields queued notifications; nil, nil means nothing arrived before timeout.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (*notify.Message, error)
}

// NotificationWorker drains the notification queue into a delivery transport.
type NotificationWorker struct {
	queue    Queue
	delivery notify.Transport
	logger   *zap.Logger
	poll     time.Duration
	backoff  time.Duration
}

// NewNotificationWorker builds the worker.
func NewNotificationWorker(queue Queue, delivery notify.Transport, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{
		queue:    queue,
		delivery: delivery,
		logger:   logger,
		poll:     5 * time.Second,
		backoff:  time.Second,
	}
}

// Run consumes until ctx is cancelled. Failed deliveries are logged and dropped.
func (w *NotificationWorker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		msg, err := w.queue.Pop(ctx, w.poll)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("notification queue read failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.backoff):
			}
			continue
		}
		if msg == nil {
			continue
		}
		if err := w.delivery.Send(ctx, *msg); err != nil {
			w.logger.Error("notification delivery failed",
				zap.String("id", msg.ID), zap.String("template", msg.TemplateID), zap.Error(err))
		}
	}
}
