package notify

import (
	"context"

	"backoffice/pkg/logger"
)

// LogSink writes notifications and activity events to the structured log.
// The in-memory server uses it directly; the outbox worker dispatches through it.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a sink that logs through log, or the default logger when nil.
func NewLogSink(log *logger.Logger) *LogSink {
	if log == nil {
		log = logger.Default()
	}
	return &LogSink{log: log.WithComponent("notify")}
}

func (s *LogSink) Notify(ctx context.Context, n Notification) error {
	s.log.WithContext(ctx).Infow("notification",
		"template", n.Template,
		"recipient_kind", n.Recipient.Kind,
		"recipient_id", n.Recipient.ID,
		"subject_type", n.SubjectType,
		"subject_id", n.SubjectID,
		"payload", n.Payload,
	)
	return nil
}

func (s *LogSink) Record(ctx context.Context, ev ActivityEvent) error {
	s.log.WithContext(ctx).Infow("activity",
		"actor", ev.Actor.String(),
		"action", ev.Action,
		"subject_type", ev.SubjectType,
		"subject_id", ev.SubjectID,
		"occurred_at", ev.OccurredAt,
	)
	return nil
}
