package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogTransport writes messages to the structured log instead of delivering them.
type LogTransport struct {
	logger *zap.Logger
	from   string
}

// NewLogTransport returns a transport that logs each message.
func NewLogTransport(logger *zap.Logger, from string) *LogTransport {
	return &LogTransport{logger: logger, from: from}
}

func (t *LogTransport) Send(ctx context.Context, msg Message) error {
	emails := make([]string, 0, len(msg.Recipients))
	for _, r := range msg.Recipients {
		emails = append(emails, r.Email)
	}
	t.logger.Info("notification",
		zap.String("id", msg.ID),
		zap.String("template", msg.TemplateID),
		zap.Int64("company_id", msg.CompanyID),
		zap.String("locale", msg.Locale),
		zap.String("from", t.from),
		zap.Strings("to", emails),
		zap.Any("tags", msg.Tags),
	)
	return nil
}
