// Package notify delivers contract notifications. Delivery is fire-and-forget:
// callers learn whether the hand-off succeeded, not whether mail arrived.
package notify

import (
	"context"
	"errors"

	"github.com/mkoziy/contratos/crmsync/internal/logger"
)

// Message is one outbound notification.
type Message struct {
	To         string
	Subject    string
	Body       string
	ContractID int64
}

// Notifier hands a message to a delivery channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes notifications to the log. It stands in for mail
// delivery in development and in deployments without a mail relay.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a notifier that logs every message.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.Default()
	}
	return &LogNotifier{log: log.WithComponent("notify")}
}

func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("notify: empty recipient")
	}
	n.log.WithContext(ctx).Infow("notification sent",
		"to", msg.To,
		"subject", msg.Subject,
		"contract_id", msg.ContractID,
	)
	return nil
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, msg Message) error

func (f Func) Notify(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
