// Package notify delivers arbitrage alerts to operator channels such as
// Telegram and Discord.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"arbscout/internal/model"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// OpportunitySender is implemented by channels with a richer layout for
// opportunity alerts than a title and a text body.
type OpportunitySender interface {
	SendOpportunity(ctx context.Context, opp model.Opportunity) error
}

// Notifier dispatches notifications to one or more Senders.
type Notifier struct {
	senders []Sender
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders.
func NewNotifier(senders []Sender, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders: senders,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is registered.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify sends a notification to every sender. A single sender failure does
// not prevent delivery to the remaining senders; failures are combined into
// the returned error.
func (n *Notifier) Notify(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, func(s Sender) error {
		return s.Send(ctx, title, message)
	})
}

// NotifyOpportunity alerts every sender about opp. Senders implementing
// OpportunitySender render it themselves, the rest get the plain text alert.
func (n *Notifier) NotifyOpportunity(ctx context.Context, opp model.Opportunity) error {
	return n.dispatch(ctx, OpportunityTitle, func(s Sender) error {
		if rich, ok := s.(OpportunitySender); ok {
			return rich.SendOpportunity(ctx, opp)
		}
		return s.Send(ctx, OpportunityTitle, FormatOpportunity(opp))
	})
}

func (n *Notifier) dispatch(ctx context.Context, title string, send func(Sender) error) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := send(s); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
