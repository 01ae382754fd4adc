package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"DocketWatch/internal/ports"
)

// HighActivityNotice emails every subscriber of a docket that it was suspended.
type HighActivityNotice struct {
	subs     ports.SubscriptionRepository
	mailer   ports.Mailer
	renderer *Renderer
	logger   *slog.Logger
}

// NewHighActivityNotice wires subscription lookup, rendering and delivery.
func NewHighActivityNotice(subs ports.SubscriptionRepository, mailer ports.Mailer, renderer *Renderer, logger *slog.Logger) *HighActivityNotice {
	if logger == nil {
		logger = slog.Default()
	}
	if renderer == nil {
		renderer = NewRenderer("", 0)
	}
	return &HighActivityNotice{subs: subs, mailer: mailer, renderer: renderer, logger: logger}
}

// Notify sends the notice to each distinct subscriber; per-recipient failures are
// joined into the returned error.
func (n *HighActivityNotice) Notify(ctx context.Context, docket string) error {
	subs, err := n.subs.SubscriptionsForDocket(ctx, docket)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}

	var errs []error
	sent := map[string]bool{}
	for _, sub := range subs {
		if sent[sub.RecipientID] {
			continue
		}
		sent[sub.RecipientID] = true

		recipient, err := n.subs.GetRecipient(ctx, sub.RecipientID)
		if err != nil {
			errs = append(errs, fmt.Errorf("recipient %s: %w", sub.RecipientID, err))
			continue
		}
		email, err := n.renderer.RenderHighActivity(recipient, docket)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := n.mailer.Send(ctx, email); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", sub.RecipientID, err))
		}
	}

	n.logger.Info("high activity notice sent", "docket", docket, "recipients", len(sent), "failures", len(errs))
	return errors.Join(errs...)
}

// NotifyHighActivity lets the deluge guard call Notify.
func (n *HighActivityNotice) NotifyHighActivity(ctx context.Context, docket string) error {
	return n.Notify(ctx, docket)
}
