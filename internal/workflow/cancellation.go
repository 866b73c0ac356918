package workflow

import (
	"context"
	"time"

	"github.com/nhle/chocosync/internal/calendar"
	"github.com/nhle/chocosync/internal/mailbox"
	"github.com/nhle/chocosync/internal/model"
)

// DefaultCancelMargin is how far the event search extends on either side of
// a cancelled reservation's start.
const DefaultCancelMargin = time.Minute

// CancellationReconciler deletes the event of a cancelled reservation.
type CancellationReconciler struct {
	Deps
	Sender  string
	Subject string
	Margin  time.Duration
}

// NewCancellationReconciler creates a reconciler for mail from sender whose
// subject contains subject. A non-positive margin means DefaultCancelMargin.
func NewCancellationReconciler(d Deps, sender, subject string, margin time.Duration) *CancellationReconciler {
	return &CancellationReconciler{Deps: d, Sender: sender, Subject: subject, Margin: margin}
}

func (c *CancellationReconciler) Name() Name { return Cancellation }

func (c *CancellationReconciler) margin() time.Duration {
	if c.Margin <= 0 {
		return DefaultCancelMargin
	}
	return c.Margin
}

// Run handles the first message of each matching conversation when that
// message is still unread.
func (c *CancellationReconciler) Run(ctx context.Context) (Summary, error) {
	sum := Summary{Workflow: Cancellation}
	log := c.logger(ctx, Cancellation)

	convs, err := c.search(ctx, &sum, mailbox.Query{
		Subject:    c.Subject,
		From:       c.Sender,
		UnreadOnly: true,
	})
	if err != nil {
		return sum, err
	}
	log.Debug("search finished", "conversations", len(convs))

	for _, conv := range convs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if len(conv.Messages) == 0 {
			continue
		}
		msg := conv.Messages[0]
		if !msg.Unread {
			continue
		}
		c.observe(&sum, c.handle(ctx, msg))
	}

	log.Info("cancellations processed",
		"processed", sum.Processed,
		"deleted", sum.Applied,
		"not_found", sum.NotFound,
		"incomplete", sum.Incomplete,
		"failed", sum.Failed,
	)
	return sum, nil
}

func (c *CancellationReconciler) handle(ctx context.Context, msg mailbox.Message) Outcome {
	log := c.logger(ctx, Cancellation).With(messageAttrs(msg)...)

	res := c.extractor().Cancellation(msg.Subject, msg.Body, msg.Received)
	key, ok := res.Value()
	if !ok {
		log.Warn("cancellation incomplete, leaving message unread",
			"missing", res.MissingString(),
			"error", res.Err(),
		)
		return OutcomeIncomplete
	}

	log = log.With("title", key.Title(), "start", key.Start)

	margin := c.margin()
	candidates, err := c.Calendar.Events(ctx, key.Start.Add(-margin), key.Start.Add(margin), key.Title())
	if err != nil {
		log.Error("searching events failed", "error", err)
		return OutcomeFailed
	}

	target, found := findEvent(candidates, key)
	if !found {
		log.Info("no matching event", "candidates", len(candidates))
		if c.DryRun {
			return OutcomeSkipped
		}
		if err := c.Mailbox.MarkRead(ctx, msg); err != nil {
			log.Error("marking message read failed", "error", err)
			return OutcomeFailed
		}
		return OutcomeNotFound
	}

	log = log.With("event_id", target.ID)

	if c.DryRun {
		log.Info("dry run: would delete event")
		return OutcomeSkipped
	}

	if err := c.Calendar.DeleteEvent(ctx, target); err != nil {
		log.Error("deleting event failed", "error", err)
		return OutcomeFailed
	}

	if err := c.Mailbox.MarkRead(ctx, msg); err != nil {
		log.Error("marking message read failed", "error", err)
		return OutcomeFailed
	}

	log.Info("event deleted")
	return OutcomeApplied
}

// findEvent returns the first candidate whose title equals the key's title
// and whose start equals the key's start to the minute.
func findEvent(candidates []calendar.Event, key model.EventKey) (calendar.Event, bool) {
	for _, ev := range candidates {
		if key.Matches(ev.Title, ev.Start) {
			return ev, true
		}
	}
	return calendar.Event{}, false
}
