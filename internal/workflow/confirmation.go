package workflow

import (
	"context"

	"github.com/nhle/chocosync/internal/calendar"
	"github.com/nhle/chocosync/internal/mailbox"
)

// ConfirmationImporter turns booking confirmations into calendar events.
type ConfirmationImporter struct {
	Deps
	Sender  string
	Subject string
}

// NewConfirmationImporter creates an importer for mail from sender whose
// subject contains subject.
func NewConfirmationImporter(d Deps, sender, subject string) *ConfirmationImporter {
	return &ConfirmationImporter{Deps: d, Sender: sender, Subject: subject}
}

func (c *ConfirmationImporter) Name() Name { return Confirmation }

// Run handles every unread message of every matching conversation.
func (c *ConfirmationImporter) Run(ctx context.Context) (Summary, error) {
	sum := Summary{Workflow: Confirmation}
	log := c.logger(ctx, Confirmation)

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
		for _, msg := range conv.Messages {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			if !msg.Unread {
				continue
			}
			c.observe(&sum, c.handle(ctx, msg))
		}
	}

	log.Info("confirmations processed",
		"processed", sum.Processed,
		"created", sum.Applied,
		"incomplete", sum.Incomplete,
		"failed", sum.Failed,
	)
	return sum, nil
}

func (c *ConfirmationImporter) handle(ctx context.Context, msg mailbox.Message) Outcome {
	log := c.logger(ctx, Confirmation).With(messageAttrs(msg)...)

	res := c.extractor().Confirmation(msg.Subject, msg.Body, msg.Received)
	rec, ok := res.Value()
	if !ok {
		log.Warn("reservation incomplete, leaving message unread",
			"missing", res.MissingString(),
			"error", res.Err(),
		)
		return OutcomeIncomplete
	}

	log = log.With(
		"title", rec.Title(),
		"start", rec.Start,
		"end", rec.End,
		"method", string(rec.Method),
	)
	log.Debug("reservation extracted")

	if c.DryRun {
		log.Info("dry run: would create event")
		return OutcomeSkipped
	}

	ev, err := c.Calendar.CreateEvent(ctx, calendar.NewEvent{
		Title:       rec.Title(),
		Description: rec.Description(msg.Subject),
		Start:       rec.Start,
		End:         rec.End,
	})
	if err != nil {
		log.Error("creating event failed", "error", err)
		return OutcomeFailed
	}

	if err := c.Mailbox.MarkRead(ctx, msg); err != nil {
		// The event exists; the next batch will create it again.
		log.Error("marking message read failed", "event_id", ev.ID, "error", err)
		return OutcomeFailed
	}

	log.Info("event created", "event_id", ev.ID)
	return OutcomeApplied
}
