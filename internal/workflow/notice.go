package workflow

import (
	"context"

	"github.com/nhle/chocosync/internal/mailbox"
)

// NoticeAcknowledger marks day-before reminder mail read.
type NoticeAcknowledger struct {
	Deps
	Sender  string
	Subject string
}

func NewNoticeAcknowledger(d Deps, sender, subject string) *NoticeAcknowledger {
	return &NoticeAcknowledger{Deps: d, Sender: sender, Subject: subject}
}

func (n *NoticeAcknowledger) Name() Name { return Notice }

// Run marks every unread message of every matching conversation read.
func (n *NoticeAcknowledger) Run(ctx context.Context) (Summary, error) {
	sum := Summary{Workflow: Notice}
	log := n.logger(ctx, Notice)

	convs, err := n.search(ctx, &sum, mailbox.Query{
		Subject:    n.Subject,
		From:       n.Sender,
		UnreadOnly: true,
	})
	if err != nil {
		return sum, err
	}

	for _, conv := range convs {
		for _, msg := range conv.Messages {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			if !msg.Unread {
				continue
			}

			if n.DryRun {
				log.Info("dry run: would mark notice read", messageAttrs(msg)...)
				n.observe(&sum, OutcomeSkipped)
				continue
			}

			if err := n.Mailbox.MarkRead(ctx, msg); err != nil {
				log.Error("marking notice read failed", append(messageAttrs(msg), "error", err)...)
				n.observe(&sum, OutcomeFailed)
				continue
			}
			n.observe(&sum, OutcomeApplied)
		}
	}

	log.Info("notices acknowledged", "processed", sum.Processed, "failed", sum.Failed)
	return sum, nil
}
