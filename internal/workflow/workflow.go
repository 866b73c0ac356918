// Package workflow reconciles chocoZAP notification mail with the calendar.
//
// Three workflows run per batch: confirmations become events, cancellations
// delete the matching event, and day-before notices are acknowledged. Every
// message is handled independently; a failure on one message is logged and
// leaves that message unread so the next batch retries it.
package workflow

import (
	"context"
	"fmt"

	"github.com/nhle/chocosync/internal/calendar"
	"github.com/nhle/chocosync/internal/extract"
	"github.com/nhle/chocosync/internal/logging"
	"github.com/nhle/chocosync/internal/mailbox"
	"github.com/nhle/chocosync/internal/metrics"
)

// Name identifies a workflow in logs, metrics and reports.
type Name string

const (
	Confirmation Name = "confirmation"
	Cancellation Name = "cancellation"
	Notice       Name = "notice"
)

// Outcome is what happened to one message.
type Outcome string

const (
	// OutcomeApplied: the calendar change (if any) succeeded and the message
	// was marked read.
	OutcomeApplied Outcome = "applied"

	// OutcomeIncomplete: extraction failed; the message stays unread.
	OutcomeIncomplete Outcome = "incomplete"

	// OutcomeFailed: a mailbox or calendar call failed; the message stays
	// unread.
	OutcomeFailed Outcome = "failed"

	// OutcomeNotFound: a cancellation matched no event; the message was
	// still marked read.
	OutcomeNotFound Outcome = "not_found"

	// OutcomeSkipped: dry run, nothing was changed.
	OutcomeSkipped Outcome = "skipped"
)

// Summary counts what one workflow did in one run.
type Summary struct {
	Workflow      Name
	Conversations int
	Processed     int
	Applied       int
	Incomplete    int
	Failed        int
	NotFound      int
	Skipped       int

	// Err is set when the workflow could not run at all (search failed).
	Err error
}

func (s *Summary) record(o Outcome) {
	s.Processed++
	switch o {
	case OutcomeApplied:
		s.Applied++
	case OutcomeIncomplete:
		s.Incomplete++
	case OutcomeFailed:
		s.Failed++
	case OutcomeNotFound:
		s.NotFound++
	case OutcomeSkipped:
		s.Skipped++
	}
}

// Workflow is one of the three batch steps.
type Workflow interface {
	Name() Name
	Run(ctx context.Context) (Summary, error)
}

// Deps are the collaborators every workflow needs. Logger and Metrics may be
// nil.
type Deps struct {
	Mailbox   mailbox.Mailbox
	Calendar  calendar.Calendar
	Extractor *extract.Extractor
	Logger    *logging.Logger
	Metrics   *metrics.Metrics

	// DryRun extracts and logs but changes neither calendar nor mailbox.
	DryRun bool
}

func (d Deps) logger(ctx context.Context, name Name) *logging.Logger {
	l := d.Logger
	if l == nil {
		l = logging.Nop()
	}
	return l.WithContext(ctx).With("workflow", string(name))
}

func (d Deps) extractor() *extract.Extractor {
	if d.Extractor == nil {
		return extract.New()
	}
	return d.Extractor
}

// observe records o in the summary and in metrics.
func (d Deps) observe(sum *Summary, o Outcome) {
	sum.record(o)
	d.Metrics.ObserveMessage(string(sum.Workflow), string(o))
}

// search runs q and counts the conversations found.
func (d Deps) search(ctx context.Context, sum *Summary, q mailbox.Query) ([]mailbox.Conversation, error) {
	convs, err := d.Mailbox.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("searching %s mail: %w", sum.Workflow, err)
	}
	sum.Conversations = len(convs)
	return convs, nil
}

func messageAttrs(msg mailbox.Message) []any {
	return []any{"message_id", msg.ID, "subject", msg.Subject}
}
