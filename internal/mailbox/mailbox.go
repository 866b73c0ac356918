// Package mailbox reads chocoZAP notification mail and marks it read.
//
// Two backends implement Mailbox: an IMAP client built on go-imap and a
// Gmail API client. Searching never changes a message's read state; only
// MarkRead does.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backend identifies the mailbox implementation.
type Backend string

const (
	BackendIMAP  Backend = "imap"
	BackendGmail Backend = "gmail"
)

// Query selects notification mail.
type Query struct {
	// Subject is a phrase the subject must contain.
	Subject string

	// From is the sender address.
	From string

	// UnreadOnly restricts the search to conversations with unread mail.
	UnreadOnly bool
}

// Message is one notification as seen by the workflows.
type Message struct {
	ID             string
	ConversationID string
	From           string
	Subject        string

	// Body is plain text. HTML-only messages are flattened to text with
	// line structure preserved.
	Body string

	Received time.Time
	Unread   bool
}

// Conversation groups messages that belong to one thread. Backends without a
// thread model return one conversation per message.
type Conversation struct {
	ID       string
	Messages []Message
}

// Mailbox is the mailbox surface the workflows depend on.
type Mailbox interface {
	// Search returns the conversations matching q, oldest message first
	// within each conversation.
	Search(ctx context.Context, q Query) ([]Conversation, error)

	// MarkRead clears the unread state of msg.
	MarkRead(ctx context.Context, msg Message) error
}

// ServiceError wraps a failed mailbox service call.
type ServiceError struct {
	Backend Backend
	Op      string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("mailbox %s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// AuthError indicates that the mailbox rejected the configured credentials.
type AuthError struct {
	Backend Backend
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Backend, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
