// Package testutil provides in-memory collaborators for workflow tests.
package testutil

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/nhle/chocosync/internal/mailbox"
)

// FakeMailbox is an in-memory mailbox.Mailbox. Conversations are returned in
// insertion order; a conversation matches UnreadOnly when any of its
// messages is unread, as Gmail's thread search does.
type FakeMailbox struct {
	mu            sync.Mutex
	conversations []mailbox.Conversation

	// SearchErr, when set, fails every Search.
	SearchErr error

	// MarkReadErr fails MarkRead for the listed message ids.
	MarkReadErr map[string]error

	Queries []mailbox.Query
	ReadIDs []string
}

// NewFakeMailbox returns an empty mailbox.
func NewFakeMailbox() *FakeMailbox {
	return &FakeMailbox{MarkReadErr: make(map[string]error)}
}

// Add appends a conversation. Messages get the conversation id.
func (f *FakeMailbox) Add(conversationID string, msgs ...mailbox.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	conv := mailbox.Conversation{ID: conversationID}
	for _, m := range msgs {
		m.ConversationID = conversationID
		conv.Messages = append(conv.Messages, m)
	}
	f.conversations = append(f.conversations, conv)
}

func (f *FakeMailbox) Search(_ context.Context, q mailbox.Query) ([]mailbox.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Queries = append(f.Queries, q)
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}

	var out []mailbox.Conversation
	for _, conv := range f.conversations {
		if !f.matches(conv, q) {
			continue
		}
		out = append(out, mailbox.Conversation{
			ID:       conv.ID,
			Messages: slices.Clone(conv.Messages),
		})
	}
	return out, nil
}

func (f *FakeMailbox) matches(conv mailbox.Conversation, q mailbox.Query) bool {
	subjectOK, fromOK, unreadOK := false, false, !q.UnreadOnly
	for _, m := range conv.Messages {
		if strings.Contains(m.Subject, q.Subject) {
			subjectOK = true
		}
		if q.From == "" || strings.Contains(m.From, q.From) {
			fromOK = true
		}
		if m.Unread {
			unreadOK = true
		}
	}
	return subjectOK && fromOK && unreadOK
}

func (f *FakeMailbox) MarkRead(_ context.Context, msg mailbox.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.MarkReadErr[msg.ID]; err != nil {
		return err
	}
	for ci := range f.conversations {
		for mi := range f.conversations[ci].Messages {
			if f.conversations[ci].Messages[mi].ID == msg.ID {
				f.conversations[ci].Messages[mi].Unread = false
			}
		}
	}
	f.ReadIDs = append(f.ReadIDs, msg.ID)
	return nil
}

// Unread reports whether the message with id is still unread.
func (f *FakeMailbox) Unread(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, conv := range f.conversations {
		for _, m := range conv.Messages {
			if m.ID == id {
				return m.Unread
			}
		}
	}
	return false
}

var _ mailbox.Mailbox = (*FakeMailbox)(nil)
