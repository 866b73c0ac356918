package mailbox

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// clientOptions decodes ISO-2022-JP and other non-UTF-8 encoded-word
// subjects in envelopes.
var clientOptions = &imapclient.Options{WordDecoder: wordDecoder}

// IMAPMailbox searches an IMAP folder. IMAP has no thread model in the base
// protocol, so every message is returned as its own conversation.
type IMAPMailbox struct {
	host     string
	port     string
	username string
	password string
	tls      bool
	folder   string
}

// NewIMAPMailbox creates a new IMAP mailbox configuration. An empty folder
// means INBOX.
func NewIMAPMailbox(
	host, port, username, password string, tls bool, folder string,
) *IMAPMailbox {
	if folder == "" {
		folder = "INBOX"
	}
	return &IMAPMailbox{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      tls,
		folder:   folder,
	}
}

// Connect establishes a connection to the IMAP server, authenticates,
// and returns the connected client. The caller is responsible for
// calling Logout on the returned client.
func (m *IMAPMailbox) Connect(ctx context.Context) (*imapclient.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := m.host + ":" + m.port

	var client *imapclient.Client
	var err error

	if m.tls {
		client, err = imapclient.DialTLS(addr, clientOptions)
	} else {
		client, err = imapclient.DialStartTLS(addr, clientOptions)
	}
	if err != nil {
		return nil, &ServiceError{
			Backend: BackendIMAP,
			Op:      "connect",
			Err:     fmt.Errorf("dialing %s: %w", addr, err),
		}
	}

	if err := client.Login(m.username, m.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &AuthError{
			Backend: BackendIMAP,
			Message: fmt.Sprintf(
				"authentication failed for %s: %v",
				m.username, err,
			),
		}
	}

	return client, nil
}

// Search runs a UID SEARCH on the folder and fetches every match with
// BODY.PEEK so that the search leaves \Seen untouched.
func (m *IMAPMailbox) Search(ctx context.Context, q Query) ([]Conversation, error) {
	client, err := m.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(m.folder, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, m.serviceError("select", fmt.Errorf("selecting %s: %w", m.folder, err))
	}

	searchData, err := client.UIDSearch(searchCriteria(q), nil).Wait()
	if err != nil {
		return nil, m.serviceError("search", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	slices.Sort(uids)

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:     true,
		Flags:        true,
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), fetchOpts)
	defer fetchCmd.Close()

	var conversations []Conversation
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		message := messageFromBuffer(buf, buf.FindBodySection(bodySection))
		conversations = append(conversations, Conversation{
			ID:       message.ID,
			Messages: []Message{message},
		})
	}

	if err := fetchCmd.Close(); err != nil {
		return conversations, m.serviceError("fetch", err)
	}

	return conversations, nil
}

// MarkRead adds \Seen to the message.
func (m *IMAPMailbox) MarkRead(ctx context.Context, msg Message) error {
	uid, err := parseUID(msg.ID)
	if err != nil {
		return err
	}

	client, err := m.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(m.folder, nil).Wait(); err != nil {
		return m.serviceError("select", fmt.Errorf("selecting %s: %w", m.folder, err))
	}

	storeCmd := client.Store(imap.UIDSetNum(uid), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)

	if err := storeCmd.Close(); err != nil {
		return m.serviceError("mark read", fmt.Errorf("uid %d: %w", uid, err))
	}
	return nil
}

func (m *IMAPMailbox) serviceError(op string, err error) error {
	return &ServiceError{Backend: BackendIMAP, Op: op, Err: err}
}

// searchCriteria translates a Query into IMAP SEARCH keys.
func searchCriteria(q Query) *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{}
	if q.Subject != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key: "Subject", Value: q.Subject,
		})
	}
	if q.From != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key: "From", Value: q.From,
		})
	}
	if q.UnreadOnly {
		criteria.NotFlag = append(criteria.NotFlag, imap.FlagSeen)
	}
	return criteria
}

// messageFromBuffer builds a Message from fetched envelope and flag data and
// the raw RFC 5322 body.
func messageFromBuffer(buf *imapclient.FetchMessageBuffer, raw []byte) Message {
	msg := Message{
		ID:     strconv.FormatUint(uint64(buf.UID), 10),
		Unread: !slices.Contains(buf.Flags, imap.FlagSeen),
	}
	msg.ConversationID = msg.ID

	received := buf.InternalDate
	if buf.Envelope != nil {
		msg.Subject = buf.Envelope.Subject
		if len(buf.Envelope.From) > 0 {
			msg.From = buf.Envelope.From[0].Addr()
		}
		if received.IsZero() {
			received = buf.Envelope.Date
		}
	}
	msg.Received = received

	if raw != nil {
		textBody, htmlBody := parseMIMEBody(raw)
		msg.Body = plainBody(textBody, htmlBody)
	}

	return msg
}

func parseUID(id string) (imap.UID, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid IMAP message id %q", id)
	}
	return imap.UID(n), nil
}

var _ Mailbox = (*IMAPMailbox)(nil)
