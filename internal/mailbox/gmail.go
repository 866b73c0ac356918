package mailbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/emersion/go-message/charset"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const labelUnread = "UNREAD"

// GmailMailbox reads threads through the Gmail API.
type GmailMailbox struct {
	svc  *gmail.Service
	user string
}

// NewGmailMailbox builds a Gmail client on an authorized HTTP client. Extra
// options (such as a test endpoint) are passed through to the service.
func NewGmailMailbox(
	ctx context.Context, client *http.Client, user string, opts ...option.ClientOption,
) (*GmailMailbox, error) {
	if user == "" {
		user = "me"
	}
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	return &GmailMailbox{svc: svc, user: user}, nil
}

// Search lists matching threads and loads each one in full.
func (g *GmailMailbox) Search(ctx context.Context, q Query) ([]Conversation, error) {
	query := gmailQuery(q)

	var threadIDs []string
	pageToken := ""
	for {
		call := g.svc.Users.Threads.List(g.user).Q(query).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, g.serviceError("list threads", err)
		}
		for _, t := range resp.Threads {
			threadIDs = append(threadIDs, t.Id)
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	conversations := make([]Conversation, 0, len(threadIDs))
	for _, id := range threadIDs {
		thread, err := g.svc.Users.Threads.Get(g.user, id).Format("full").Context(ctx).Do()
		if err != nil {
			return conversations, g.serviceError("get thread", fmt.Errorf("%s: %w", id, err))
		}
		conversations = append(conversations, conversationFromThread(thread))
	}

	return conversations, nil
}

// Ping lists at most one matching thread to check access to the mailbox.
func (g *GmailMailbox) Ping(ctx context.Context, q Query) error {
	_, err := g.svc.Users.Threads.List(g.user).Q(gmailQuery(q)).MaxResults(1).Context(ctx).Do()
	if err != nil {
		return g.serviceError("list threads", err)
	}
	return nil
}

// MarkRead removes the UNREAD label from the message.
func (g *GmailMailbox) MarkRead(ctx context.Context, msg Message) error {
	req := &gmail.ModifyMessageRequest{RemoveLabelIds: []string{labelUnread}}
	if _, err := g.svc.Users.Messages.Modify(g.user, msg.ID, req).Context(ctx).Do(); err != nil {
		return g.serviceError("mark read", fmt.Errorf("%s: %w", msg.ID, err))
	}
	return nil
}

func (g *GmailMailbox) serviceError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return &AuthError{Backend: BackendGmail, Message: apiErr.Message}
	}
	return &ServiceError{Backend: BackendGmail, Op: op, Err: err}
}

// gmailQuery renders a Query in Gmail search syntax.
func gmailQuery(q Query) string {
	var terms []string
	if q.Subject != "" {
		terms = append(terms, fmt.Sprintf("subject:%q", q.Subject))
	}
	if q.From != "" {
		terms = append(terms, fmt.Sprintf("from:%q", q.From))
	}
	if q.UnreadOnly {
		terms = append(terms, "is:unread")
	}
	return strings.Join(terms, " ")
}

func conversationFromThread(thread *gmail.Thread) Conversation {
	conv := Conversation{ID: thread.Id}
	for _, m := range thread.Messages {
		conv.Messages = append(conv.Messages, messageFromGmail(m))
	}
	slices.SortStableFunc(conv.Messages, func(a, b Message) int {
		return a.Received.Compare(b.Received)
	})
	return conv
}

func messageFromGmail(m *gmail.Message) Message {
	msg := Message{
		ID:             m.Id,
		ConversationID: m.ThreadId,
		Received:       time.UnixMilli(m.InternalDate),
		Unread:         slices.Contains(m.LabelIds, labelUnread),
	}
	if m.Payload == nil {
		return msg
	}

	msg.Subject = decodeHeader(headerValue(m.Payload.Headers, "Subject"))
	msg.From = decodeHeader(headerValue(m.Payload.Headers, "From"))

	var textBody, htmlBody string
	walkParts(m.Payload, func(p *gmail.MessagePart) {
		switch {
		case strings.HasPrefix(p.MimeType, "text/plain") && textBody == "":
			textBody = partText(p)
		case strings.HasPrefix(p.MimeType, "text/html") && htmlBody == "":
			htmlBody = partText(p)
		}
	})
	msg.Body = plainBody(textBody, htmlBody)

	return msg
}

// walkParts visits p and its descendants depth first, skipping attachments.
func walkParts(p *gmail.MessagePart, visit func(*gmail.MessagePart)) {
	if p == nil || p.Filename != "" {
		return
	}
	visit(p)
	for _, child := range p.Parts {
		walkParts(child, visit)
	}
}

// partText decodes a part body and converts it to UTF-8 using the charset
// declared in its Content-Type.
func partText(p *gmail.MessagePart) string {
	if p.Body == nil || p.Body.Data == "" {
		return ""
	}
	raw, err := decodeBase64URL(p.Body.Data)
	if err != nil {
		return ""
	}

	_, params, err := mime.ParseMediaType(headerValue(p.Headers, "Content-Type"))
	if err != nil {
		return string(raw)
	}
	cs := strings.ToLower(params["charset"])
	if cs == "" || cs == "utf-8" || cs == "us-ascii" {
		return string(raw)
	}

	r, err := charset.Reader(cs, strings.NewReader(string(raw)))
	if err != nil {
		return string(raw)
	}
	converted, err := io.ReadAll(r)
	if err != nil {
		return string(raw)
	}
	return string(converted)
}

// decodeBase64URL accepts Gmail body data with or without padding.
func decodeBase64URL(data string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
}

func headerValue(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

func decodeHeader(v string) string {
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

var _ Mailbox = (*GmailMailbox)(nil)
