package transport

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var (
	// ErrForbidden marks a delivery the platform refused for permission reasons
	// (DMs disabled, bot blocked, no rights in the channel).
	ErrForbidden = errors.New("delivery forbidden")
	// ErrNotFound marks an unknown user or channel.
	ErrNotFound = errors.New("delivery target not found")
)

// Field is one labelled line of a Message.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is a platform-neutral notification payload. Adapters decide how it
// is rendered.
type Message struct {
	Title       string
	Description string
	Fields      []Field
	Footer      string
	Timestamp   time.Time
}

// AddField appends a field and returns the message for chaining.
func (m Message) AddField(name, value string, inline bool) Message {
	m.Fields = append(append([]Field(nil), m.Fields...), Field{Name: name, Value: value, Inline: inline})
	return m
}

type Channel struct {
	ID      int64
	Title   string
	Type    string
	CanPost bool
}

// Deliverer is the chat platform as seen by the notification core.
//
// Errors wrap ErrForbidden or ErrNotFound when the platform rejected the
// target; anything else is a transport failure.
type Deliverer interface {
	SendDirect(ctx context.Context, userID int64, msg Message) error
	// SendChannel posts to a channel. mentionUserID > 0 prefixes a mention of that user.
	SendChannel(ctx context.Context, channelID int64, msg Message, mentionUserID int64) error
	FetchChannel(ctx context.Context, channelID int64) (Channel, error)
}

// IsForbidden reports whether err is a permission refusal.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// MentionUser returns the inline token adapters render as a user mention.
func MentionUser(userID int64) string { return "<@" + strconv.FormatInt(userID, 10) + ">" }
