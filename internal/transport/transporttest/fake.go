// Package transporttest provides a recording Deliverer for tests.
package transporttest

import (
	"context"
	"sync"

	"distask/internal/transport"
)

// Sent is one recorded delivery. UserID is set for direct messages,
// ChannelID for channel posts.
type Sent struct {
	UserID    int64
	ChannelID int64
	Mention   int64
	Message   transport.Message
}

// Fake records deliveries. Every channel can be posted to unless listed in
// Channels; errors are returned per user or channel id.
type Fake struct {
	mu sync.Mutex

	Channels   map[int64]transport.Channel
	DirectErr  map[int64]error
	ChannelErr map[int64]error
	FetchErr   map[int64]error
	sent       []Sent
	fetchCalls int
}

func New() *Fake {
	return &Fake{
		Channels:   map[int64]transport.Channel{},
		DirectErr:  map[int64]error{},
		ChannelErr: map[int64]error{},
		FetchErr:   map[int64]error{},
	}
}

func (f *Fake) SendDirect(ctx context.Context, userID int64, msg transport.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.DirectErr[userID]; err != nil {
		return err
	}
	f.sent = append(f.sent, Sent{UserID: userID, Message: msg})
	return nil
}

func (f *Fake) SendChannel(ctx context.Context, channelID int64, msg transport.Message, mention int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.ChannelErr[channelID]; err != nil {
		return err
	}
	f.sent = append(f.sent, Sent{ChannelID: channelID, Mention: mention, Message: msg})
	return nil
}

func (f *Fake) FetchChannel(ctx context.Context, channelID int64) (transport.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if err := f.FetchErr[channelID]; err != nil {
		return transport.Channel{}, err
	}
	if ch, ok := f.Channels[channelID]; ok {
		return ch, nil
	}
	return transport.Channel{ID: channelID, Type: "group", CanPost: true}, nil
}

// SetDirectErr makes direct messages to userID fail with err (nil clears).
func (f *Fake) SetDirectErr(userID int64, err error) {
	f.mu.Lock()
	f.DirectErr[userID] = err
	f.mu.Unlock()
}

// SetChannelErr makes posts to channelID fail with err (nil clears).
func (f *Fake) SetChannelErr(channelID int64, err error) {
	f.mu.Lock()
	f.ChannelErr[channelID] = err
	f.mu.Unlock()
}

// Sent returns a copy of all recorded deliveries.
func (f *Fake) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

// ToChannel returns deliveries posted to channelID.
func (f *Fake) ToChannel(channelID int64) []Sent {
	var out []Sent
	for _, s := range f.Sent() {
		if s.ChannelID == channelID {
			out = append(out, s)
		}
	}
	return out
}

// ToUser returns direct messages to userID.
func (f *Fake) ToUser(userID int64) []Sent {
	var out []Sent
	for _, s := range f.Sent() {
		if s.UserID == userID && s.ChannelID == 0 {
			out = append(out, s)
		}
	}
	return out
}

// FetchCalls returns how many times FetchChannel was called.
func (f *Fake) FetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

func (f *Fake) Reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}

var _ transport.Deliverer = (*Fake)(nil)
