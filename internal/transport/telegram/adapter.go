// Package telegram delivers notifications through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"distask/internal/transport"
	"distask/pkg/logx"
)

type Config struct {
	Token string
	// RatePerSec caps outgoing messages across all chats (default 20).
	RatePerSec int
	// RequestTimeout bounds a single API call (default 10s).
	RequestTimeout time.Duration
}

// Adapter implements transport.Deliverer. Guilds map to Telegram groups,
// board channels to chats and users to Telegram user ids.
type Adapter struct {
	bot     *tele.Bot
	log     logx.Logger
	limiter *rate.Limiter
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 20
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{bot: b, log: log, limiter: rate.NewLimiter(rate.Limit(rps), rps)}, nil
}

func (a *Adapter) SendDirect(ctx context.Context, userID int64, msg transport.Message) error {
	return a.send(ctx, &tele.User{ID: userID}, render(msg, 0))
}

func (a *Adapter) SendChannel(ctx context.Context, channelID int64, msg transport.Message, mentionUserID int64) error {
	return a.send(ctx, &tele.Chat{ID: channelID}, render(msg, mentionUserID))
}

// FetchChannel resolves a chat and whether the bot may post in it.
func (a *Adapter) FetchChannel(ctx context.Context, channelID int64) (transport.Channel, error) {
	if err := ctx.Err(); err != nil {
		return transport.Channel{}, err
	}
	chat, err := a.bot.ChatByID(channelID)
	if err != nil {
		return transport.Channel{}, classify(err)
	}
	ch := transport.Channel{ID: chat.ID, Title: chat.Title, Type: string(chat.Type), CanPost: true}
	if chat.Type == tele.ChatPrivate || a.bot.Me == nil {
		return ch, nil
	}
	member, err := a.bot.ChatMemberOf(chat, a.bot.Me)
	if err != nil {
		return transport.Channel{}, classify(err)
	}
	ch.CanPost = canPost(chat.Type, member)
	return ch, nil
}

func canPost(t tele.ChatType, m *tele.ChatMember) bool {
	switch m.Role {
	case tele.Left, tele.Kicked:
		return false
	case tele.Creator:
		return true
	}
	if t == tele.ChatChannel {
		return m.Role == tele.Administrator && m.Rights.CanPostMessages
	}
	if m.Role == tele.Restricted {
		return m.Rights.CanSendMessages
	}
	return true
}

func (a *Adapter) send(ctx context.Context, to tele.Recipient, text string) error {
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true}
	for _, chunk := range splitText(text, textLimit) {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := a.bot.Send(to, chunk, opts); err != nil {
			err = classify(err)
			a.log.Debug("telegram send failed", logx.String("to", to.Recipient()), logx.Err(err))
			return err
		}
	}
	return nil
}

// classify wraps Bot API errors with the transport sentinels.
func classify(err error) error {
	var apiErr *tele.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	desc := strings.ToLower(apiErr.Description)
	switch {
	case apiErr.Code == 403:
		return fmt.Errorf("%w: %v", transport.ErrForbidden, err)
	case strings.Contains(desc, "chat not found"), strings.Contains(desc, "user not found"):
		return fmt.Errorf("%w: %v", transport.ErrNotFound, err)
	case strings.Contains(desc, "not enough rights"), strings.Contains(desc, "have no rights"):
		return fmt.Errorf("%w: %v", transport.ErrForbidden, err)
	}
	return err
}

var _ transport.Deliverer = (*Adapter)(nil)
