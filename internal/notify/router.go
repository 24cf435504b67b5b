package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"distask/internal/eventbus"
	"distask/internal/storage"
	"distask/internal/transport"
	"distask/pkg/logx"
)

// Outcome is the result of one Deliver call.
type Outcome string

const (
	OutcomeSent        Outcome = "sent"
	OutcomeDisabled    Outcome = "disabled"
	OutcomeQuietHours  Outcome = "quiet_hours"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeCircuitOpen Outcome = "circuit_open"
	OutcomeNoChannel   Outcome = "no_channel"
	OutcomeForbidden   Outcome = "forbidden"
	OutcomeFailed      Outcome = "failed"
)

// Sent reports whether the message reached the platform.
func (o Outcome) Sent() bool { return o == OutcomeSent }

// Request is one user-addressed notification.
type Request struct {
	Recipient int64
	Guild     int64
	Channel   int64 // required for channel delivery methods
	TaskID    int64 // 0 when not bound to a task; dedup only applies with a task
	Category  Category
	Message   transport.Message
	// DedupWindow overrides the category window when > 0.
	DedupWindow time.Duration
}

// DeliveryEvent is the payload of the notify.* bus topics.
type DeliveryEvent struct {
	Recipient int64
	Guild     int64
	Channel   int64
	TaskID    int64
	Category  Category
	Method    DeliveryMethod
	Outcome   Outcome
	Err       string
}

// Router is the single gateway for user-addressed notifications: preference
// gates, quiet hours and dedup run before anything is sent, and a record is
// written only after a successful delivery.
type Router struct {
	prefs   *PreferenceManager
	dedup   storage.DedupStore
	out     transport.Deliverer
	bus     eventbus.Bus
	log     logx.Logger
	now     func() time.Time
	breaker *breaker
}

type RouterOption func(*Router)

func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

func WithBus(b eventbus.Bus) RouterOption { return func(r *Router) { r.bus = b } }

func WithBreaker(cfg BreakerConfig) RouterOption {
	return func(r *Router) { r.breaker = newBreaker(cfg) }
}

func NewRouter(prefs *PreferenceManager, dedup storage.DedupStore, out transport.Deliverer, log logx.Logger, opts ...RouterOption) *Router {
	r := &Router{
		prefs:   prefs,
		dedup:   dedup,
		out:     out,
		log:     log,
		now:     time.Now,
		breaker: newBreaker(BreakerConfig{}),
	}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
	return r
}

// ConfigureBreaker swaps breaker settings; tracked failures are kept.
func (r *Router) ConfigureBreaker(cfg BreakerConfig) { r.breaker.configure(cfg) }

// BreakerSnapshot returns tracked and currently open delivery targets.
func (r *Router) BreakerSnapshot() (total, open int) { return r.breaker.snapshot(r.now()) }

// Deliver runs the gates in order and dispatches by the recipient's method.
func (r *Router) Deliver(ctx context.Context, req Request) Outcome {
	now := r.now()
	log := r.log.With(
		logx.Int64("user_id", req.Recipient),
		logx.Int64("guild_id", req.Guild),
		logx.String("category", req.Category.String()),
	)
	if req.TaskID != 0 {
		log = log.With(logx.Int64("task_id", req.TaskID))
	}

	p := r.prefs.Resolve(ctx, req.Recipient, req.Guild)
	if !p.Enabled(req.Category) {
		log.Debug("notification disabled by preference")
		return r.finish(req, "", OutcomeDisabled, nil)
	}
	if p.QuietAt(now) {
		log.Debug("recipient in quiet hours")
		return r.finish(req, "", OutcomeQuietHours, nil)
	}
	if dup := r.isDuplicate(ctx, log, req, now); dup {
		log.Debug("duplicate notification suppressed")
		return r.finish(req, "", OutcomeDuplicate, nil)
	}

	method := parseDeliveryMethod(string(p.DeliveryMethod))
	target := targetKey(method, req)
	if open, until := r.breaker.open(now, target); open {
		log.Debug("delivery circuit open", logx.String("target", target), logx.Time("until", until))
		return r.finish(req, method, OutcomeCircuitOpen, nil)
	}

	outcome, err := r.dispatch(ctx, method, req)
	if outcome == OutcomeNoChannel && err == nil {
		log.Warn("no channel for channel notification", logx.String("method", string(method)))
		return r.finish(req, method, outcome, nil)
	}
	if ctx.Err() == nil {
		r.breaker.record(now, target, err)
	}

	switch outcome {
	case OutcomeSent:
		log.Info("notification sent", logx.String("method", string(method)))
	case OutcomeForbidden, OutcomeNoChannel:
		log.Warn("delivery refused", logx.String("method", string(method)), logx.Err(err))
	default:
		log.Error("delivery failed", logx.String("method", string(method)), logx.Err(err))
	}

	if outcome.Sent() && req.TaskID != 0 {
		if rerr := r.dedup.RecordNotification(ctx, storage.NotificationRecord{
			UserID:         req.Recipient,
			GuildID:        req.Guild,
			TaskID:         req.TaskID,
			Category:       req.Category.String(),
			DeliveryMethod: string(method),
			SentAt:         now,
		}); rerr != nil {
			log.Error("recording notification failed", logx.Err(rerr))
		}
	}
	return r.finish(req, method, outcome, err)
}

// DeliverBulk delivers req to every recipient independently and returns how
// many were sent.
func (r *Router) DeliverBulk(ctx context.Context, recipients []int64, req Request) int {
	sent := 0
	for _, uid := range recipients {
		if ctx.Err() != nil {
			break
		}
		one := req
		one.Recipient = uid
		if r.Deliver(ctx, one).Sent() {
			sent++
		}
	}
	return sent
}

// isDuplicate fails open: a broken history lookup must not silence reminders.
func (r *Router) isDuplicate(ctx context.Context, log logx.Logger, req Request, now time.Time) bool {
	if req.TaskID == 0 {
		return false
	}
	window := req.DedupWindow
	if window <= 0 {
		window = req.Category.DedupWindow()
	}
	if window <= 0 {
		return false
	}
	dup, err := r.dedup.NotificationSentSince(ctx, req.Recipient, req.TaskID, req.Category.String(), now.Add(-window))
	if err != nil {
		log.Warn("dedup check failed; delivering", logx.Err(err))
		return false
	}
	return dup
}

func (r *Router) dispatch(ctx context.Context, method DeliveryMethod, req Request) (Outcome, error) {
	if method == DeliveryDM {
		return classify(r.out.SendDirect(ctx, req.Recipient, req.Message))
	}
	if req.Channel == 0 {
		return OutcomeNoChannel, nil
	}
	ch, err := r.out.FetchChannel(ctx, req.Channel)
	if err != nil {
		return classify(err)
	}
	if !ch.CanPost {
		return OutcomeNoChannel, fmt.Errorf("channel %d: %w", req.Channel, transport.ErrForbidden)
	}
	var mention int64
	if method == DeliveryChannelMention {
		mention = req.Recipient
	}
	return classify(r.out.SendChannel(ctx, req.Channel, req.Message, mention))
}

func classify(err error) (Outcome, error) {
	switch {
	case err == nil:
		return OutcomeSent, nil
	case errors.Is(err, transport.ErrForbidden):
		return OutcomeForbidden, err
	case errors.Is(err, transport.ErrNotFound):
		return OutcomeNoChannel, err
	default:
		return OutcomeFailed, err
	}
}

func targetKey(method DeliveryMethod, req Request) string {
	if method == DeliveryDM {
		return fmt.Sprintf("dm:%d", req.Recipient)
	}
	return fmt.Sprintf("chan:%d", req.Channel)
}

func (r *Router) finish(req Request, method DeliveryMethod, o Outcome, err error) Outcome {
	ev := DeliveryEvent{
		Recipient: req.Recipient,
		Guild:     req.Guild,
		Channel:   req.Channel,
		TaskID:    req.TaskID,
		Category:  req.Category,
		Method:    method,
		Outcome:   o,
	}
	if err != nil {
		ev.Err = err.Error()
	}
	topic := eventbus.TopicNotifySuppressed
	switch o {
	case OutcomeSent:
		topic = eventbus.TopicNotifySent
	case OutcomeForbidden, OutcomeFailed, OutcomeNoChannel:
		if method != "" {
			topic = eventbus.TopicNotifyFailed
		}
	}
	eventbus.Publish(r.bus, topic, ev)
	return o
}
