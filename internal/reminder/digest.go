package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"distask/internal/eventbus"
	"distask/internal/notify"
	"distask/internal/storage"
	"distask/internal/transport"
	"distask/pkg/logx"
)

// DigestEvent is the payload of eventbus.TopicDigestSent.
type DigestEvent struct {
	Guild   int64
	Channel int64
	Kind    string
	Tasks   int
}

type digestKey struct {
	channel int64
	kind    notify.DigestKind
}

// DigestEngine posts daily and weekly task digests to each board channel.
//
// A digest is a channel broadcast: it goes straight to the Deliverer rather
// than through the Router. The durable channel digest history is the
// authority for "already sent"; sent is only a cache of it.
type DigestEngine struct {
	tasks storage.TaskReader
	dedup storage.DedupStore
	prefs *notify.PreferenceManager
	out   transport.Deliverer
	bus   eventbus.Bus
	log   logx.Logger

	mu   sync.Mutex
	sent map[digestKey]time.Time
}

func NewDigestEngine(tasks storage.TaskReader, dedup storage.DedupStore, prefs *notify.PreferenceManager, out transport.Deliverer, bus eventbus.Bus, log logx.Logger) *DigestEngine {
	return &DigestEngine{
		tasks: tasks,
		dedup: dedup,
		prefs: prefs,
		out:   out,
		bus:   bus,
		log:   log,
		sent:  make(map[digestKey]time.Time),
	}
}

func (e *DigestEngine) Name() string { return "digest" }

func (e *DigestEngine) Run(ctx context.Context, now time.Time) error {
	guilds, err := e.tasks.ListGuilds(ctx)
	if err != nil {
		return fmt.Errorf("list guilds: %w", err)
	}
	for _, g := range guilds {
		if err := e.RunGuild(ctx, g.ID, now); err != nil {
			return err
		}
	}
	e.pruneCache(now)
	return nil
}

// RunGuild evaluates every board channel of one guild.
func (e *DigestEngine) RunGuild(ctx context.Context, guildID int64, now time.Time) error {
	channels, err := e.channelTasks(ctx, guildID)
	if err != nil {
		return err
	}
	for _, ch := range channels {
		for _, kind := range []notify.DigestKind{notify.DigestDaily, notify.DigestWeekly} {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.maybeSend(ctx, guildID, ch, kind, now)
		}
	}
	return nil
}

type channelGroup struct {
	id    int64
	tasks []storage.Task
}

// channelTasks groups the guild's open tasks by board channel, in board order.
func (e *DigestEngine) channelTasks(ctx context.Context, guildID int64) ([]*channelGroup, error) {
	boards, err := e.tasks.FetchBoards(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("fetch boards for guild %d: %w", guildID, err)
	}
	var order []*channelGroup
	byID := map[int64]*channelGroup{}
	for _, b := range boards {
		tasks, err := e.tasks.FetchTasks(ctx, b.ID, false)
		if err != nil {
			return nil, fmt.Errorf("fetch tasks for board %d: %w", b.ID, err)
		}
		if len(tasks) == 0 {
			continue
		}
		g := byID[b.ChannelID]
		if g == nil {
			g = &channelGroup{id: b.ChannelID}
			byID[b.ChannelID] = g
			order = append(order, g)
		}
		for _, t := range tasks {
			if t.BoardName == "" {
				t.BoardName = b.Name
			}
			g.tasks = append(g.tasks, t)
		}
	}
	return order, nil
}

func (e *DigestEngine) maybeSend(ctx context.Context, guildID int64, ch *channelGroup, kind notify.DigestKind, now time.Time) {
	category := notify.CategoryDailyDigest
	if kind == notify.DigestWeekly {
		category = notify.CategoryWeeklyDigest
	}
	window := category.DedupWindow()
	log := e.log.With(logx.Int64("guild_id", guildID), logx.Int64("channel_id", ch.id), logx.String("kind", category.String()))

	assignees := uniqueAssignees(ch.tasks)
	if !e.due(ctx, guildID, assignees, kind, now) {
		return
	}
	if e.alreadySent(ctx, log, guildID, ch.id, kind, category, window, now) {
		return
	}
	for _, uid := range assignees {
		if e.prefs.IsQuietHours(ctx, uid, guildID, now) {
			log.Debug("digest suppressed by quiet hours", logx.Int64("user_id", uid))
			return
		}
	}

	var msg transport.Message
	if kind == notify.DigestWeekly {
		msg = renderWeekly(ch.tasks, now)
	} else {
		msg = renderDaily(ch.tasks, now)
	}
	if err := e.out.SendChannel(ctx, ch.id, msg, 0); err != nil {
		log.Warn("digest delivery failed", logx.Err(err))
		return
	}
	if err := e.dedup.RecordChannelDigest(ctx, ch.id, guildID, category.String(), now); err != nil {
		log.Error("recording digest failed", logx.Err(err))
	}
	e.remember(digestKey{ch.id, kind}, now)
	log.Info("digest sent", logx.Int("tasks", len(ch.tasks)))
	eventbus.Publish(e.bus, eventbus.TopicDigestSent, DigestEvent{Guild: guildID, Channel: ch.id, Kind: category.String(), Tasks: len(ch.tasks)})
}

// due reports whether any assignee's digest time is now, falling back to the
// guild-level schedule when none fires.
func (e *DigestEngine) due(ctx context.Context, guildID int64, assignees []int64, kind notify.DigestKind, now time.Time) bool {
	for _, uid := range assignees {
		if e.prefs.ShouldSendDigestNow(ctx, uid, guildID, kind, now) {
			return true
		}
	}
	return e.prefs.ResolveGuild(ctx, guildID).DigestDue(kind, now)
}

// alreadySent consults the cache, then the durable history. A failing
// history lookup counts as sent: a store that cannot answer is unlikely to
// record the marker either, and a repeated digest reaches every member.
func (e *DigestEngine) alreadySent(ctx context.Context, log logx.Logger, guildID, channelID int64, kind notify.DigestKind, category notify.Category, window time.Duration, now time.Time) bool {
	key := digestKey{channelID, kind}
	e.mu.Lock()
	at, ok := e.sent[key]
	e.mu.Unlock()
	if ok && now.Sub(at) < window {
		return true
	}
	sent, err := e.dedup.ChannelDigestSentSince(ctx, channelID, guildID, category.String(), now.Add(-window))
	if err != nil {
		log.Warn("digest history lookup failed; skipping", logx.Err(err))
		return true
	}
	return sent
}

func (e *DigestEngine) remember(key digestKey, at time.Time) {
	e.mu.Lock()
	e.sent[key] = at
	e.mu.Unlock()
}

func (e *DigestEngine) pruneCache(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, at := range e.sent {
		if now.Sub(at) > notify.CategoryWeeklyDigest.DedupWindow() {
			delete(e.sent, k)
		}
	}
}

func uniqueAssignees(tasks []storage.Task) []int64 {
	seen := map[int64]struct{}{}
	var out []int64
	for _, t := range tasks {
		for _, uid := range t.AssigneeIDs {
			if _, ok := seen[uid]; ok {
				continue
			}
			seen[uid] = struct{}{}
			out = append(out, uid)
		}
	}
	return out
}
