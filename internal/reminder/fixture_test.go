package reminder_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"distask/internal/eventbus"
	"distask/internal/notify"
	"distask/internal/storage"
	"distask/internal/storage/storagetest"
	"distask/internal/transport/transporttest"
	"distask/pkg/logx"
)

var errBroken = errors.New("disk I/O error")

type fixture struct {
	store *storage.SQLiteStore
	out   *transporttest.Fake
	bus   eventbus.Bus
	prefs *notify.PreferenceManager
	r     *notify.Router

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: storagetest.NewStore(t),
		out:   transporttest.New(),
		bus:   eventbus.New(),
		now:   time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	f.prefs = notify.NewPreferenceManager(f.store, logx.Nop())
	f.r = notify.NewRouter(f.prefs, f.store, f.out, logx.Nop(), notify.WithClock(f.clock), notify.WithBus(f.bus))
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// at moves the shared clock and returns the new time.
func (f *fixture) at(t time.Time) time.Time {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
	return t
}

func (f *fixture) advance(d time.Duration) time.Time { return f.at(f.clock().Add(d)) }

func (f *fixture) userPrefs(t *testing.T, user, guild int64, p storage.PreferenceOverrides) {
	t.Helper()
	require.NoError(t, f.store.SetUserNotificationPrefs(context.Background(), user, guild, p))
}

// brokenTasks fails every read.
type brokenTasks struct{}

func (brokenTasks) ListGuilds(context.Context) ([]storage.Guild, error) { return nil, errBroken }
func (brokenTasks) FetchBoards(context.Context, int64) ([]storage.Board, error) {
	return nil, errBroken
}
func (brokenTasks) FetchTasks(context.Context, int64, bool) ([]storage.Task, error) {
	return nil, errBroken
}
func (brokenTasks) FetchTask(context.Context, int64) (storage.Task, error) {
	return storage.Task{}, errBroken
}
func (brokenTasks) FetchDueTasks(context.Context, time.Time) ([]storage.Task, error) {
	return nil, errBroken
}
