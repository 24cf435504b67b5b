package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"distask/internal/transport"
)

const (
	consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"
	defaultLogFile    = "./distask.log"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Channel ChannelConfig

	// Output replaces stdout for the console sink.
	Output io.Writer
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// ChannelConfig forwards log lines at or above MinLevel (default WARN) to a
// chat channel, at most RatePerSec lines per second.
type ChannelConfig struct {
	Enabled    bool
	ChannelID  int64
	MinLevel   string
	RatePerSec int
}

// Service owns the sinks. Apply rebuilds them in place, so loggers handed
// out earlier pick up the new config.
type Service struct {
	mu   sync.Mutex
	root atomic.Pointer[zerolog.Logger]
	file *os.File

	sender    transport.Deliverer
	channelID int64
	limiter   *rate.Limiter
	minLevel  zerolog.Level

	queue      chan channelLine
	workerOnce sync.Once
	stopWorker context.CancelFunc
	workerDone chan struct{}
}

// New applies cfg and returns the service with its root logger. sender may
// be nil until SetSender is called; the channel sink drops lines meanwhile.
func New(cfg Config, sender transport.Deliverer) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat

	s := &Service{sender: sender, queue: make(chan channelLine, 256)}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) SetSender(sender transport.Deliverer) {
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
}

// Apply swaps outputs and levels. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.minLevel = parseLevel(cfg.Channel.MinLevel, zerolog.WarnLevel)
	rps := max(1, cfg.Channel.RatePerSec)
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	s.channelID = cfg.Channel.ChannelID

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, newConsoleWriter(out))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogFile
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: opening log file %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if cfg.Channel.Enabled {
		s.startWorker()
		writers = append(writers, &channelWriter{svc: s})
	}
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(out))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

// Close stops the channel worker and closes the log file.
func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	stop, done := s.stopWorker, s.workerDone
	s.stopWorker = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	if f != nil {
		return f.Close()
	}
	return nil
}

func newConsoleWriter(w io.Writer) io.Writer {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat, NoColor: w != os.Stdout}
	cw.FormatCaller = func(i any) string {
		s, _ := i.(string)
		return s
	}
	return cw
}
