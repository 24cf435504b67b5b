package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"distask/internal/transport"
)

const channelSendTimeout = 10 * time.Second

type channelLine struct {
	channelID int64
	msg       transport.Message
}

// startWorker must be called with s.mu held.
func (s *Service) startWorker() {
	s.workerOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopWorker = cancel
		s.workerDone = make(chan struct{})
		go func() {
			defer close(s.workerDone)
			s.channelWorker(ctx)
		}()
	})
}

func (s *Service) channelWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-s.queue:
			s.mu.Lock()
			sender := s.sender
			s.mu.Unlock()
			if sender == nil {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, channelSendTimeout)
			_ = sender.SendChannel(sctx, line.channelID, line.msg, 0)
			cancel()
		}
	}
}

// channelWriter is the zerolog sink feeding the worker. It never blocks the
// caller: lines over the rate or past a full queue are dropped.
type channelWriter struct{ svc *Service }

func (w *channelWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *channelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	s.mu.Lock()
	channelID, lim, minLevel := s.channelID, s.limiter, s.minLevel
	s.mu.Unlock()

	if channelID == 0 || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	msg, ok := formatLogMessage(p)
	if !ok {
		return len(p), nil
	}
	select {
	case s.queue <- channelLine{channelID: channelID, msg: msg}:
	default:
	}
	return len(p), nil
}

// formatLogMessage turns a zerolog JSON line into a chat message with one
// field per key, sorted by name.
func formatLogMessage(p []byte) (transport.Message, bool) {
	p = bytes.TrimSpace(p)
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		if len(p) == 0 {
			return transport.Message{}, false
		}
		return transport.Message{Title: "log", Description: truncate(string(p), 3500)}, true
	}

	lvl, _ := m[zerolog.LevelFieldName].(string)
	text, _ := m[zerolog.MessageFieldName].(string)
	out := transport.Message{Title: "[" + strings.ToUpper(lvl) + "] " + text}

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		limit := 600
		if k == "stack" {
			limit = 900
		}
		out.Fields = append(out.Fields, transport.Field{Name: k, Value: truncate(fmt.Sprint(m[k]), limit)})
	}
	return out, true
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
