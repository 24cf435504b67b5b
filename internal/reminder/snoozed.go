package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"distask/internal/notify"
	"distask/internal/storage"
	"distask/internal/transport"
	"distask/pkg/logx"
)

// SnoozedEngine re-delivers reminders whose snooze has expired.
//
// A snooze is consumed once processed, whether or not redelivery succeeds.
// Snoozes for deleted or completed tasks are discarded silently.
type SnoozedEngine struct {
	tasks   storage.TaskReader
	snoozes storage.SnoozeStore
	router  *notify.Router
	log     logx.Logger
}

func NewSnoozedEngine(tasks storage.TaskReader, snoozes storage.SnoozeStore, router *notify.Router, log logx.Logger) *SnoozedEngine {
	return &SnoozedEngine{tasks: tasks, snoozes: snoozes, router: router, log: log}
}

func (e *SnoozedEngine) Name() string { return "snoozed" }

func (e *SnoozedEngine) Run(ctx context.Context, now time.Time) error {
	due, err := e.snoozes.DueSnoozedReminders(ctx, now)
	if err != nil {
		return fmt.Errorf("fetch snoozed reminders: %w", err)
	}
	for _, s := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log := e.log.With(logx.Int64("snooze_id", s.ID), logx.Int64("task_id", s.TaskID), logx.Int64("user_id", s.UserID))

		task, err := e.tasks.FetchTask(ctx, s.TaskID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			log.Debug("discarding snooze for deleted task")
			e.remove(ctx, log, s.ID)
			continue
		case err != nil:
			// Keep the snooze; the next tick retries the lookup.
			log.Warn("task lookup failed", logx.Err(err))
			continue
		case task.Completed:
			log.Debug("discarding snooze for completed task")
			e.remove(ctx, log, s.ID)
			continue
		}

		guild, channel := s.GuildID, s.ChannelID
		if guild == 0 {
			guild = task.GuildID
		}
		if channel == 0 {
			channel = task.ChannelID
		}
		out := e.router.Deliver(ctx, notify.Request{
			Recipient: s.UserID,
			Guild:     guild,
			Channel:   channel,
			TaskID:    task.ID,
			Category:  notify.CategorySnoozed,
			Message:   snoozedMessage(task, s, now),
		})
		if !out.Sent() {
			log.Info("snoozed reminder not delivered", logx.String("outcome", string(out)))
		}
		e.remove(ctx, log, s.ID)
	}
	return nil
}

func (e *SnoozedEngine) remove(ctx context.Context, log logx.Logger, id int64) {
	if err := e.snoozes.DeleteSnoozedReminder(ctx, id); err != nil {
		log.Error("deleting snooze failed", logx.Err(err))
	}
}

func snoozedMessage(task storage.Task, s storage.SnoozedReminder, now time.Time) transport.Message {
	msg := transport.Message{
		Title:       "Snoozed Reminder",
		Description: "You snoozed this reminder. Here it is again!",
		Timestamp:   now,
	}.AddField("Task", title(task), false)
	if task.DueAt != nil {
		msg = msg.AddField("Due Date", formatDue(*task.DueAt), true)
	}
	if s.Category != "" {
		msg.Footer = "Originally: " + s.Category
	}
	return msg
}
