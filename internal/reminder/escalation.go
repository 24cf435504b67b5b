package reminder

import (
	"context"
	"fmt"
	"time"

	"distask/internal/notify"
	"distask/internal/storage"
	"distask/internal/transport"
	"distask/pkg/logx"
)

// EscalationInterval is the renotification period for a task overdue by
// daysOverdue whole days. It doubles as the dedup window for the task.
func EscalationInterval(daysOverdue int) time.Duration {
	switch {
	case daysOverdue >= 7:
		return 24 * time.Hour
	case daysOverdue >= 3:
		return 12 * time.Hour
	default:
		return 6 * time.Hour
	}
}

// EscalationEngine re-notifies assignees of overdue tasks on a tiered cadence.
type EscalationEngine struct {
	tasks  storage.TaskReader
	router *notify.Router
	log    logx.Logger
}

func NewEscalationEngine(tasks storage.TaskReader, router *notify.Router, log logx.Logger) *EscalationEngine {
	return &EscalationEngine{tasks: tasks, router: router, log: log}
}

func (e *EscalationEngine) Name() string { return "escalation" }

func (e *EscalationEngine) Run(ctx context.Context, now time.Time) error {
	tasks, err := e.tasks.FetchDueTasks(ctx, now)
	if err != nil {
		return fmt.Errorf("fetch overdue tasks: %w", err)
	}
	sent := 0
	for _, task := range tasks {
		if task.DueAt == nil || task.DueAt.After(now) || len(task.AssigneeIDs) == 0 || task.Completed {
			continue
		}
		daysOverdue := int(now.Sub(*task.DueAt) / day)
		interval := EscalationInterval(daysOverdue)
		msg := escalationMessage(task, daysOverdue, now)
		for _, uid := range task.AssigneeIDs {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			out := e.router.Deliver(ctx, notify.Request{
				Recipient:   uid,
				Guild:       task.GuildID,
				Channel:     task.ChannelID,
				TaskID:      task.ID,
				Category:    notify.CategoryEscalation,
				Message:     msg,
				DedupWindow: interval,
			})
			if out.Sent() {
				sent++
			}
		}
	}
	if sent > 0 {
		e.log.Debug("escalations sent", logx.Int("count", sent))
	}
	return nil
}

func escalationMessage(task storage.Task, daysOverdue int, now time.Time) transport.Message {
	desc := "This task is now overdue!"
	if daysOverdue > 0 {
		desc = fmt.Sprintf("This task is %s overdue!", plural(daysOverdue, "day"))
	}
	return transport.Message{
		Title:       "Overdue Task",
		Description: desc,
		Timestamp:   now,
	}.
		AddField("Task", title(task), false).
		AddField("Was Due", formatDue(*task.DueAt), true).
		AddField("Board", boardName(task), true)
}
