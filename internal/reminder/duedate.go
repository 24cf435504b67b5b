package reminder

import (
	"context"
	"fmt"
	"slices"
	"time"

	"distask/internal/notify"
	"distask/internal/storage"
	"distask/internal/transport"
	"distask/pkg/logx"
)

// dueDateHorizon is how far ahead the due-date engine looks.
const dueDateHorizon = 7 * day

// DueDateEngine sends advance reminders for open tasks due within the next
// seven days. Overdue tasks belong to EscalationEngine.
type DueDateEngine struct {
	tasks  storage.TaskReader
	prefs  *notify.PreferenceManager
	router *notify.Router
	log    logx.Logger
}

func NewDueDateEngine(tasks storage.TaskReader, prefs *notify.PreferenceManager, router *notify.Router, log logx.Logger) *DueDateEngine {
	return &DueDateEngine{tasks: tasks, prefs: prefs, router: router, log: log}
}

func (e *DueDateEngine) Name() string { return "due_date" }

func (e *DueDateEngine) Run(ctx context.Context, now time.Time) error {
	tasks, err := e.tasks.FetchDueTasks(ctx, now.Add(dueDateHorizon))
	if err != nil {
		return fmt.Errorf("fetch due tasks: %w", err)
	}
	sent := 0
	for _, task := range tasks {
		if task.DueAt == nil || len(task.AssigneeIDs) == 0 || task.Completed {
			continue
		}
		until := task.DueAt.Sub(now)
		if until <= 0 {
			continue
		}
		days := int(until / day)
		for _, uid := range task.AssigneeIDs {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			text, ok := dueReminderText(days, until, e.prefs.AdvanceDays(ctx, uid, task.GuildID))
			if !ok {
				continue
			}
			out := e.router.Deliver(ctx, notify.Request{
				Recipient: uid,
				Guild:     task.GuildID,
				Channel:   task.ChannelID,
				TaskID:    task.ID,
				Category:  notify.CategoryDueDate,
				Message:   dueDateMessage(task, text, now),
			})
			if out.Sent() {
				sent++
			}
		}
	}
	if sent > 0 {
		e.log.Debug("due-date reminders sent", logx.Int("count", sent))
	}
	return nil
}

// dueReminderText decides whether a reminder fires for a task due in
// `until` (whole days `days`) given the user's advance offsets.
func dueReminderText(days int, until time.Duration, offsets []int) (string, bool) {
	if slices.Contains(offsets, days) {
		if days == 0 {
			return "Due today (" + humanize(until) + ")", true
		}
		return "Due in " + plural(days, "day"), true
	}
	if days == 0 && until > 0 {
		return "Due today (" + humanize(until) + ")", true
	}
	return "", false
}

func dueDateMessage(task storage.Task, text string, now time.Time) transport.Message {
	msg := transport.Message{
		Title:       "Task Due Soon",
		Description: text,
		Timestamp:   now,
	}.AddField("Task", title(task), false)
	if task.Description != "" {
		msg = msg.AddField("Description", ellipsis(task.Description, 100), false)
	}
	return msg.
		AddField("Due Date", formatDue(*task.DueAt), true).
		AddField("Board", boardName(task), true)
}
