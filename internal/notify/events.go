package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"distask/internal/storage"
	"distask/internal/transport"
)

// EventNotifier turns task changes made by a user into event alerts.
// The acting user is never notified about their own change.
type EventNotifier struct {
	router *Router
}

func NewEventNotifier(r *Router) *EventNotifier { return &EventNotifier{router: r} }

// TaskAssigned notifies each new assignee. It returns the number sent.
func (n *EventNotifier) TaskAssigned(ctx context.Context, task storage.Task, assigneeIDs []int64, assignerID int64) int {
	msg := transport.Message{
		Title:       "New Task Assignment",
		Description: "You've been assigned to a new task!",
	}.AddField("Task", taskTitle(task), false)
	if task.Description != "" {
		msg = msg.AddField("Description", ellipsis(task.Description, 100), false)
	}
	if task.DueAt != nil {
		msg = msg.AddField("Due Date", task.DueAt.UTC().Format("2006-01-02 15:04 UTC"), true)
	}
	msg = msg.AddField("Assigned By", transport.MentionUser(assignerID), true)

	return n.each(ctx, task, CategoryAssignment, msg, except(assigneeIDs, assignerID))
}

// TaskUpdated notifies assignees that fields of the task changed.
func (n *EventNotifier) TaskUpdated(ctx context.Context, task storage.Task, fields []string, updaterID int64) int {
	msg := transport.Message{
		Title:       "Task Updated",
		Description: "A task you're assigned to has been updated",
	}.
		AddField("Task", taskTitle(task), false).
		AddField("Updated Fields", strings.Join(fields, ", "), false).
		AddField("Updated By", transport.MentionUser(updaterID), true)

	return n.each(ctx, task, CategoryUpdate, msg, except(task.AssigneeIDs, updaterID))
}

// TaskMoved notifies assignees that the task changed column.
func (n *EventNotifier) TaskMoved(ctx context.Context, task storage.Task, from, to string, moverID int64) int {
	msg := transport.Message{
		Title:       "Task Moved",
		Description: "A task you're assigned to has been moved",
	}.
		AddField("Task", taskTitle(task), false).
		AddField("From", from, true).
		AddField("To", to, true).
		AddField("Moved By", transport.MentionUser(moverID), true)

	return n.each(ctx, task, CategoryMove, msg, except(task.AssigneeIDs, moverID))
}

// TaskCompleted notifies the creator and the remaining assignees.
func (n *EventNotifier) TaskCompleted(ctx context.Context, task storage.Task, completerID int64) int {
	sent := 0
	if task.CreatedBy != 0 && task.CreatedBy != completerID {
		msg := transport.Message{
			Title:       "Task Completed",
			Description: "A task you created has been completed!",
		}.
			AddField("Task", taskTitle(task), false).
			AddField("Completed By", transport.MentionUser(completerID), true)
		sent += n.each(ctx, task, CategoryComplete, msg, []int64{task.CreatedBy})
	}

	msg := transport.Message{
		Title:       "Task Completed",
		Description: "A task you're assigned to has been completed!",
	}.
		AddField("Task", taskTitle(task), false).
		AddField("Completed By", transport.MentionUser(completerID), true)
	return sent + n.each(ctx, task, CategoryComplete, msg, except(task.AssigneeIDs, completerID, task.CreatedBy))
}

// TaskCommented notifies assignees about a new comment.
func (n *EventNotifier) TaskCommented(ctx context.Context, task storage.Task, comment string, authorID int64) int {
	msg := transport.Message{
		Title:       "New Comment",
		Description: ellipsis(comment, 300),
	}.
		AddField("Task", taskTitle(task), false).
		AddField("From", transport.MentionUser(authorID), true)

	return n.each(ctx, task, CategoryComment, msg, except(task.AssigneeIDs, authorID))
}

func (n *EventNotifier) each(ctx context.Context, task storage.Task, c Category, msg transport.Message, users []int64) int {
	msg.Timestamp = n.router.now().UTC().Truncate(time.Second)
	return n.router.DeliverBulk(ctx, users, Request{
		Guild:    task.GuildID,
		Channel:  task.ChannelID,
		TaskID:   task.ID,
		Category: c,
		Message:  msg,
	})
}

func except(ids []int64, skip ...int64) []int64 {
	out := make([]int64, 0, len(ids))
outer:
	for _, id := range ids {
		for _, s := range skip {
			if id == s {
				continue outer
			}
		}
		out = append(out, id)
	}
	return out
}

func taskTitle(t storage.Task) string {
	if t.Title == "" {
		return fmt.Sprintf("Task #%d", t.ID)
	}
	return t.Title
}

func ellipsis(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
