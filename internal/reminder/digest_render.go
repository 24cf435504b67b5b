package reminder

import (
	"fmt"
	"strings"
	"time"

	"distask/internal/storage"
	"distask/internal/transport"
)

const (
	dailyItemsPerBoard    = 5
	dailyBoardsPerBucket  = 3
	weeklyMaxBoards       = 10
	weeklySamplesPerBoard = 3
)

type bucket int

const (
	bucketOverdue bucket = iota
	bucketToday
	bucketWeek
	bucketOther
)

var bucketLabels = [...]string{
	bucketOverdue: "Overdue",
	bucketToday:   "Due Today",
	bucketWeek:    "Due This Week",
	bucketOther:   "Later / No Due Date",
}

func categorize(t storage.Task, now time.Time) bucket {
	if t.DueAt == nil {
		return bucketOther
	}
	if t.DueAt.Before(now) {
		return bucketOverdue
	}
	switch days := int(t.DueAt.Sub(now) / day); {
	case days == 0:
		return bucketToday
	case days <= 7:
		return bucketWeek
	default:
		return bucketOther
	}
}

// boardGroup is one board's tasks, in first-seen order.
type boardGroup struct {
	name  string
	tasks []storage.Task
}

func groupByBoard(tasks []storage.Task) []*boardGroup {
	var out []*boardGroup
	idx := map[int64]*boardGroup{}
	for _, t := range tasks {
		g := idx[t.BoardID]
		if g == nil {
			g = &boardGroup{name: boardName(t)}
			idx[t.BoardID] = g
			out = append(out, g)
		}
		g.tasks = append(g.tasks, t)
	}
	return out
}

func renderDaily(tasks []storage.Task, now time.Time) transport.Message {
	msg := transport.Message{
		Title:       "Daily Task Digest",
		Description: plural(len(tasks), "active task") + " in this channel",
		Timestamp:   now,
	}

	var buckets [len(bucketLabels)][]storage.Task
	for _, t := range tasks {
		b := categorize(t, now)
		buckets[b] = append(buckets[b], t)
	}
	for b, list := range buckets {
		if len(list) == 0 {
			continue
		}
		name := fmt.Sprintf("%s (%d)", bucketLabels[b], len(list))
		msg = msg.AddField(name, renderBucket(list, bucket(b)), false)
	}
	return msg
}

func renderBucket(list []storage.Task, b bucket) string {
	var sb strings.Builder
	groups := groupByBoard(list)
	for i, g := range groups {
		if i == dailyBoardsPerBucket {
			fmt.Fprintf(&sb, "… and %d more", len(groups)-i)
			break
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(g.name + ":\n")
		for j, t := range g.tasks {
			if j == dailyItemsPerBoard {
				fmt.Fprintf(&sb, "… and %d more\n", len(g.tasks)-j)
				break
			}
			sb.WriteString("• " + title(t))
			if t.DueAt != nil && b != bucketOther {
				sb.WriteString(" (" + formatDue(*t.DueAt) + ")")
			}
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderWeekly(tasks []storage.Task, now time.Time) transport.Message {
	groups := groupByBoard(tasks)
	msg := transport.Message{
		Title:       "Weekly Task Summary",
		Description: fmt.Sprintf("%s across %s", plural(len(tasks), "active task"), plural(len(groups), "board")),
		Timestamp:   now,
	}
	for i, g := range groups {
		if i == weeklyMaxBoards {
			msg.Footer = fmt.Sprintf("… and %d more", len(groups)-i)
			break
		}
		overdue := 0
		for _, t := range g.tasks {
			if categorize(t, now) == bucketOverdue {
				overdue++
			}
		}
		var sb strings.Builder
		sb.WriteString(plural(len(g.tasks), "task"))
		if overdue > 0 {
			fmt.Fprintf(&sb, " (%d overdue)", overdue)
		}
		for j, t := range g.tasks {
			if j == weeklySamplesPerBoard {
				break
			}
			sb.WriteString("\n• " + title(t))
		}
		msg = msg.AddField(g.name, sb.String(), true)
	}
	return msg
}
