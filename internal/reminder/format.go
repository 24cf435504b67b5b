package reminder

import (
	"fmt"
	"time"

	"distask/internal/storage"
)

const day = 24 * time.Hour

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func formatDue(t time.Time) string { return t.UTC().Format("Mon Jan 2 15:04 UTC") }

func title(t storage.Task) string {
	if t.Title == "" {
		return fmt.Sprintf("Task #%d", t.ID)
	}
	return t.Title
}

func boardName(t storage.Task) string {
	if t.BoardName == "" {
		return "Unknown"
	}
	return t.BoardName
}

func ellipsis(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// humanize renders a positive duration as a coarse "in 5h" style hint.
func humanize(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "in under a minute"
	case d < time.Hour:
		return fmt.Sprintf("in %dm", int(d/time.Minute))
	default:
		return fmt.Sprintf("in %dh", int(d/time.Hour))
	}
}
