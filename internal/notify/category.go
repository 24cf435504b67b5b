package notify

import "time"

// Category is the kind of a notification. The set is closed: every value the
// engines emit is listed in categories below.
type Category string

const (
	CategoryDueDate      Category = "due_date"
	CategoryAssignment   Category = "assignment"
	CategoryUpdate       Category = "update"
	CategoryMove         Category = "move"
	CategoryComplete     Category = "complete"
	CategoryComment      Category = "comment"
	CategoryDailyDigest  Category = "daily_digest"
	CategoryWeeklyDigest Category = "weekly_digest"
	CategoryCustom       Category = "custom"
	CategoryEscalation   Category = "escalation"
	CategorySnoozed      Category = "snoozed"
)

// enableFlag selects the preference switch gating a category.
type enableFlag int

const (
	flagAlwaysOn enableFlag = iota
	flagDueDate
	flagEvents
	flagDailyDigest
	flagWeeklyDigest
	flagCustom
)

type categoryInfo struct {
	flag   enableFlag
	window time.Duration // 0 disables the dedup check
}

// defaultWindow applies to categories missing from the table.
const defaultWindow = 24 * time.Hour

var categories = map[Category]categoryInfo{
	CategoryDueDate:      {flagDueDate, 12 * time.Hour},
	CategoryAssignment:   {flagEvents, 24 * time.Hour},
	CategoryUpdate:       {flagEvents, 24 * time.Hour},
	CategoryMove:         {flagEvents, 24 * time.Hour},
	CategoryComplete:     {flagEvents, 24 * time.Hour},
	CategoryComment:      {flagEvents, 24 * time.Hour},
	CategoryDailyDigest:  {flagDailyDigest, 23 * time.Hour},
	CategoryWeeklyDigest: {flagWeeklyDigest, 167 * time.Hour},
	CategoryCustom:       {flagCustom, 24 * time.Hour},
	CategoryEscalation:   {flagAlwaysOn, 24 * time.Hour},
	CategorySnoozed:      {flagAlwaysOn, 0},
}

func lookupCategory(c Category) categoryInfo {
	if info, ok := categories[c]; ok {
		return info
	}
	// Unknown categories are delivered: losing a new notification type
	// silently is worse than an extra message.
	return categoryInfo{flag: flagAlwaysOn, window: defaultWindow}
}

// Known reports whether c is in the category table.
func (c Category) Known() bool {
	_, ok := categories[c]
	return ok
}

// DedupWindow is the default anti-spam window for c.
func (c Category) DedupWindow() time.Duration { return lookupCategory(c).window }

func (c Category) String() string { return string(c) }
