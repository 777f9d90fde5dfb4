package board

import (
	"sort"
	"time"

	"tessera/api/internal/block"
)

// Fixed status and priority column sets; these are always rendered even
// when empty.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in-progress"
	StatusBlocked    = "blocked"
	StatusDone       = "done"
)

var StatusColumns = []string{StatusTodo, StatusInProgress, StatusBlocked, StatusDone}

// knownStatus reports whether s is one of the fixed board statuses.
// Values outside the set land in the todo column so no task disappears
// from the board.
func knownStatus(s string) bool {
	for _, known := range StatusColumns {
		if s == known {
			return true
		}
	}
	return false
}

var PriorityColumns = []string{"urgent", "high", "medium", "low", "none"}

// Catch-all column keys for the dynamically derived groupings.
const (
	ColUnassigned = "unassigned"
	ColNoTag      = "no-tag"
	ColNoDate     = "no-date"
)

// Due-date bucket keys, in board order.
const (
	BucketOverdue  = "overdue"
	BucketToday    = "today"
	BucketThisWeek = "this-week"
	BucketNextWeek = "next-week"
	BucketLater    = "later"
)

var dueBucketOrder = []string{BucketOverdue, BucketToday, BucketThisWeek, BucketNextWeek, BucketLater, ColNoDate}

// Column is one rendered board column with its member task ids in board
// order.
type Column struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	TaskIDs []string `json:"taskIds"`
}

// Group recomputes the board columns from current state. Pure and cheap,
// so it runs on every request rather than being debounced. Tasks are
// walked in flat order; tasks missing from the order array keep their
// incoming relative position at the end.
func Group(tasks []block.Task, records map[string]block.Properties, order []string, groupBy string, now time.Time) []Column {
	ordered := orderTasks(tasks, order)

	assign := func(task block.Task) []string {
		var rec *block.Properties
		if r, ok := records[task.ID]; ok {
			rec = &r
		}
		eff := Resolve(task, rec, nil)
		switch groupBy {
		case "priority":
			if eff.Priority == "" {
				return []string{"none"}
			}
			return []string{eff.Priority}
		case "assignee":
			if eff.AssigneeID == "" {
				return []string{ColUnassigned}
			}
			return []string{eff.AssigneeID}
		case "tags":
			if len(eff.Tags) == 0 {
				return []string{ColNoTag}
			}
			return eff.Tags
		case "dueDate":
			return []string{dueBucket(eff.DueDate, now)}
		default: // status
			if !knownStatus(eff.Status) {
				return []string{StatusTodo}
			}
			return []string{eff.Status}
		}
	}

	members := make(map[string][]string)
	for _, task := range ordered {
		for _, key := range assign(task) {
			members[key] = append(members[key], task.ID)
		}
	}

	switch groupBy {
	case "priority":
		return fixedColumns(PriorityColumns, members)
	case "assignee":
		return derivedColumns(members, ColUnassigned, "Unassigned")
	case "tags":
		return derivedColumns(members, ColNoTag, "No Tag")
	case "dueDate":
		cols := make([]Column, 0, len(dueBucketOrder))
		for _, key := range dueBucketOrder {
			ids, ok := members[key]
			if !ok && key != ColNoDate {
				continue
			}
			cols = append(cols, Column{Key: key, Label: bucketLabel(key), TaskIDs: emptyIfNil(ids)})
		}
		return cols
	default:
		return fixedColumns(StatusColumns, members)
	}
}

// orderTasks arranges tasks by the flat order array, appending any task
// not present in it.
func orderTasks(tasks []block.Task, order []string) []block.Task {
	byID := make(map[string]block.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	out := make([]block.Task, 0, len(tasks))
	seen := make(map[string]bool, len(tasks))
	for _, id := range order {
		if t, ok := byID[id]; ok && !seen[id] {
			out = append(out, t)
			seen[id] = true
		}
	}
	for _, t := range tasks {
		if !seen[t.ID] {
			out = append(out, t)
		}
	}
	return out
}

func fixedColumns(keys []string, members map[string][]string) []Column {
	cols := make([]Column, 0, len(keys))
	for _, key := range keys {
		cols = append(cols, Column{Key: key, Label: key, TaskIDs: emptyIfNil(members[key])})
	}
	return cols
}

// derivedColumns renders the observed value columns sorted by key, with
// the catch-all column last.
func derivedColumns(members map[string][]string, catchAll, catchAllLabel string) []Column {
	keys := make([]string, 0, len(members))
	for key := range members {
		if key == catchAll {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	cols := make([]Column, 0, len(keys)+1)
	for _, key := range keys {
		cols = append(cols, Column{Key: key, Label: key, TaskIDs: members[key]})
	}
	cols = append(cols, Column{Key: catchAll, Label: catchAllLabel, TaskIDs: emptyIfNil(members[catchAll])})
	return cols
}

// dueBucket classifies a due date relative to now. Weeks are ISO weeks.
func dueBucket(due string, now time.Time) string {
	if due == "" {
		return ColNoDate
	}
	d, err := time.Parse("2006-01-02", due)
	if err != nil {
		return ColNoDate
	}
	today := dateOnly(now)
	d = dateOnly(d)

	switch {
	case d.Before(today):
		return BucketOverdue
	case d.Equal(today):
		return BucketToday
	}
	thisMon := isoWeekStart(today)
	nextMon := thisMon.AddDate(0, 0, 7)
	afterNext := nextMon.AddDate(0, 0, 7)
	switch {
	case d.Before(nextMon):
		return BucketThisWeek
	case d.Before(afterNext):
		return BucketNextWeek
	}
	return BucketLater
}

// isoWeekStart returns the Monday of t's ISO week, at midnight.
func isoWeekStart(t time.Time) time.Time {
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7 // Sunday closes the ISO week
	}
	return dateOnly(t).AddDate(0, 0, 1-wd)
}

// dateOnly drops the clock, normalizing to UTC midnight so parsed due
// dates and wall-clock times compare cleanly.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func bucketLabel(key string) string {
	switch key {
	case BucketOverdue:
		return "Overdue"
	case BucketToday:
		return "Today"
	case BucketThisWeek:
		return "This Week"
	case BucketNextWeek:
		return "Next Week"
	case BucketLater:
		return "Later"
	case ColNoDate:
		return "No Date"
	}
	return key
}

func emptyIfNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
