package board

import (
	"fmt"
	"time"

	"tessera/api/internal/block"
)

// Drop describes one completed pointer drag on the board.
type Drop struct {
	TaskID       string `json:"taskId"`
	GroupBy      string `json:"groupBy"`
	SourceColumn string `json:"sourceColumn"`
	TargetColumn string `json:"targetColumn"`
	// TargetTaskID is the task the drag was released on; the moved task
	// takes its position. Empty means the end of the target column.
	TargetTaskID string `json:"targetTaskId,omitempty"`
}

// DropResult carries the new flat order plus the property mutation a
// cross-column move implies. Mutation is nil for a same-column move.
type DropResult struct {
	Order    []string          `json:"order"`
	Mutation *block.Properties `json:"mutation,omitempty"`
	// ClearDueDate distinguishes "set due date to empty" from "no due
	// date change", which Properties alone cannot express.
	ClearDueDate bool `json:"clearDueDate,omitempty"`
}

// ApplyDrop translates a drag into a new flat order and, for a
// cross-column drop, the target column's grouping semantics applied to
// the task.
func ApplyDrop(order []string, columns []Column, drop Drop, now time.Time) (DropResult, error) {
	if !contains(order, drop.TaskID) {
		return DropResult{}, fmt.Errorf("task %s not in order", drop.TaskID)
	}

	var target *Column
	for i := range columns {
		if columns[i].Key == drop.TargetColumn {
			target = &columns[i]
			break
		}
	}
	if target == nil {
		return DropResult{}, fmt.Errorf("unknown column %s", drop.TargetColumn)
	}

	next := remove(order, drop.TaskID)
	switch {
	case drop.TargetTaskID != "" && drop.TargetTaskID != drop.TaskID && contains(next, drop.TargetTaskID):
		next = insertAt(next, indexOf(next, drop.TargetTaskID), drop.TaskID)
	case len(target.TaskIDs) > 0:
		// Dropped on the column body: place after the column's last task.
		last := lastOther(target.TaskIDs, drop.TaskID)
		if last != "" && contains(next, last) {
			next = insertAt(next, indexOf(next, last)+1, drop.TaskID)
		} else {
			next = append(next, drop.TaskID)
		}
	default:
		// Empty column: end of the flat order.
		next = append(next, drop.TaskID)
	}

	result := DropResult{Order: next}
	if drop.SourceColumn == drop.TargetColumn {
		return result, nil
	}

	mutation := &block.Properties{}
	switch drop.GroupBy {
	case "priority":
		mutation.Priority = drop.TargetColumn
	case "assignee":
		if drop.TargetColumn != ColUnassigned {
			mutation.AssigneeID = drop.TargetColumn
		}
	case "tags":
		if drop.TargetColumn == ColNoTag {
			mutation.Tags = []string{}
		} else {
			mutation.Tags = []string{drop.TargetColumn}
		}
	case "dueDate":
		due, clear := ResolveDueBucket(drop.TargetColumn, now)
		mutation.DueDate = due
		result.ClearDueDate = clear
	default: // status
		mutation.Status = drop.TargetColumn
	}
	result.Mutation = mutation
	return result, nil
}

// ResolveDueBucket maps a synthetic due-date column to a concrete date.
// "today" is the current date, "this-week" the Friday closing the
// current ISO week, "next-week" the following Friday. clear reports that
// the due date should be removed instead.
func ResolveDueBucket(bucket string, now time.Time) (due string, clear bool) {
	today := dateOnly(now)
	switch bucket {
	case BucketToday:
		return today.Format("2006-01-02"), false
	case BucketOverdue:
		return today.AddDate(0, 0, -1).Format("2006-01-02"), false
	case BucketThisWeek:
		return isoWeekStart(today).AddDate(0, 0, 4).Format("2006-01-02"), false
	case BucketNextWeek:
		return isoWeekStart(today).AddDate(0, 0, 11).Format("2006-01-02"), false
	case BucketLater:
		return today.AddDate(0, 0, 14).Format("2006-01-02"), false
	}
	return "", true
}

func contains(ids []string, id string) bool {
	return indexOf(ids, id) >= 0
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func remove(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func insertAt(ids []string, index int, id string) []string {
	if index < 0 || index > len(ids) {
		return append(ids, id)
	}
	ids = append(ids, "")
	copy(ids[index+1:], ids[index:])
	ids[index] = id
	return ids
}

func lastOther(ids []string, skip string) string {
	for i := len(ids) - 1; i >= 0; i-- {
		if ids[i] != skip {
			return ids[i]
		}
	}
	return ""
}
