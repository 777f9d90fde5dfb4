// Package board implements the task-board grouping and drag/drop
// reorder protocol for task-list blocks.
package board

import "tessera/api/internal/block"

// Effective is the resolved view of a task's board-relevant properties.
type Effective struct {
	Status     string   `json:"status"`
	Priority   string   `json:"priority"`
	AssigneeID string   `json:"assigneeId"`
	DueDate    string   `json:"dueDate"`
	Tags       []string `json:"tags"`
}

// Resolve computes effective values with the precedence
// override (local optimistic) -> universal-properties record -> legacy
// inline field. The record is authoritative once a task is persisted;
// the inline fields cover temp tasks that have no record yet.
func Resolve(task block.Task, record *block.Properties, override *block.Properties) Effective {
	eff := Effective{
		Status:   task.Status,
		Priority: task.Priority,
		DueDate:  task.DueDate,
		Tags:     task.Tags,
	}
	if len(task.Assignees) > 0 {
		eff.AssigneeID = task.Assignees[0]
	}

	apply := func(p *block.Properties) {
		if p == nil {
			return
		}
		if p.Status != "" {
			eff.Status = p.Status
		}
		if p.Priority != "" {
			eff.Priority = p.Priority
		}
		if p.AssigneeID != "" {
			eff.AssigneeID = p.AssigneeID
		}
		if p.DueDate != "" {
			eff.DueDate = p.DueDate
		}
		if p.Tags != nil {
			eff.Tags = p.Tags
		}
	}
	apply(record)
	apply(override)

	if eff.Status == "" {
		eff.Status = StatusTodo
	}
	return eff
}
