package domain

import (
	"fmt"
	"strings"
	"time"
)

// Priority ranks how urgent a task is.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority maps user input to a Priority. An empty value yields the default.
func ParsePriority(raw string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return PriorityMedium, nil
	case PriorityLow:
		return PriorityLow, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityHigh:
		return PriorityHigh, nil
	}
	return "", &ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", raw)}
}

// Label is the badge text shown next to a task.
func (p Priority) Label() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityHigh:
		return "High"
	case PriorityMedium:
		return "Medium"
	}
	return ""
}

// Task is a single to-do item. Shared and OwnerEmail are display-only and are
// filled from a TaskView, never from storage.
type Task struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"ownerId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
	Priority    Priority   `json:"priority"`
	Complete    bool       `json:"complete"`
	CreatedAt   time.Time  `json:"createdAt"`
	Shared      bool       `json:"isShared"`
	OwnerEmail  string     `json:"ownerEmail,omitempty"`
}

// TaskUpdate carries the editable content fields of a task.
type TaskUpdate struct {
	ID          string
	Title       string
	Description string
	DueAt       *time.Time
	Priority    Priority
}

// TaskList is what a user sees: incomplete tasks in manual order followed by
// completed ones.
type TaskList struct {
	Incomplete []Task `json:"incomplete"`
	Complete   []Task `json:"complete"`
}

// Split partitions already sorted tasks by completion, keeping relative order.
func Split(tasks []Task) TaskList {
	list := TaskList{Incomplete: []Task{}, Complete: []Task{}}
	for _, t := range tasks {
		if t.Complete {
			list.Complete = append(list.Complete, t)
		} else {
			list.Incomplete = append(list.Incomplete, t)
		}
	}
	return list
}

// All returns incomplete followed by complete tasks.
func (l TaskList) All() []Task {
	out := make([]Task, 0, len(l.Incomplete)+len(l.Complete))
	out = append(out, l.Incomplete...)
	return append(out, l.Complete...)
}
