package domain

import "sort"

// OrderEntry is one user's manual rank for a task.
type OrderEntry struct {
	UserID string `json:"userId"`
	TaskID string `json:"taskId"`
	Rank   int    `json:"rank"`
}

// RanksFor builds consecutive ranks 0..N-1 for the given order.
func RanksFor(userID string, taskIDs []string) []OrderEntry {
	entries := make([]OrderEntry, len(taskIDs))
	for i, id := range taskIDs {
		entries[i] = OrderEntry{UserID: userID, TaskID: id, Rank: i}
	}
	return entries
}

// SortByRank orders tasks in place: ranked tasks first by ascending rank, then
// unranked tasks newest first.
func SortByRank(tasks []Task, ranks map[string]int) {
	sort.SliceStable(tasks, func(i, j int) bool {
		ri, iok := ranks[tasks[i].ID]
		rj, jok := ranks[tasks[j].ID]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		case jok:
			return false
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}
