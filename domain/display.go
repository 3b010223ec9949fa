package domain

import "time"

// DueLabel renders a due instant relative to now in the viewer's location:
// "Today at 03:04 PM", "Tomorrow at 09:00 AM" or "Jan 2, 03:04 PM".
func DueLabel(due, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	local := due.In(loc)
	ny, nm, nd := now.In(loc).Date()
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, loc)
	tomorrow := today.AddDate(0, 0, 1)
	dy, dm, dd := local.Date()
	day := time.Date(dy, dm, dd, 0, 0, 0, 0, loc)

	switch {
	case day.Equal(today):
		return "Today at " + local.Format("03:04 PM")
	case day.Equal(tomorrow):
		return "Tomorrow at " + local.Format("03:04 PM")
	}
	return local.Format("Jan 2, 03:04 PM")
}
