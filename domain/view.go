package domain

// ViewKind tells how the current user relates to a task.
type ViewKind int

const (
	Owned ViewKind = iota
	SharedWithMe
)

func (k ViewKind) String() string {
	if k == SharedWithMe {
		return "shared"
	}
	return "owned"
}

// sharedOwnerLabel is what collaborators see in place of the owner's address.
const sharedOwnerLabel = "Shared with you"

// TaskView is a task as resolved for one user at fetch time. Shared-task
// display fields come only from here.
type TaskView struct {
	kind       ViewKind
	task       Task
	ownerEmail string
}

// OwnedView wraps a task the viewer owns.
func OwnedView(t Task) TaskView {
	return TaskView{kind: Owned, task: t}
}

// SharedView wraps a task someone else shared with the viewer. An empty
// ownerEmail falls back to a generic label.
func SharedView(t Task, ownerEmail string) TaskView {
	if ownerEmail == "" {
		ownerEmail = sharedOwnerLabel
	}
	return TaskView{kind: SharedWithMe, task: t, ownerEmail: ownerEmail}
}

func (v TaskView) Kind() ViewKind { return v.kind }

// Task returns the task with its display flags set from the variant.
func (v TaskView) Task() Task {
	t := v.task
	switch v.kind {
	case SharedWithMe:
		t.Shared = true
		t.OwnerEmail = v.ownerEmail
	default:
		t.Shared = false
		t.OwnerEmail = ""
	}
	return t
}

// MergeViews combines owned and shared tasks; a task present in both is
// treated as owned. ownerEmail resolves the owner shown on shared tasks and
// may be nil.
func MergeViews(owned, shared []Task, ownerEmail func(ownerID string) string) []TaskView {
	seen := make(map[string]struct{}, len(owned))
	views := make([]TaskView, 0, len(owned)+len(shared))
	for _, t := range owned {
		seen[t.ID] = struct{}{}
		views = append(views, OwnedView(t))
	}
	for _, t := range shared {
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		email := ""
		if ownerEmail != nil {
			email = ownerEmail(t.OwnerID)
		}
		views = append(views, SharedView(t, email))
	}
	return views
}
