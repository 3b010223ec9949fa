package domain

import (
	"net/mail"
	"strings"
	"time"
)

const minPasswordLength = 8

// keyUnsafe lists characters that cannot appear in table keys; addresses are
// stored as keys.
const keyUnsafe = "/\\#?"

var localDueLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ValidateTitle trims and checks a task title.
func ValidateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", &ValidationError{Field: "title", Message: "Task title is required"}
	}
	return title, nil
}

// ParseLocalDue converts a due date entered in the user's local time into a
// UTC instant. Empty input means no due date. Dates before today (in loc) are
// rejected.
func ParseLocalDue(raw string, loc *time.Location, now time.Time) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	due, err := parseDue(raw, loc)
	if err != nil {
		return nil, &ValidationError{Field: "dueDate", Message: "Please select a valid date"}
	}
	if err := checkNotPast(due, loc, now); err != nil {
		return nil, err
	}
	utc := due.UTC()
	return &utc, nil
}

func parseDue(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	var lastErr error
	for _, layout := range localDueLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func checkNotPast(due time.Time, loc *time.Location, now time.Time) error {
	dy, dm, dd := due.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	dueDay := time.Date(dy, dm, dd, 0, 0, 0, 0, loc)
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, loc)
	if dueDay.Before(today) {
		return &ValidationError{Field: "dueDate", Message: "Due date cannot be in the past"}
	}
	return nil
}

// ValidateEmail normalizes an address and rejects anything that is not a bare
// mailbox.
func ValidateEmail(field, email string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", &ValidationError{Field: field, Message: "Email is required"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") || !keySafe(email) {
		return "", &ValidationError{Field: field, Message: "Please enter a valid email address"}
	}
	return email, nil
}

func keySafe(s string) bool {
	if strings.ContainsAny(s, keyUnsafe) {
		return false
	}
	for _, r := range s {
		if r < 0x20 || (r >= 0x7f && r <= 0x9f) {
			return false
		}
	}
	return true
}

// ValidatePassword enforces the sign-up password rules.
func ValidatePassword(password string) error {
	if password == "" {
		return &ValidationError{Field: "password", Message: "Password is required"}
	}
	if len(password) < minPasswordLength {
		return &ValidationError{Field: "password", Message: "Password must be at least 8 characters"}
	}
	return nil
}
