package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseLocalDueConvertsToUTC(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, loc)
	due, err := ParseLocalDue("2026-05-11T14:30", loc, now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2026, 5, 11, 18, 30, 0, 0, time.UTC)
	if due == nil || !due.Equal(want) || due.Location() != time.UTC {
		t.Fatalf("unexpected due: %v", due)
	}
}

func TestParseLocalDueEmpty(t *testing.T) {
	due, err := ParseLocalDue("  ", time.UTC, time.Now())
	if err != nil || due != nil {
		t.Fatalf("expected no due date, got %v %v", due, err)
	}
}

func TestParseLocalDueRejectsPastAndGarbage(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	cases := map[string]string{
		"2026-05-09T23:59": "Due date cannot be in the past",
		"not-a-date":       "Please select a valid date",
	}
	for in, msg := range cases {
		_, err := ParseLocalDue(in, time.UTC, now)
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != "dueDate" || ve.Message != msg {
			t.Fatalf("%s: expected %q, got %v", in, msg, err)
		}
	}
	if _, err := ParseLocalDue("2026-05-10T08:00", time.UTC, now); err != nil {
		t.Fatalf("earlier today should be accepted: %v", err)
	}
}

func TestValidateTitle(t *testing.T) {
	if _, err := ValidateTitle("   "); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	title, err := ValidateTitle("  Buy milk ")
	if err != nil || title != "Buy milk" {
		t.Fatalf("unexpected title %q %v", title, err)
	}
}

func TestValidateEmail(t *testing.T) {
	email, err := ValidateEmail("email", " Bob@Example.com ")
	if err != nil || email != "bob@example.com" {
		t.Fatalf("unexpected %q %v", email, err)
	}
	for _, bad := range []string{"", "bob", "bob@", "Bob <bob@example.com>", "bob@localhost"} {
		if _, err := ValidateEmail("email", bad); !IsValidation(err) {
			t.Fatalf("%q: expected validation error, got %v", bad, err)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("short"); !IsValidation(err) {
		t.Fatalf("expected validation error")
	}
	if err := ValidatePassword("long-enough"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("")
	if err != nil || p != PriorityMedium {
		t.Fatalf("expected default medium, got %q %v", p, err)
	}
	p, err = ParsePriority("HIGH")
	if err != nil || p.Label() != "High" {
		t.Fatalf("unexpected %q %v", p, err)
	}
	if _, err := ParsePriority("urgent"); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateEmailRejectsKeyUnsafeCharacters(t *testing.T) {
	for _, bad := range []string{"a#b@example.com", "a/b@example.com", "a?b@example.com", `"a\\b"@example.com`} {
		_, err := ValidateEmail("email", bad)
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Field != "email" {
			t.Fatalf("%q: expected email validation error, got %v", bad, err)
		}
	}
	if _, err := ValidateEmail("email", "a+b.c@example.com"); err != nil {
		t.Fatalf("plus addressing must stay valid: %v", err)
	}
}
