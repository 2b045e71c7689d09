package app_test

import (
	"errors"
	"testing"
	"time"

	"exam-engine/internal/app"
	"exam-engine/internal/domain"
)

func windowPolicyAt(t *testing.T, at time.Time) *app.WindowPolicy {
	t.Helper()
	return app.NewWindowPolicy(fixedClock(at), testPolicySettings())
}

func TestCheckWindowBoundaries(t *testing.T) {
	att := plannedAttempt("a1", "2025-10-07")

	cases := []struct {
		name string
		at   time.Time
		want domain.WindowStatus
	}{
		{"before open", time.Date(2025, 10, 7, 8, 59, 59, 0, time.UTC), domain.WindowUpcoming},
		{"exactly at open", time.Date(2025, 10, 7, 9, 0, 0, 0, time.UTC), domain.WindowActive},
		{"exactly at close", time.Date(2025, 10, 7, 10, 0, 0, 0, time.UTC), domain.WindowActive},
		{"one second past close", time.Date(2025, 10, 7, 10, 0, 1, 0, time.UTC), domain.WindowExpired},
		{"previous day", time.Date(2025, 10, 6, 9, 30, 0, 0, time.UTC), domain.WindowUpcoming},
		{"next day", time.Date(2025, 10, 8, 9, 30, 0, 0, time.UTC), domain.WindowExpired},
	}
	for _, tc := range cases {
		check := windowPolicyAt(t, tc.at).Check(att)
		if check.Status != tc.want {
			t.Fatalf("%s: expected %s, got %s (%s)", tc.name, tc.want, check.Status, check.Message)
		}
	}
}

func TestCheckWindowExtension(t *testing.T) {
	att := plannedAttempt("a1", "2025-10-07")

	// Started one minute before close with 30 minutes of exam time: 29 of
	// those minutes spill past the window.
	check := windowPolicyAt(t, time.Date(2025, 10, 7, 9, 59, 0, 0, time.UTC)).Check(att)
	if check.Status != domain.WindowActive {
		t.Fatalf("expected active window, got %s", check.Status)
	}
	if check.ExtensionMinutes != 29 {
		t.Fatalf("expected 29 extension minutes, got %d", check.ExtensionMinutes)
	}

	// Started with room to spare: no extension.
	check = windowPolicyAt(t, time.Date(2025, 10, 7, 9, 0, 0, 0, time.UTC)).Check(att)
	if check.ExtensionMinutes != 0 {
		t.Fatalf("expected no extension, got %d", check.ExtensionMinutes)
	}
}

func TestCheckWindowMisconfigured(t *testing.T) {
	att := plannedAttempt("a1", "2025-10-07")
	att.WindowStart = 36000
	att.WindowEnd = 32400

	check := windowPolicyAt(t, time.Date(2025, 10, 7, 9, 30, 0, 0, time.UTC)).Check(att)
	if check.Status != domain.WindowNone {
		t.Fatalf("expected no_window for inverted window, got %s", check.Status)
	}
}

func TestValidateType(t *testing.T) {
	policy := windowPolicyAt(t, time.Date(2025, 10, 7, 8, 0, 0, 0, time.UTC))

	if err := policy.ValidateType("Hourly"); !errors.Is(err, domain.ErrInvalidExamType) {
		t.Fatalf("expected invalid type error, got %v", err)
	}
	if err := policy.ValidateType(domain.ExamTypeMonthly); !errors.Is(err, domain.ErrExamDisabled) {
		t.Fatalf("expected disabled error for unlisted type, got %v", err)
	}
	if err := policy.ValidateType(domain.ExamTypeDaily); err != nil {
		t.Fatalf("expected Daily to be enabled, got %v", err)
	}
}

func TestValidateDuration(t *testing.T) {
	policy := windowPolicyAt(t, time.Date(2025, 10, 7, 8, 0, 0, 0, time.UTC))

	if err := policy.ValidateDuration(domain.ExamTypeDaily, 0); !errors.Is(err, domain.ErrDurationTooLong) {
		t.Fatalf("expected rejection of non-positive duration, got %v", err)
	}
	if err := policy.ValidateDuration(domain.ExamTypeDaily, 90); !errors.Is(err, domain.ErrDurationTooLong) {
		t.Fatalf("expected rejection over the Daily cap, got %v", err)
	}
	// 45 minutes is under the 60-minute cap but the window is exactly an hour,
	// so it still fits.
	if err := policy.ValidateDuration(domain.ExamTypeDaily, 45); err != nil {
		t.Fatalf("expected 45 minutes to fit, got %v", err)
	}
}

func TestValidateWeekday(t *testing.T) {
	policy := windowPolicyAt(t, time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC))
	sunday := time.Date(2025, 10, 5, 0, 0, 0, 0, time.UTC)

	if err := policy.ValidateWeekday(domain.ExamTypeDaily, sunday); !errors.Is(err, domain.ErrWeekdayViolation) {
		t.Fatalf("expected Sunday rejection for Daily, got %v", err)
	}
	// Weekly exams are not weekday-restricted.
	if err := policy.ValidateWeekday(domain.ExamTypeWeekly, sunday); err != nil {
		t.Fatalf("expected Weekly to allow Sunday, got %v", err)
	}
}

func TestValidateScheduleTiming(t *testing.T) {
	date := time.Date(2025, 10, 7, 0, 0, 0, 0, time.UTC)

	policy := windowPolicyAt(t, time.Date(2025, 10, 7, 11, 0, 0, 0, time.UTC))
	if err := policy.ValidateScheduleTiming(date, 36000); !errors.Is(err, domain.ErrWindowClosed) {
		t.Fatalf("expected closed-window rejection, got %v", err)
	}

	policy = windowPolicyAt(t, time.Date(2025, 10, 7, 8, 0, 0, 0, time.UTC))
	if err := policy.ValidateScheduleTiming(date, 36000); err != nil {
		t.Fatalf("expected scheduling before close to pass, got %v", err)
	}
}
