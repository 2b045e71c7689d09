package app

import (
	"fmt"
	"time"

	"exam-engine/internal/domain"
)

// PolicySettings carries the window and duration policy for each exam type.
type PolicySettings struct {
	Windows            map[domain.ExamType]domain.WindowConfig
	MaxDurationMinutes map[domain.ExamType]int
	WeekdayOnly        []domain.ExamType
	Enabled            []domain.ExamType
}

// WindowPolicy validates exam scheduling constraints and classifies attempts
// against their window. It is pure apart from reading the clock.
type WindowPolicy struct {
	clock       domain.Clock
	windows     map[domain.ExamType]domain.WindowConfig
	maxDuration map[domain.ExamType]int
	weekdayOnly map[domain.ExamType]bool
	enabled     map[domain.ExamType]bool
}

func NewWindowPolicy(clock domain.Clock, settings PolicySettings) *WindowPolicy {
	weekdayOnly := make(map[domain.ExamType]bool, len(settings.WeekdayOnly))
	for _, t := range settings.WeekdayOnly {
		weekdayOnly[t] = true
	}
	enabled := make(map[domain.ExamType]bool, len(settings.Enabled))
	for _, t := range settings.Enabled {
		enabled[t] = true
	}
	return &WindowPolicy{
		clock:       clock,
		windows:     settings.Windows,
		maxDuration: settings.MaxDurationMinutes,
		weekdayOnly: weekdayOnly,
		enabled:     enabled,
	}
}

// ValidateType checks that the type is known and currently enabled.
// Enablement defaults to disabled unless the type is listed.
func (p *WindowPolicy) ValidateType(t domain.ExamType) error {
	if !t.Valid() {
		return domain.ErrInvalidExamType.WithMessage("unknown exam type %q", t)
	}
	if !p.enabled[t] {
		return domain.ErrExamDisabled.WithMessage("%s exams are currently disabled", t)
	}
	return nil
}

// Window returns the active window config for a type.
func (p *WindowPolicy) Window(t domain.ExamType) (domain.WindowConfig, error) {
	w, ok := p.windows[t]
	if !ok || !w.Active {
		return domain.WindowConfig{}, domain.ErrWindowMissing.WithMessage("no active window configured for %s exams", t)
	}
	return w, nil
}

// ValidateDuration checks the requested exam length against the per-type cap
// and the window length.
func (p *WindowPolicy) ValidateDuration(t domain.ExamType, minutes int) error {
	if minutes <= 0 {
		return domain.ErrDurationTooLong.WithMessage("exam duration must be positive, got %d", minutes)
	}
	if cap, ok := p.maxDuration[t]; ok && minutes > cap {
		return domain.ErrDurationTooLong.WithMessage("%s exams may not exceed %d minutes, got %d", t, cap, minutes)
	}
	w, err := p.Window(t)
	if err != nil {
		return err
	}
	if minutes*60 > w.DurationSec() {
		return domain.ErrDurationTooLong.WithMessage("%d minutes does not fit the %s window (%s-%s)",
			minutes, t, domain.FromSeconds(w.StartSec), domain.FromSeconds(w.EndSec))
	}
	return nil
}

// ValidateWeekday rejects Sundays for weekday-restricted types.
func (p *WindowPolicy) ValidateWeekday(t domain.ExamType, date time.Time) error {
	if p.weekdayOnly[t] && date.Weekday() == time.Sunday {
		return domain.ErrWeekdayViolation.WithMessage("%s exams cannot be scheduled on a Sunday", t)
	}
	return nil
}

// ValidateScheduleTiming rejects scheduling after the window has closed for
// the day.
func (p *WindowPolicy) ValidateScheduleTiming(date time.Time, windowEnd int) error {
	closeAt := domain.Combine(date, windowEnd, p.clock.Loc)
	if p.clock.Now().After(closeAt) {
		return domain.ErrWindowClosed.WithMessage("the window for %s closed at %s",
			date.Format(domain.DateLayout), domain.FromSeconds(windowEnd))
	}
	return nil
}

// Check classifies an attempt against its window snapshot. The window edges
// are inclusive on both ends; a student inside the window who cannot finish
// before it closes is granted extension minutes.
func (p *WindowPolicy) Check(att *domain.Attempt) domain.WindowCheck {
	if att.WindowEnd <= att.WindowStart {
		return domain.WindowCheck{Status: domain.WindowNone, Message: "no exam window is configured"}
	}
	examDate, err := domain.ParseDate(att.StartDate, p.clock.Loc)
	if err != nil {
		return domain.WindowCheck{Status: domain.WindowNone, Message: "the exam date could not be read"}
	}

	now := p.clock.Now()
	openMsg := fmt.Sprintf("the exam is open from %s to %s on %s",
		domain.FromSeconds(att.WindowStart), domain.FromSeconds(att.WindowEnd), att.StartDate)

	if !domain.SameDate(now, examDate) {
		if now.Before(examDate) {
			return domain.WindowCheck{Status: domain.WindowUpcoming, Message: openMsg}
		}
		return domain.WindowCheck{Status: domain.WindowExpired, Message: "the exam window has already closed"}
	}

	nowSec := domain.ToSeconds(now)
	switch {
	case nowSec > att.WindowEnd:
		return domain.WindowCheck{Status: domain.WindowExpired, Message: "the exam window has already closed"}
	case nowSec < att.WindowStart:
		return domain.WindowCheck{Status: domain.WindowUpcoming, Message: openMsg}
	}

	overrun := nowSec + att.TotalExamTime*60 - att.WindowEnd
	extension := 0
	if overrun > 0 {
		extension = (overrun + 59) / 60
	}
	return domain.WindowCheck{
		Status:           domain.WindowActive,
		Message:          fmt.Sprintf("the exam is open until %s", domain.FromSeconds(att.WindowEnd)),
		ExtensionMinutes: extension,
	}
}
