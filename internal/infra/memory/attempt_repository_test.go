package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"exam-engine/internal/domain"
)

func testAttempt(id, student string) *domain.Attempt {
	return &domain.Attempt{
		AttemptID:     id,
		StudentID:     student,
		ExamName:      "Daily-1",
		Batch:         "B1",
		Location:      "L1",
		StartDate:     "2025-10-07",
		ExamType:      domain.ExamTypeDaily,
		WindowStart:   32400,
		WindowEnd:     36000,
		TotalExamTime: 30,
	}
}

func testPaper() domain.Paper {
	return domain.Paper{{Subject: "python", MCQs: []domain.QuestionItem{{ID: "m1"}}}}
}

// lifecycleRepo is the slice of the repository contract both shapes share.
type lifecycleRepo interface {
	FindAttempt(ctx context.Context, attemptID string) (*domain.Attempt, error)
	InsertAttempts(ctx context.Context, attempts []*domain.Attempt) error
	AttemptExists(ctx context.Context, studentID, date string, examType domain.ExamType) (bool, error)
	MarkStarted(ctx context.Context, attemptID string, paper domain.Paper, ts time.Time, extensionMinutes int) (bool, error)
	MarkSubmitted(ctx context.Context, attemptID string, analysis *domain.Analysis, ts time.Time) (bool, error)
	ResetStarted(ctx context.Context, attemptID string) error
}

// Both shapes implement the same contract; run the lifecycle suite over each.
func repositories() map[string]lifecycleRepo {
	return map[string]lifecycleRepo{
		"flat":   NewAttemptRepository(),
		"nested": NewNestedAttemptRepository(),
	}
}

func TestMarkStartedCompareAndSet(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2025, 10, 7, 9, 15, 0, 0, time.UTC)

	for name, repo := range repositories() {
		if err := repo.InsertAttempts(ctx, []*domain.Attempt{testAttempt("a1", "s1")}); err != nil {
			t.Fatalf("%s: insert: %v", name, err)
		}

		ok, err := repo.MarkStarted(ctx, "a1", testPaper(), ts, 5)
		if err != nil || !ok {
			t.Fatalf("%s: first mark-started should win: ok=%v err=%v", name, ok, err)
		}
		ok, err = repo.MarkStarted(ctx, "a1", testPaper(), ts.Add(time.Second), 0)
		if err != nil {
			t.Fatalf("%s: second mark-started errored: %v", name, err)
		}
		if ok {
			t.Fatalf("%s: second mark-started must lose the compare-and-set", name)
		}

		att, err := repo.FindAttempt(ctx, "a1")
		if err != nil {
			t.Fatalf("%s: find: %v", name, err)
		}
		if !att.Started || att.StartTimestamp == nil || !att.StartTimestamp.Equal(ts) {
			t.Fatalf("%s: first writer's timestamp must persist: %+v", name, att)
		}
		if att.ExtensionMinutes != 5 || att.Paper.Empty() {
			t.Fatalf("%s: first writer's paper/extension must persist: %+v", name, att)
		}
	}
}

func TestMarkSubmittedCompareAndSet(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2025, 10, 7, 9, 45, 0, 0, time.UTC)

	for name, repo := range repositories() {
		repo.InsertAttempts(ctx, []*domain.Attempt{testAttempt("a1", "s1")})
		repo.MarkStarted(ctx, "a1", testPaper(), ts.Add(-30*time.Minute), 0)

		first := &domain.Analysis{TotalScore: 6}
		ok, err := repo.MarkSubmitted(ctx, "a1", first, ts)
		if err != nil || !ok {
			t.Fatalf("%s: first submit should win: ok=%v err=%v", name, ok, err)
		}
		ok, err = repo.MarkSubmitted(ctx, "a1", &domain.Analysis{TotalScore: 99}, ts.Add(time.Second))
		if err != nil {
			t.Fatalf("%s: second submit errored: %v", name, err)
		}
		if ok {
			t.Fatalf("%s: second submit must lose", name)
		}

		att, _ := repo.FindAttempt(ctx, "a1")
		if !att.Submitted || att.Analysis == nil || att.Analysis.TotalScore != 6 {
			t.Fatalf("%s: exactly one analysis must persist: %+v", name, att)
		}
	}
}

func TestResetStartedClearsFlag(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2025, 10, 7, 9, 15, 0, 0, time.UTC)

	for name, repo := range repositories() {
		att := testAttempt("a1", "s1")
		att.Started = true
		att.StartTimestamp = &ts
		repo.InsertAttempts(ctx, []*domain.Attempt{att})

		if err := repo.ResetStarted(ctx, "a1"); err != nil {
			t.Fatalf("%s: reset: %v", name, err)
		}
		got, _ := repo.FindAttempt(ctx, "a1")
		if got.Started || got.StartTimestamp != nil {
			t.Fatalf("%s: reset did not clear start state: %+v", name, got)
		}

		// The compare-and-set is live again after recovery.
		ok, err := repo.MarkStarted(ctx, "a1", testPaper(), ts.Add(time.Minute), 0)
		if err != nil || !ok {
			t.Fatalf("%s: restart after reset should win: ok=%v err=%v", name, ok, err)
		}
	}
}

func TestAttemptExists(t *testing.T) {
	ctx := context.Background()
	for name, repo := range repositories() {
		repo.InsertAttempts(ctx, []*domain.Attempt{testAttempt("a1", "s1")})

		exists, err := repo.AttemptExists(ctx, "s1", "2025-10-07", domain.ExamTypeDaily)
		if err != nil || !exists {
			t.Fatalf("%s: expected attempt to exist: %v %v", name, exists, err)
		}
		exists, _ = repo.AttemptExists(ctx, "s1", "2025-10-08", domain.ExamTypeDaily)
		if exists {
			t.Fatalf("%s: wrong date must not match", name)
		}
		exists, _ = repo.AttemptExists(ctx, "s1", "2025-10-07", domain.ExamTypeWeekly)
		if exists {
			t.Fatalf("%s: wrong type must not match", name)
		}
	}
}

func TestFindAttemptReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewAttemptRepository()
	repo.InsertAttempts(ctx, []*domain.Attempt{testAttempt("a1", "s1")})

	first, _ := repo.FindAttempt(ctx, "a1")
	first.Started = true
	first.ExamName = "mutated"

	second, _ := repo.FindAttempt(ctx, "a1")
	if second.Started || second.ExamName != "Daily-1" {
		t.Fatalf("caller mutation leaked into the store: %+v", second)
	}
}

func TestNestedStoresBatchAsOneExam(t *testing.T) {
	ctx := context.Background()
	repo := NewNestedAttemptRepository()

	batch := []*domain.Attempt{testAttempt("a1", "s1"), testAttempt("a2", "s2"), testAttempt("a3", "s3")}
	for _, att := range batch {
		att.ExamType = domain.ExamTypeWeekly
	}
	if err := repo.InsertAttempts(ctx, batch); err != nil {
		t.Fatalf("insert: %v", err)
	}

	names, err := repo.ExamNames(ctx, "B1", domain.ExamTypeWeekly)
	if err != nil {
		t.Fatalf("exam names: %v", err)
	}
	if len(names) != 1 || names[0] != "Daily-1" {
		t.Fatalf("expected one exam document, got %v", names)
	}
	for _, id := range []string{"a1", "a2", "a3"} {
		if _, err := repo.FindAttempt(ctx, id); err != nil {
			t.Fatalf("attempt %s unreachable inside exam doc: %v", id, err)
		}
	}
	if _, err := repo.FindAttempt(ctx, "missing"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNestedSameExamNameAcrossBatches(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2025, 10, 7, 9, 15, 0, 0, time.UTC)
	repo := NewNestedAttemptRepository()

	b1 := testAttempt("a1", "s1")
	b1.ExamType = domain.ExamTypeWeekly
	b1.ExamName = "Weekly-1"
	b2 := testAttempt("a2", "s9")
	b2.ExamType = domain.ExamTypeWeekly
	b2.ExamName = "Weekly-1"
	b2.Batch = "B2"

	if err := repo.InsertAttempts(ctx, []*domain.Attempt{b1}); err != nil {
		t.Fatalf("insert B1: %v", err)
	}
	if err := repo.InsertAttempts(ctx, []*domain.Attempt{b2}); err != nil {
		t.Fatalf("insert B2: %v", err)
	}

	// Same exam name, separate documents: each batch sees exactly its own.
	for _, batch := range []string{"B1", "B2"} {
		names, err := repo.ExamNames(ctx, batch, domain.ExamTypeWeekly)
		if err != nil {
			t.Fatalf("exam names for %s: %v", batch, err)
		}
		if len(names) != 1 || names[0] != "Weekly-1" {
			t.Fatalf("expected [Weekly-1] for %s, got %v", batch, names)
		}
	}

	att, err := repo.FindAttempt(ctx, "a2")
	if err != nil {
		t.Fatalf("find a2: %v", err)
	}
	if att.Batch != "B2" || att.StudentID != "s9" {
		t.Fatalf("a2 landed in the wrong document: %+v", att)
	}

	// Lifecycle transitions stay inside their own document.
	if ok, err := repo.MarkStarted(ctx, "a2", testPaper(), ts, 0); err != nil || !ok {
		t.Fatalf("mark started a2: ok=%v err=%v", ok, err)
	}
	other, _ := repo.FindAttempt(ctx, "a1")
	if other.Started {
		t.Fatal("starting B2's attempt must not touch B1's")
	}
}
