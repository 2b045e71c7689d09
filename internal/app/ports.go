package app

import (
	"context"
	"errors"
	"time"

	"exam-engine/internal/domain"
)

// AttemptRepository abstracts durable attempt storage. Daily exams are backed
// by one document per attempt, Weekly/Monthly by one exam document with
// nested student records; both shapes implement this same contract so the
// planner, state machine and analyzer never branch on shape.
type AttemptRepository interface {
	FindAttempt(ctx context.Context, attemptID string) (*domain.Attempt, error)
	StudentAttempts(ctx context.Context, studentID string, examType domain.ExamType) ([]*domain.Attempt, error)
	AttemptExists(ctx context.Context, studentID, date string, examType domain.ExamType) (bool, error)
	ExamNames(ctx context.Context, batch string, examType domain.ExamType) ([]string, error)

	// InsertAttempts persists a planner batch all-or-nothing.
	InsertAttempts(ctx context.Context, attempts []*domain.Attempt) error

	// MarkStarted atomically sets paper, started and the start timestamp,
	// conditional on the attempt not having been started. Returns false when
	// the compare-and-set loses.
	MarkStarted(ctx context.Context, attemptID string, paper domain.Paper, ts time.Time, extensionMinutes int) (bool, error)

	// MarkSubmitted atomically sets analysis, submitted and the submit
	// timestamp, conditional on the attempt not having been submitted.
	MarkSubmitted(ctx context.Context, attemptID string, analysis *domain.Analysis, ts time.Time) (bool, error)

	// ResetStarted clears the started flag. Crash recovery only; callers must
	// have observed started=true with no paper.
	ResetStarted(ctx context.Context, attemptID string) error
}

// RepositorySet routes exam types to the repository holding their shape.
type RepositorySet struct {
	Flat   AttemptRepository
	Nested AttemptRepository
}

// ForType returns the repository for an exam type's document shape.
func (s RepositorySet) ForType(t domain.ExamType) AttemptRepository {
	if t.Nested() {
		return s.Nested
	}
	return s.Flat
}

// Find resolves an attempt ID against both shapes.
func (s RepositorySet) Find(ctx context.Context, attemptID string) (*domain.Attempt, AttemptRepository, error) {
	for _, repo := range []AttemptRepository{s.Flat, s.Nested} {
		if repo == nil {
			continue
		}
		att, err := repo.FindAttempt(ctx, attemptID)
		if err == nil {
			return att, repo, nil
		}
		if !errors.Is(err, domain.ErrAttemptNotFound) {
			return nil, nil, err
		}
	}
	return nil, nil, domain.ErrAttemptNotFound
}

// QuestionStore gives access to the tagged question pools. Hidden cases and
// full items are served only to the adjudicator and analyzer; everything a
// student sees goes through the assembler's sanitized view.
type QuestionStore interface {
	// Sample draws count items uniformly at random without replacement from
	// the pool matching the tags and difficulty. Short pools return whatever
	// they have; the caller decides whether to warn.
	Sample(ctx context.Context, subject string, kind domain.QuestionKind, tags []string, difficulty domain.Difficulty, count int) ([]domain.QuestionItem, error)
	CountByDifficulty(ctx context.Context, subject string, kind domain.QuestionKind, tags []string) (domain.Quota, error)
	HiddenCases(ctx context.Context, subject string, kind domain.QuestionKind, questionID string) ([]domain.HiddenCase, error)
	Item(ctx context.Context, subject string, kind domain.QuestionKind, questionID string) (domain.QuestionItem, error)
}

// ExecOutput is the raw result of one run on the external compiler service.
type ExecOutput struct {
	Stdout string
	Stderr string
}

// ExecutionGateway is the external compiler service. Implementations apply
// per-call timeouts and surface them as domain.ErrExecutionTimeout.
type ExecutionGateway interface {
	Execute(ctx context.Context, language, source, stdin string) (ExecOutput, error)
	ExecuteSQL(ctx context.Context, sql string) (ExecOutput, error)
}

// Cache namespaces. Namespaces never share keys.
const (
	CacheNamespaceExecution = "exec"
	CacheNamespaceReports   = "report"
)

// ResultCache memoizes deterministic computations under a TTL.
type ResultCache interface {
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	Put(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error
}

// StudentDirectory lists cohort members for eligibility resolution.
type StudentDirectory interface {
	Cohort(ctx context.Context, batch, location string) ([]domain.Student, error)
}

// Curriculum is a read-only view of what a cohort studies on a date. The
// planner uses it to default tags and fix subject ordering.
type Curriculum interface {
	SubjectsFor(ctx context.Context, batch, location, date string) ([]domain.CurriculumEntry, error)
}
