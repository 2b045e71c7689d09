package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"exam-engine/internal/domain"
)

// AttemptRepository is the in-memory flat shape: one record per attempt.
// Compare-and-set semantics match the durable implementations so state
// machine tests exercise the real guards.
type AttemptRepository struct {
	mu       sync.RWMutex
	attempts map[string]*domain.Attempt
}

func NewAttemptRepository() *AttemptRepository {
	return &AttemptRepository{attempts: make(map[string]*domain.Attempt)}
}

func (r *AttemptRepository) FindAttempt(_ context.Context, attemptID string) (*domain.Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	att, ok := r.attempts[attemptID]
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	return cloneAttempt(att), nil
}

func (r *AttemptRepository) StudentAttempts(_ context.Context, studentID string, examType domain.ExamType) ([]*domain.Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Attempt
	for _, att := range r.attempts {
		if att.StudentID == studentID && att.ExamType == examType {
			out = append(out, cloneAttempt(att))
		}
	}
	return out, nil
}

func (r *AttemptRepository) AttemptExists(_ context.Context, studentID, date string, examType domain.ExamType) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, att := range r.attempts {
		if att.StudentID == studentID && att.StartDate == date && att.ExamType == examType {
			return true, nil
		}
	}
	return false, nil
}

func (r *AttemptRepository) ExamNames(_ context.Context, batch string, examType domain.ExamType) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var names []string
	for _, att := range r.attempts {
		if att.Batch == batch && att.ExamType == examType && !seen[att.ExamName] {
			seen[att.ExamName] = true
			names = append(names, att.ExamName)
		}
	}
	return names, nil
}

func (r *AttemptRepository) InsertAttempts(_ context.Context, attempts []*domain.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, att := range attempts {
		r.attempts[att.AttemptID] = cloneAttempt(att)
	}
	return nil
}

func (r *AttemptRepository) MarkStarted(_ context.Context, attemptID string, paper domain.Paper, ts time.Time, extensionMinutes int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	att, ok := r.attempts[attemptID]
	if !ok {
		return false, domain.ErrAttemptNotFound
	}
	if att.Started {
		return false, nil
	}
	att.Started = true
	att.StartTimestamp = &ts
	att.ExtensionMinutes = extensionMinutes
	att.Paper = paper
	return true, nil
}

func (r *AttemptRepository) MarkSubmitted(_ context.Context, attemptID string, analysis *domain.Analysis, ts time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	att, ok := r.attempts[attemptID]
	if !ok {
		return false, domain.ErrAttemptNotFound
	}
	if att.Submitted {
		return false, nil
	}
	att.Submitted = true
	att.SubmitTimestamp = &ts
	att.Analysis = analysis
	return true, nil
}

func (r *AttemptRepository) ResetStarted(_ context.Context, attemptID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	att, ok := r.attempts[attemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	att.Started = false
	att.StartTimestamp = nil
	att.Paper = nil
	return nil
}

// examKey identifies one nested exam document. Exam names repeat across
// batches (every batch's first Weekly exam is Weekly-1), so the batch is part
// of the key.
type examKey struct {
	batch string
	name  string
}

// examDoc is one exam document: the shared header plus every student's record.
type examDoc struct {
	examType domain.ExamType
	students map[string]*domain.Attempt // attemptID -> record
}

// NestedAttemptRepository is the in-memory nested shape: one exam document
// per (batch, exam name) holding every student's record.
type NestedAttemptRepository struct {
	mu    sync.RWMutex
	exams map[examKey]*examDoc
	index map[string]examKey // attemptID -> exam document
}

func NewNestedAttemptRepository() *NestedAttemptRepository {
	return &NestedAttemptRepository{
		exams: make(map[examKey]*examDoc),
		index: make(map[string]examKey),
	}
}

func (r *NestedAttemptRepository) locate(attemptID string) (*domain.Attempt, bool) {
	key, ok := r.index[attemptID]
	if !ok {
		return nil, false
	}
	doc, ok := r.exams[key]
	if !ok {
		return nil, false
	}
	att, ok := doc.students[attemptID]
	return att, ok
}

func (r *NestedAttemptRepository) FindAttempt(_ context.Context, attemptID string) (*domain.Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	att, ok := r.locate(attemptID)
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	return cloneAttempt(att), nil
}

func (r *NestedAttemptRepository) StudentAttempts(_ context.Context, studentID string, examType domain.ExamType) ([]*domain.Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Attempt
	for _, doc := range r.exams {
		for _, att := range doc.students {
			if att.StudentID == studentID && att.ExamType == examType {
				out = append(out, cloneAttempt(att))
			}
		}
	}
	return out, nil
}

func (r *NestedAttemptRepository) AttemptExists(_ context.Context, studentID, date string, examType domain.ExamType) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, doc := range r.exams {
		for _, att := range doc.students {
			if att.StudentID == studentID && att.StartDate == date && att.ExamType == examType {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *NestedAttemptRepository) ExamNames(_ context.Context, batch string, examType domain.ExamType) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for key, doc := range r.exams {
		if key.batch == batch && doc.examType == examType {
			names = append(names, key.name)
		}
	}
	return names, nil
}

// InsertAttempts stores the whole planner batch as one exam document. The
// planner plans one exam at a time, so every attempt shares the header.
func (r *NestedAttemptRepository) InsertAttempts(_ context.Context, attempts []*domain.Attempt) error {
	if len(attempts) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	head := attempts[0]
	key := examKey{batch: head.Batch, name: head.ExamName}
	doc, ok := r.exams[key]
	if !ok {
		doc = &examDoc{
			examType: head.ExamType,
			students: make(map[string]*domain.Attempt, len(attempts)),
		}
		r.exams[key] = doc
	}
	for _, att := range attempts {
		doc.students[att.AttemptID] = cloneAttempt(att)
		r.index[att.AttemptID] = key
	}
	return nil
}

func (r *NestedAttemptRepository) MarkStarted(_ context.Context, attemptID string, paper domain.Paper, ts time.Time, extensionMinutes int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	att, ok := r.locate(attemptID)
	if !ok {
		return false, domain.ErrAttemptNotFound
	}
	if att.Started {
		return false, nil
	}
	att.Started = true
	att.StartTimestamp = &ts
	att.ExtensionMinutes = extensionMinutes
	att.Paper = paper
	return true, nil
}

func (r *NestedAttemptRepository) MarkSubmitted(_ context.Context, attemptID string, analysis *domain.Analysis, ts time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	att, ok := r.locate(attemptID)
	if !ok {
		return false, domain.ErrAttemptNotFound
	}
	if att.Submitted {
		return false, nil
	}
	att.Submitted = true
	att.SubmitTimestamp = &ts
	att.Analysis = analysis
	return true, nil
}

func (r *NestedAttemptRepository) ResetStarted(_ context.Context, attemptID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	att, ok := r.locate(attemptID)
	if !ok {
		return domain.ErrAttemptNotFound
	}
	att.Started = false
	att.StartTimestamp = nil
	att.Paper = nil
	return nil
}

// cloneAttempt deep-copies through JSON so callers never alias stored state.
func cloneAttempt(att *domain.Attempt) *domain.Attempt {
	data, err := json.Marshal(att)
	if err != nil {
		dup := *att
		return &dup
	}
	var out domain.Attempt
	if err := json.Unmarshal(data, &out); err != nil {
		dup := *att
		return &dup
	}
	return &out
}
