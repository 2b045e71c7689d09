package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"exam-engine/internal/domain"
)

// examRow is the nested document shape used by Weekly and Monthly exams: one
// row per (batch, exam name), every attempt folded into the students JSONB
// map keyed by attempt id. Exam names repeat across batches, so the batch is
// part of the primary key.
type examRow struct {
	bun.BaseModel `bun:"table:exams,alias:e"`

	ExamName       string `bun:"exam_name,pk"`
	Batch          string `bun:"batch,pk"`
	Location       string `bun:"location,notnull"`
	ExamType       string `bun:"exam_type,notnull"`
	StartDate      string `bun:"start_date,notnull"`
	WindowStart    int    `bun:"window_start,notnull"`
	WindowEnd      int    `bun:"window_end,notnull"`
	WindowDuration int    `bun:"window_duration,notnull"`
	TotalExamTime  int    `bun:"total_exam_time,notnull"`

	Subjects json.RawMessage `bun:"subjects,type:jsonb"`
	Students json.RawMessage `bun:"students,type:jsonb"`
}

// studentRecord is the per-attempt payload inside examRow.Students.
type studentRecord struct {
	StudentID        string           `json:"studentId"`
	Started          bool             `json:"started"`
	Submitted        bool             `json:"submitted"`
	StartTimestamp   *time.Time       `json:"startTimestamp,omitempty"`
	SubmitTimestamp  *time.Time       `json:"submitTimestamp,omitempty"`
	ExtensionMinutes int              `json:"extensionMinutes"`
	Paper            domain.Paper     `json:"paper,omitempty"`
	Analysis         *domain.Analysis `json:"analysis,omitempty"`
}

func (r *examRow) decodeStudents() (map[string]studentRecord, error) {
	students := make(map[string]studentRecord)
	if len(r.Students) > 0 {
		if err := json.Unmarshal(r.Students, &students); err != nil {
			return nil, fmt.Errorf("unmarshal exam students: %w", err)
		}
	}
	return students, nil
}

func (r *examRow) attempt(attemptID string, rec studentRecord) (*domain.Attempt, error) {
	att := &domain.Attempt{
		AttemptID:        attemptID,
		StudentID:        rec.StudentID,
		ExamName:         r.ExamName,
		Batch:            r.Batch,
		Location:         r.Location,
		StartDate:        r.StartDate,
		ExamType:         domain.ExamType(r.ExamType),
		WindowStart:      r.WindowStart,
		WindowEnd:        r.WindowEnd,
		WindowDuration:   r.WindowDuration,
		TotalExamTime:    r.TotalExamTime,
		Started:          rec.Started,
		Submitted:        rec.Submitted,
		StartTimestamp:   rec.StartTimestamp,
		SubmitTimestamp:  rec.SubmitTimestamp,
		ExtensionMinutes: rec.ExtensionMinutes,
		Paper:            rec.Paper,
		Analysis:         rec.Analysis,
	}
	if len(r.Subjects) > 0 {
		if err := json.Unmarshal(r.Subjects, &att.Subjects); err != nil {
			return nil, fmt.Errorf("unmarshal exam subjects: %w", err)
		}
	}
	return att, nil
}

// ExamRepository is the bun-backed nested shape. Per-attempt transitions lock
// the exam row so concurrent starts against the same batch serialize.
type ExamRepository struct {
	db *bun.DB
}

func NewExamRepository(db *bun.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

func (r *ExamRepository) findRowByAttempt(ctx context.Context, db bun.IDB, attemptID string, forUpdate bool) (*examRow, error) {
	row := new(examRow)
	q := db.NewSelect().Model(row).Where("students -> ? IS NOT NULL", attemptID)
	if forUpdate {
		q = q.For("UPDATE")
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find exam by attempt: %w", err)
	}
	return row, nil
}

func (r *ExamRepository) FindAttempt(ctx context.Context, attemptID string) (*domain.Attempt, error) {
	row, err := r.findRowByAttempt(ctx, r.db, attemptID, false)
	if err != nil {
		return nil, err
	}
	students, err := row.decodeStudents()
	if err != nil {
		return nil, err
	}
	rec, ok := students[attemptID]
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	return row.attempt(attemptID, rec)
}

func (r *ExamRepository) StudentAttempts(ctx context.Context, studentID string, examType domain.ExamType) ([]*domain.Attempt, error) {
	var rows []examRow
	err := r.db.NewSelect().Model(&rows).
		Where("exam_type = ?", string(examType)).
		Where("EXISTS (SELECT 1 FROM jsonb_each(e.students) s WHERE s.value ->> 'studentId' = ?)", studentID).
		Order("start_date DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("student attempts: %w", err)
	}
	var out []*domain.Attempt
	for i := range rows {
		students, err := rows[i].decodeStudents()
		if err != nil {
			return nil, err
		}
		for attemptID, rec := range students {
			if rec.StudentID != studentID {
				continue
			}
			att, err := rows[i].attempt(attemptID, rec)
			if err != nil {
				return nil, err
			}
			out = append(out, att)
		}
	}
	return out, nil
}

func (r *ExamRepository) AttemptExists(ctx context.Context, studentID, date string, examType domain.ExamType) (bool, error) {
	return r.db.NewSelect().Model((*examRow)(nil)).
		Where("exam_type = ?", string(examType)).
		Where("start_date = ?", date).
		Where("EXISTS (SELECT 1 FROM jsonb_each(e.students) s WHERE s.value ->> 'studentId' = ?)", studentID).
		Exists(ctx)
}

func (r *ExamRepository) ExamNames(ctx context.Context, batch string, examType domain.ExamType) ([]string, error) {
	var names []string
	err := r.db.NewSelect().Model((*examRow)(nil)).
		Column("exam_name").
		Where("batch = ?", batch).
		Where("exam_type = ?", string(examType)).
		Scan(ctx, &names)
	if err != nil {
		return nil, fmt.Errorf("exam names: %w", err)
	}
	return names, nil
}

// InsertAttempts writes the whole batch as a single exam document. The
// planner always plans one exam at a time, so every attempt shares the exam
// header.
func (r *ExamRepository) InsertAttempts(ctx context.Context, attempts []*domain.Attempt) error {
	if len(attempts) == 0 {
		return nil
	}
	head := attempts[0]
	subjects, err := json.Marshal(head.Subjects)
	if err != nil {
		return fmt.Errorf("marshal exam subjects: %w", err)
	}
	students := make(map[string]studentRecord, len(attempts))
	for _, att := range attempts {
		students[att.AttemptID] = studentRecord{
			StudentID:        att.StudentID,
			Started:          att.Started,
			Submitted:        att.Submitted,
			StartTimestamp:   att.StartTimestamp,
			SubmitTimestamp:  att.SubmitTimestamp,
			ExtensionMinutes: att.ExtensionMinutes,
			Paper:            att.Paper,
			Analysis:         att.Analysis,
		}
	}
	encoded, err := json.Marshal(students)
	if err != nil {
		return fmt.Errorf("marshal exam students: %w", err)
	}
	row := &examRow{
		ExamName:       head.ExamName,
		Batch:          head.Batch,
		Location:       head.Location,
		ExamType:       string(head.ExamType),
		StartDate:      head.StartDate,
		WindowStart:    head.WindowStart,
		WindowEnd:      head.WindowEnd,
		WindowDuration: head.WindowDuration,
		TotalExamTime:  head.TotalExamTime,
		Subjects:       subjects,
		Students:       encoded,
	}
	_, err = r.db.NewInsert().Model(row).Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}
	return nil
}

// mutateStudent applies fn to one student record under a row lock. fn returns
// false to abort without writing, signalling a lost compare-and-set.
func (r *ExamRepository) mutateStudent(ctx context.Context, attemptID string, fn func(rec *studentRecord) bool) (bool, error) {
	applied := false
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row, err := r.findRowByAttempt(ctx, tx, attemptID, true)
		if err != nil {
			return err
		}
		students, err := row.decodeStudents()
		if err != nil {
			return err
		}
		rec, ok := students[attemptID]
		if !ok {
			return domain.ErrAttemptNotFound
		}
		if !fn(&rec) {
			return nil
		}
		students[attemptID] = rec
		encoded, err := json.Marshal(students)
		if err != nil {
			return fmt.Errorf("marshal exam students: %w", err)
		}
		_, err = tx.NewUpdate().Model((*examRow)(nil)).
			Set("students = ?", string(encoded)).
			Where("exam_name = ?", row.ExamName).
			Where("batch = ?", row.Batch).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update exam students: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *ExamRepository) MarkStarted(ctx context.Context, attemptID string, paper domain.Paper, ts time.Time, extensionMinutes int) (bool, error) {
	return r.mutateStudent(ctx, attemptID, func(rec *studentRecord) bool {
		if rec.Started {
			return false
		}
		rec.Started = true
		rec.StartTimestamp = &ts
		rec.ExtensionMinutes = extensionMinutes
		rec.Paper = paper
		return true
	})
}

func (r *ExamRepository) MarkSubmitted(ctx context.Context, attemptID string, analysis *domain.Analysis, ts time.Time) (bool, error) {
	return r.mutateStudent(ctx, attemptID, func(rec *studentRecord) bool {
		if rec.Submitted {
			return false
		}
		rec.Submitted = true
		rec.SubmitTimestamp = &ts
		rec.Analysis = analysis
		return true
	})
}

func (r *ExamRepository) ResetStarted(ctx context.Context, attemptID string) error {
	_, err := r.mutateStudent(ctx, attemptID, func(rec *studentRecord) bool {
		if !rec.Started || len(rec.Paper) > 0 {
			return false
		}
		rec.Started = false
		rec.StartTimestamp = nil
		return true
	})
	return err
}
