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

// attemptRow is the flat document shape: one row per attempt, used by Daily
// exams. Plan, paper and analysis ride along as JSONB.
type attemptRow struct {
	bun.BaseModel `bun:"table:attempts,alias:a"`

	ID             string `bun:"id,pk"`
	StudentID      string `bun:"student_id,notnull"`
	ExamName       string `bun:"exam_name,notnull"`
	Batch          string `bun:"batch,notnull"`
	Location       string `bun:"location,notnull"`
	StartDate      string `bun:"start_date,notnull"`
	ExamType       string `bun:"exam_type,notnull"`
	WindowStart    int    `bun:"window_start,notnull"`
	WindowEnd      int    `bun:"window_end,notnull"`
	WindowDuration int    `bun:"window_duration,notnull"`
	TotalExamTime  int    `bun:"total_exam_time,notnull"`

	Started          bool       `bun:"started,notnull,default:false"`
	Submitted        bool       `bun:"submitted,notnull,default:false"`
	StartTimestamp   *time.Time `bun:"start_timestamp"`
	SubmitTimestamp  *time.Time `bun:"submit_timestamp"`
	ExtensionMinutes int        `bun:"extension_minutes,notnull,default:0"`

	Subjects json.RawMessage `bun:"subjects,type:jsonb"`
	Paper    json.RawMessage `bun:"paper,type:jsonb"`
	Analysis json.RawMessage `bun:"analysis,type:jsonb"`
}

func rowFromAttempt(att *domain.Attempt) (*attemptRow, error) {
	subjects, err := json.Marshal(att.Subjects)
	if err != nil {
		return nil, fmt.Errorf("marshal subjects: %w", err)
	}
	row := &attemptRow{
		ID:               att.AttemptID,
		StudentID:        att.StudentID,
		ExamName:         att.ExamName,
		Batch:            att.Batch,
		Location:         att.Location,
		StartDate:        att.StartDate,
		ExamType:         string(att.ExamType),
		WindowStart:      att.WindowStart,
		WindowEnd:        att.WindowEnd,
		WindowDuration:   att.WindowDuration,
		TotalExamTime:    att.TotalExamTime,
		Started:          att.Started,
		Submitted:        att.Submitted,
		StartTimestamp:   att.StartTimestamp,
		SubmitTimestamp:  att.SubmitTimestamp,
		ExtensionMinutes: att.ExtensionMinutes,
		Subjects:         subjects,
	}
	if att.Paper != nil {
		if row.Paper, err = json.Marshal(att.Paper); err != nil {
			return nil, fmt.Errorf("marshal paper: %w", err)
		}
	}
	if att.Analysis != nil {
		if row.Analysis, err = json.Marshal(att.Analysis); err != nil {
			return nil, fmt.Errorf("marshal analysis: %w", err)
		}
	}
	return row, nil
}

func (r *attemptRow) toAttempt() (*domain.Attempt, error) {
	att := &domain.Attempt{
		AttemptID:        r.ID,
		StudentID:        r.StudentID,
		ExamName:         r.ExamName,
		Batch:            r.Batch,
		Location:         r.Location,
		StartDate:        r.StartDate,
		ExamType:         domain.ExamType(r.ExamType),
		WindowStart:      r.WindowStart,
		WindowEnd:        r.WindowEnd,
		WindowDuration:   r.WindowDuration,
		TotalExamTime:    r.TotalExamTime,
		Started:          r.Started,
		Submitted:        r.Submitted,
		StartTimestamp:   r.StartTimestamp,
		SubmitTimestamp:  r.SubmitTimestamp,
		ExtensionMinutes: r.ExtensionMinutes,
	}
	if len(r.Subjects) > 0 {
		if err := json.Unmarshal(r.Subjects, &att.Subjects); err != nil {
			return nil, fmt.Errorf("unmarshal subjects: %w", err)
		}
	}
	if len(r.Paper) > 0 {
		if err := json.Unmarshal(r.Paper, &att.Paper); err != nil {
			return nil, fmt.Errorf("unmarshal paper: %w", err)
		}
	}
	if len(r.Analysis) > 0 {
		if err := json.Unmarshal(r.Analysis, &att.Analysis); err != nil {
			return nil, fmt.Errorf("unmarshal analysis: %w", err)
		}
	}
	return att, nil
}

// AttemptRepository is the bun-backed flat shape. Lifecycle guards are
// conditional UPDATEs so concurrent transitions race on the database, not in
// process memory.
type AttemptRepository struct {
	db *bun.DB
}

func NewAttemptRepository(db *bun.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

func (r *AttemptRepository) FindAttempt(ctx context.Context, attemptID string) (*domain.Attempt, error) {
	row := new(attemptRow)
	err := r.db.NewSelect().Model(row).Where("id = ?", attemptID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find attempt: %w", err)
	}
	return row.toAttempt()
}

func (r *AttemptRepository) StudentAttempts(ctx context.Context, studentID string, examType domain.ExamType) ([]*domain.Attempt, error) {
	var rows []attemptRow
	err := r.db.NewSelect().Model(&rows).
		Where("student_id = ?", studentID).
		Where("exam_type = ?", string(examType)).
		Order("start_date DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("student attempts: %w", err)
	}
	out := make([]*domain.Attempt, 0, len(rows))
	for i := range rows {
		att, err := rows[i].toAttempt()
		if err != nil {
			return nil, err
		}
		out = append(out, att)
	}
	return out, nil
}

func (r *AttemptRepository) AttemptExists(ctx context.Context, studentID, date string, examType domain.ExamType) (bool, error) {
	return r.db.NewSelect().Model((*attemptRow)(nil)).
		Where("student_id = ?", studentID).
		Where("start_date = ?", date).
		Where("exam_type = ?", string(examType)).
		Exists(ctx)
}

func (r *AttemptRepository) ExamNames(ctx context.Context, batch string, examType domain.ExamType) ([]string, error) {
	var names []string
	err := r.db.NewSelect().Model((*attemptRow)(nil)).
		ColumnExpr("DISTINCT exam_name").
		Where("batch = ?", batch).
		Where("exam_type = ?", string(examType)).
		Scan(ctx, &names)
	if err != nil {
		return nil, fmt.Errorf("exam names: %w", err)
	}
	return names, nil
}

func (r *AttemptRepository) InsertAttempts(ctx context.Context, attempts []*domain.Attempt) error {
	if len(attempts) == 0 {
		return nil
	}
	rows := make([]*attemptRow, 0, len(attempts))
	for _, att := range attempts {
		row, err := rowFromAttempt(att)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	// One transaction so planning is all-or-nothing.
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
}

func (r *AttemptRepository) MarkStarted(ctx context.Context, attemptID string, paper domain.Paper, ts time.Time, extensionMinutes int) (bool, error) {
	data, err := json.Marshal(paper)
	if err != nil {
		return false, fmt.Errorf("marshal paper: %w", err)
	}
	res, err := r.db.NewUpdate().Model((*attemptRow)(nil)).
		Set("paper = ?", string(data)).
		Set("started = TRUE").
		Set("start_timestamp = ?", ts).
		Set("extension_minutes = ?", extensionMinutes).
		Where("id = ?", attemptID).
		Where("started = FALSE").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("mark started: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *AttemptRepository) MarkSubmitted(ctx context.Context, attemptID string, analysis *domain.Analysis, ts time.Time) (bool, error) {
	data, err := json.Marshal(analysis)
	if err != nil {
		return false, fmt.Errorf("marshal analysis: %w", err)
	}
	res, err := r.db.NewUpdate().Model((*attemptRow)(nil)).
		Set("analysis = ?", string(data)).
		Set("submitted = TRUE").
		Set("submit_timestamp = ?", ts).
		Where("id = ?", attemptID).
		Where("submitted = FALSE").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("mark submitted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *AttemptRepository) ResetStarted(ctx context.Context, attemptID string) error {
	_, err := r.db.NewUpdate().Model((*attemptRow)(nil)).
		Set("started = FALSE").
		Set("start_timestamp = NULL").
		Set("paper = NULL").
		Where("id = ?", attemptID).
		Where("started = TRUE").
		Where("paper IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reset started: %w", err)
	}
	return nil
}
