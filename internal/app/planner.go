package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"exam-engine/internal/domain"
)

// PlanRequest is the administrative input for materializing an exam. A blank
// Location means the manager plans for their own site.
type PlanRequest struct {
	Type            domain.ExamType      `yaml:"type" json:"type"`
	Batch           string               `yaml:"batch" json:"batch"`
	Location        string               `yaml:"location" json:"location"`
	ManagerLocation string               `yaml:"managerLocation" json:"managerLocation"`
	StartDate       string               `yaml:"startDate" json:"startDate"`
	TotalExamTime   int                  `yaml:"totalExamTime" json:"totalExamTime"`
	Subjects        []domain.SubjectSpec `yaml:"subjects" json:"subjects"`
}

func (req PlanRequest) cohortLocation() string {
	if req.Location != "" {
		return req.Location
	}
	return req.ManagerLocation
}

// ExamPlanner materializes scheduled attempts for every eligible student in a
// cohort. It owns attempt creation and nothing else; the returned notice is
// handed to an external notifier.
type ExamPlanner struct {
	repos      RepositorySet
	policy     *WindowPolicy
	directory  StudentDirectory
	curriculum Curriculum
	clock      domain.Clock
	newID      func() string
}

func NewExamPlanner(repos RepositorySet, policy *WindowPolicy, directory StudentDirectory, curriculum Curriculum, clock domain.Clock) *ExamPlanner {
	return &ExamPlanner{
		repos:      repos,
		policy:     policy,
		directory:  directory,
		curriculum: curriculum,
		clock:      clock,
		newID:      uuid.NewString,
	}
}

// Plan validates the request, resolves eligible students and bulk-creates
// their attempts. Zero eligible students writes nothing.
func (p *ExamPlanner) Plan(ctx context.Context, req PlanRequest) (*domain.PlanNotice, error) {
	if err := p.policy.ValidateType(req.Type); err != nil {
		return nil, err
	}
	window, err := p.policy.Window(req.Type)
	if err != nil {
		return nil, err
	}
	if err := p.policy.ValidateDuration(req.Type, req.TotalExamTime); err != nil {
		return nil, err
	}
	date, err := domain.ParseDate(req.StartDate, p.clock.Loc)
	if err != nil {
		return nil, err
	}
	if err := p.policy.ValidateWeekday(req.Type, date); err != nil {
		return nil, err
	}
	if err := p.policy.ValidateScheduleTiming(date, window.EndSec); err != nil {
		return nil, err
	}

	subjects, err := p.resolveSubjects(ctx, req)
	if err != nil {
		return nil, err
	}

	repo := p.repos.ForType(req.Type)
	eligible, err := p.eligibleStudents(ctx, repo, req)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, domain.ErrNoEligibleStudents.WithMessage(
			"no eligible students in batch %s at %s for %s", req.Batch, req.cohortLocation(), req.StartDate)
	}

	examName, err := p.nextExamName(ctx, repo, req.Batch, req.Type)
	if err != nil {
		return nil, err
	}

	attempts := make([]*domain.Attempt, 0, len(eligible))
	studentIDs := make([]string, 0, len(eligible))
	for _, student := range eligible {
		attempts = append(attempts, &domain.Attempt{
			AttemptID:      p.newID(),
			StudentID:      student.ID,
			ExamName:       examName,
			Batch:          req.Batch,
			Location:       req.cohortLocation(),
			StartDate:      req.StartDate,
			ExamType:       req.Type,
			WindowStart:    window.StartSec,
			WindowEnd:      window.EndSec,
			WindowDuration: window.DurationSec(),
			TotalExamTime:  req.TotalExamTime,
			Subjects:       subjects,
		})
		studentIDs = append(studentIDs, student.ID)
	}

	if err := repo.InsertAttempts(ctx, attempts); err != nil {
		return nil, fmt.Errorf("persist planned attempts: %w", err)
	}

	log.Info().
		Str("exam", examName).
		Str("batch", req.Batch).
		Int("students", len(studentIDs)).
		Msg("exam planned")

	return &domain.PlanNotice{
		ExamName:    examName,
		WindowOpen:  domain.FromSeconds(window.StartSec),
		WindowClose: domain.FromSeconds(window.EndSec),
		StudentIDs:  studentIDs,
	}, nil
}

// resolveSubjects defaults missing tags from the curriculum and reorders the
// plan to curriculum order. Without a curriculum view the request order wins.
func (p *ExamPlanner) resolveSubjects(ctx context.Context, req PlanRequest) ([]domain.SubjectSpec, error) {
	if p.curriculum == nil {
		return req.Subjects, nil
	}
	entries, err := p.curriculum.SubjectsFor(ctx, req.Batch, req.cohortLocation(), req.StartDate)
	if err != nil {
		return nil, fmt.Errorf("curriculum lookup: %w", err)
	}
	byName := make(map[string]domain.CurriculumEntry, len(entries))
	order := make(map[string]int, len(entries))
	for i, e := range entries {
		byName[e.Subject] = e
		order[e.Subject] = i
	}

	subjects := make([]domain.SubjectSpec, len(req.Subjects))
	copy(subjects, req.Subjects)
	for i := range subjects {
		if len(subjects[i].Tags) == 0 {
			if entry, ok := byName[subjects[i].Subject]; ok {
				subjects[i].Tags = entry.Tags
			}
		}
	}
	// Stable sort: curriculum subjects first in curriculum order, the rest in
	// request order.
	sorted := make([]domain.SubjectSpec, 0, len(subjects))
	for _, e := range entries {
		for _, s := range subjects {
			if s.Subject == e.Subject {
				sorted = append(sorted, s)
			}
		}
	}
	for _, s := range subjects {
		if _, ok := order[s.Subject]; !ok {
			sorted = append(sorted, s)
		}
	}
	return sorted, nil
}

func (p *ExamPlanner) eligibleStudents(ctx context.Context, repo AttemptRepository, req PlanRequest) ([]domain.Student, error) {
	cohort, err := p.directory.Cohort(ctx, req.Batch, req.cohortLocation())
	if err != nil {
		return nil, fmt.Errorf("resolve cohort: %w", err)
	}
	eligible := make([]domain.Student, 0, len(cohort))
	for _, student := range cohort {
		if student.Placed {
			continue
		}
		exists, err := repo.AttemptExists(ctx, student.ID, req.StartDate, req.Type)
		if err != nil {
			return nil, fmt.Errorf("check existing attempt: %w", err)
		}
		if exists {
			continue
		}
		eligible = append(eligible, student)
	}
	return eligible, nil
}

// nextExamName derives "{type}-N" with N one past the highest suffix already
// used for this batch and type.
func (p *ExamPlanner) nextExamName(ctx context.Context, repo AttemptRepository, batch string, t domain.ExamType) (string, error) {
	names, err := repo.ExamNames(ctx, batch, t)
	if err != nil {
		return "", fmt.Errorf("list exam names: %w", err)
	}
	prefix := string(t) + "-"
	max := 0
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(name, prefix)); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s%d", prefix, max+1), nil
}
