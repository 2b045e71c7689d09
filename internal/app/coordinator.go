package app

import (
	"context"

	"exam-engine/internal/domain"
)

// CoordinatorDeps wires the coordinator's collaborators.
type CoordinatorDeps struct {
	Repos     RepositorySet
	Store     QuestionStore
	Gateway   ExecutionGateway
	Cache     ResultCache
	Directory StudentDirectory
	// Curriculum may be nil; plans then keep their request ordering and tags.
	Curriculum Curriculum
	Clock      domain.Clock

	Policy      PolicySettings
	Assembler   AssemblerSettings
	Adjudicator AdjudicatorSettings
	Scoring     ScoringSettings
}

// Coordinator is the core façade handed to external layers. It owns the
// component graph and the process-local caches; everything durable lives
// behind the repositories.
type Coordinator struct {
	repos       RepositorySet
	policy      *WindowPolicy
	planner     *ExamPlanner
	machine     *AttemptStateMachine
	adjudicator *ExecutionAdjudicator
	clock       domain.Clock
}

func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	policy := NewWindowPolicy(deps.Clock, deps.Policy)
	assembler := NewPaperAssembler(deps.Store, deps.Assembler)
	adjudicator := NewExecutionAdjudicator(deps.Gateway, deps.Store, deps.Cache, deps.Adjudicator)
	analyzer := NewScoreAnalyzer(deps.Store, adjudicator, deps.Scoring)
	return &Coordinator{
		repos:       deps.Repos,
		policy:      policy,
		planner:     NewExamPlanner(deps.Repos, policy, deps.Directory, deps.Curriculum, deps.Clock),
		machine:     NewAttemptStateMachine(deps.Repos, assembler, analyzer, policy, deps.Clock),
		adjudicator: adjudicator,
		clock:       deps.Clock,
	}
}

// Plan materializes an exam for a cohort and returns the notifier payload.
func (c *Coordinator) Plan(ctx context.Context, req PlanRequest) (*domain.PlanNotice, error) {
	return c.planner.Plan(ctx, req)
}

// Start transitions an attempt to started and returns the student's paper.
func (c *Coordinator) Start(ctx context.Context, attemptID string) (*StartResult, error) {
	return c.machine.Start(ctx, attemptID)
}

// ExecuteRequest is a student's run-my-code call for one question.
type ExecuteRequest struct {
	AttemptID   string              `json:"attemptId"`
	Subject     string              `json:"subject"`
	QuestionID  string              `json:"questionId"`
	Kind        domain.QuestionKind `json:"kind"`
	Source      string              `json:"source"`
	Language    string              `json:"language"`
	CustomInput *string             `json:"customInput,omitempty"`
}

// Execute adjudicates a submission for an attempt in flight. Start must have
// happened and submit must not have; violations return structured errors.
func (c *Coordinator) Execute(ctx context.Context, req ExecuteRequest) (domain.ExecutionResult, error) {
	att, _, err := c.repos.Find(ctx, req.AttemptID)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	if !att.Started {
		return domain.ExecutionResult{}, domain.ErrNotStarted
	}
	if att.Submitted {
		return domain.ExecutionResult{}, domain.ErrAlreadySubmitted
	}

	switch req.Kind {
	case domain.KindQuery:
		return c.adjudicator.RunQuery(ctx, req.Subject, req.QuestionID, req.Source, req.CustomInput != nil)
	default:
		return c.adjudicator.RunCode(ctx, req.Subject, req.QuestionID, req.Source, req.Language, req.CustomInput)
	}
}

// Submit grades the attempt and flips it to submitted.
func (c *Coordinator) Submit(ctx context.Context, attemptID string, answers domain.AnswerSheet) (*domain.Analysis, error) {
	return c.machine.Submit(ctx, attemptID, answers)
}

// AttemptSummary is one row of a student's exam dashboard.
type AttemptSummary struct {
	Attempt *domain.Attempt    `json:"attempt"`
	Window  domain.WindowCheck `json:"window"`
}

// AvailableAttempts lists a student's attempts of one type with their live
// window status.
func (c *Coordinator) AvailableAttempts(ctx context.Context, studentID string, examType domain.ExamType) ([]AttemptSummary, error) {
	if !examType.Valid() {
		return nil, domain.ErrInvalidExamType.WithMessage("unknown exam type %q", examType)
	}
	attempts, err := c.repos.ForType(examType).StudentAttempts(ctx, studentID, examType)
	if err != nil {
		return nil, err
	}
	summaries := make([]AttemptSummary, 0, len(attempts))
	for _, att := range attempts {
		summaries = append(summaries, AttemptSummary{Attempt: att, Window: c.policy.Check(att)})
	}
	return summaries, nil
}
