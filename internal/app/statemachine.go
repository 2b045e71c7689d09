package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"exam-engine/internal/domain"
)

// AttemptStateMachine enforces the scheduled → started → submitted lifecycle.
// Transitions are forward-only and guarded by compare-and-set operations on
// the repository; the single permitted compensation is clearing a started
// flag whose paper never landed (crash during a previous start).
type AttemptStateMachine struct {
	repos     RepositorySet
	assembler *PaperAssembler
	analyzer  *ScoreAnalyzer
	policy    *WindowPolicy
	clock     domain.Clock
}

func NewAttemptStateMachine(repos RepositorySet, assembler *PaperAssembler, analyzer *ScoreAnalyzer, policy *WindowPolicy, clock domain.Clock) *AttemptStateMachine {
	return &AttemptStateMachine{
		repos:     repos,
		assembler: assembler,
		analyzer:  analyzer,
		policy:    policy,
		clock:     clock,
	}
}

// StartResult is what a student receives when an attempt starts (or
// reattaches): the sanitized paper plus the window grant.
type StartResult struct {
	Attempt          *domain.Attempt
	Paper            domain.Paper
	ExtensionMinutes int
	Reattached       bool
}

// Start transitions an attempt to started, assembling its paper on the way.
// Calling Start again during the active window returns the existing paper.
func (m *AttemptStateMachine) Start(ctx context.Context, attemptID string) (*StartResult, error) {
	att, repo, err := m.repos.Find(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if att.Submitted {
		return nil, domain.ErrAlreadySubmitted
	}

	check := m.policy.Check(att)
	switch check.Status {
	case domain.WindowExpired:
		return nil, domain.ErrWindowExpired.WithMessage("%s", check.Message)
	case domain.WindowUpcoming:
		return nil, domain.ErrWindowUpcoming.WithMessage("%s", check.Message)
	case domain.WindowNone:
		return nil, domain.ErrWindowMissing
	}

	if att.Started {
		if !att.Paper.Empty() {
			// Idempotent reattach: the student refreshed or reconnected.
			return &StartResult{Attempt: att, Paper: att.Paper, ExtensionMinutes: att.ExtensionMinutes, Reattached: true}, nil
		}
		// started=true with no paper means a previous start crashed between
		// the flag and the paper write; clear it and rebuild.
		log.Warn().Str("attempt", att.AttemptID).Msg("recovering attempt stuck in started without paper")
		if err := repo.ResetStarted(ctx, att.AttemptID); err != nil {
			return nil, err
		}
	}

	paper, err := m.assembler.Assemble(ctx, att.Subjects)
	if err != nil {
		// State untouched; the student may retry.
		return nil, err
	}

	now := m.clock.Now()
	ok, err := repo.MarkStarted(ctx, att.AttemptID, paper, now, check.ExtensionMinutes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrRaceAlreadyStarted
	}

	att.Started = true
	att.StartTimestamp = &now
	att.ExtensionMinutes = check.ExtensionMinutes
	att.Paper = paper
	return &StartResult{Attempt: att, Paper: paper, ExtensionMinutes: check.ExtensionMinutes}, nil
}

// Submit computes the analysis and flips the attempt to submitted. At most
// one analysis ever persists per attempt.
func (m *AttemptStateMachine) Submit(ctx context.Context, attemptID string, answers domain.AnswerSheet) (*domain.Analysis, error) {
	att, repo, err := m.repos.Find(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if !att.Started {
		return nil, domain.ErrNotStarted
	}
	if att.Submitted {
		return nil, domain.ErrAlreadySubmitted
	}

	now := m.clock.Now()
	analysis, err := m.analyzer.Analyze(ctx, att, answers, now)
	if err != nil {
		return nil, err
	}

	ok, err := repo.MarkSubmitted(ctx, att.AttemptID, analysis, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrAlreadySubmitted
	}
	return analysis, nil
}
