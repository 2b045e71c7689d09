package app

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"exam-engine/internal/domain"
)

// AssemblerSettings configures paper assembly.
type AssemblerSettings struct {
	// SubjectKinds is the allowlist of question kinds per subject; it doubles
	// as the (subject, kind) pool resolver.
	SubjectKinds map[string][]domain.QuestionKind
	// ExcludedSubjects appear in the curriculum but never yield questions.
	ExcludedSubjects []string
	// Timeout is the overall deadline for one assembly call.
	Timeout time.Duration
	// Workers bounds concurrent sampling; zero means GOMAXPROCS.
	Workers int
}

// PaperAssembler builds papers by sampling every (subject, kind, difficulty)
// request concurrently under a single deadline. Partial sourcing is
// tolerated; an entirely empty paper is not.
type PaperAssembler struct {
	store        QuestionStore
	subjectKinds map[string][]domain.QuestionKind
	excluded     map[string]bool
	timeout      time.Duration
	workers      int
}

func NewPaperAssembler(store QuestionStore, settings AssemblerSettings) *PaperAssembler {
	excluded := make(map[string]bool, len(settings.ExcludedSubjects))
	for _, s := range settings.ExcludedSubjects {
		excluded[s] = true
	}
	workers := settings.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &PaperAssembler{
		store:        store,
		subjectKinds: settings.SubjectKinds,
		excluded:     excluded,
		timeout:      timeout,
		workers:      workers,
	}
}

type sampleRequest struct {
	subjectIdx int
	kind       domain.QuestionKind
	difficulty domain.Difficulty
	count      int
}

// Assemble builds a sanitized paper for the given subject plan. Subject order
// in the output follows the input (curriculum) order.
func (a *PaperAssembler) Assemble(ctx context.Context, subjects []domain.SubjectSpec) (domain.Paper, error) {
	requests := a.buildRequests(subjects)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	// One slot per request; slots are disjoint so no locking is needed.
	results := make([][]domain.QuestionItem, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			spec := subjects[req.subjectIdx]
			items, err := a.store.Sample(gctx, spec.Subject, req.kind, spec.Tags, req.difficulty, req.count)
			if err != nil {
				// Tolerated: a missing slice of one kind must not sink the
				// whole paper.
				log.Warn().Err(err).
					Str("subject", spec.Subject).
					Str("kind", string(req.kind)).
					Str("difficulty", string(req.difficulty)).
					Msg("question sampling failed")
				return nil
			}
			if len(items) < req.count {
				log.Warn().
					Str("subject", spec.Subject).
					Str("kind", string(req.kind)).
					Str("difficulty", string(req.difficulty)).
					Int("requested", req.count).
					Int("sourced", len(items)).
					Msg("question pool short of quota")
			}
			results[i] = items
			return nil
		})
	}
	_ = g.Wait()

	paper := a.collect(subjects, requests, results)
	if paper.Empty() {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.ErrPaperTimeout
		}
		return nil, domain.ErrPaperEmpty
	}
	return paper, nil
}

func (a *PaperAssembler) buildRequests(subjects []domain.SubjectSpec) []sampleRequest {
	difficulties := []domain.Difficulty{domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard}
	var requests []sampleRequest
	for idx, spec := range subjects {
		if a.excluded[spec.Subject] {
			continue
		}
		for _, kind := range a.kindsFor(spec.Subject) {
			quota := quotaFor(spec, kind)
			for _, d := range difficulties {
				if n := quota.Count(d); n > 0 {
					requests = append(requests, sampleRequest{subjectIdx: idx, kind: kind, difficulty: d, count: n})
				}
			}
		}
	}
	return requests
}

func (a *PaperAssembler) kindsFor(subject string) []domain.QuestionKind {
	if kinds, ok := a.subjectKinds[subject]; ok {
		return kinds
	}
	// Unknown subjects fall back to MCQ only; never invent a code pool for a
	// subject outside the allowlist.
	return []domain.QuestionKind{domain.KindMCQ}
}

func quotaFor(spec domain.SubjectSpec, kind domain.QuestionKind) domain.Quota {
	switch kind {
	case domain.KindMCQ:
		return spec.SelectedMCQs
	case domain.KindCode:
		return spec.SelectedCoding
	case domain.KindQuery:
		return spec.SelectedQuery
	}
	return domain.Quota{}
}

func (a *PaperAssembler) collect(subjects []domain.SubjectSpec, requests []sampleRequest, results [][]domain.QuestionItem) domain.Paper {
	perSubject := make([]domain.SubjectPaper, len(subjects))
	for i, spec := range subjects {
		perSubject[i] = domain.SubjectPaper{Subject: spec.Subject, TotalTime: spec.TotalTime}
	}
	for i, req := range requests {
		for _, item := range results[i] {
			view := item.StudentView()
			block := &perSubject[req.subjectIdx]
			switch req.kind {
			case domain.KindMCQ:
				block.MCQs = append(block.MCQs, view)
			case domain.KindCode:
				block.Coding = append(block.Coding, view)
			case domain.KindQuery:
				block.Query = append(block.Query, view)
			}
		}
	}

	paper := make(domain.Paper, 0, len(subjects))
	for i, spec := range subjects {
		if a.excluded[spec.Subject] {
			continue
		}
		block := perSubject[i]
		if spec.SelectedMCQs.Total() > 0 && len(block.MCQs) == 0 {
			// A subject that asked for MCQs and sourced none is dropped, never
			// silently swapped.
			log.Warn().Str("subject", spec.Subject).Msg("dropping subject: no MCQ items sourced")
			continue
		}
		if len(block.MCQs) == 0 && len(block.Coding) == 0 && len(block.Query) == 0 {
			log.Warn().Str("subject", spec.Subject).Msg("dropping subject: no items sourced")
			continue
		}
		paper = append(paper, block)
	}
	return paper
}
