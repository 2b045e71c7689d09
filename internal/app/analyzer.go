package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"exam-engine/internal/domain"
)

// ScoringSettings maps difficulties to code/query scores.
type ScoringSettings struct {
	DifficultyScores map[domain.Difficulty]float64
	DefaultScore     float64
}

// ScoreAnalyzer turns a paper plus an answer sheet into the persisted
// analysis. Code and query answers are adjudicated through the execution
// adjudicator; when the student already ran the same source, the result
// cache answers instead of the gateway.
type ScoreAnalyzer struct {
	store        QuestionStore
	adjudicator  *ExecutionAdjudicator
	scores       map[domain.Difficulty]float64
	defaultScore float64
}

func NewScoreAnalyzer(store QuestionStore, adjudicator *ExecutionAdjudicator, settings ScoringSettings) *ScoreAnalyzer {
	scores := settings.DifficultyScores
	if scores == nil {
		scores = map[domain.Difficulty]float64{
			domain.DifficultyEasy:   5,
			domain.DifficultyMedium: 10,
			domain.DifficultyHard:   15,
		}
	}
	defaultScore := settings.DefaultScore
	if defaultScore == 0 {
		defaultScore = 5
	}
	return &ScoreAnalyzer{
		store:        store,
		adjudicator:  adjudicator,
		scores:       scores,
		defaultScore: defaultScore,
	}
}

// mcqScore defaults to 1 when the item carries no explicit score.
func mcqScore(q domain.QuestionItem) float64 {
	if q.Score > 0 {
		return q.Score
	}
	return 1
}

// executionScore prefers the item's explicit score, then its difficulty.
func (s *ScoreAnalyzer) executionScore(q domain.QuestionItem) float64 {
	if q.Score > 0 {
		return q.Score
	}
	if v, ok := s.scores[q.Difficulty]; ok {
		return v
	}
	return s.defaultScore
}

// Analyze walks the paper in order and grades every question against the
// answer sheet.
func (s *ScoreAnalyzer) Analyze(ctx context.Context, att *domain.Attempt, answers domain.AnswerSheet, submitAt time.Time) (*domain.Analysis, error) {
	analysis := &domain.Analysis{
		SubjectBreakdown: make(map[string]domain.SubjectResult, len(att.Paper)),
		Details:          []domain.QuestionDetail{},
		NotAttempted:     []domain.QuestionDetail{},
	}

	for _, block := range att.Paper {
		result := domain.SubjectResult{}

		for _, q := range block.MCQs {
			s.gradeMCQ(ctx, analysis, &result, block.Subject, q, answers)
		}
		for _, q := range block.Coding {
			s.gradeExecution(ctx, analysis, &result, block.Subject, q, domain.KindCode, answers)
		}
		for _, q := range block.Query {
			s.gradeExecution(ctx, analysis, &result, block.Subject, q, domain.KindQuery, answers)
		}

		result.Score = result.MCQ.Score + result.Coding.Score + result.Query.Score
		analysis.SubjectBreakdown[block.Subject] = result
		analysis.TotalScore += result.Score
		analysis.MaxScore += result.MCQ.MaxScore + result.Coding.MaxScore + result.Query.MaxScore
	}

	analysis.TotalQuestions = analysis.TotalMCQCount + analysis.TotalCodingCount + analysis.TotalQueryCount
	analysis.NotAttemptedCount = analysis.TotalQuestions - analysis.AttemptedCount

	if att.StartTimestamp != nil {
		analysis.TotalTimeTaken = int(submitAt.Sub(*att.StartTimestamp) / time.Second)
	}
	budget := att.TotalExamTime*60 + att.ExtensionMinutes*60
	analysis.ExamCompleted = analysis.TotalTimeTaken <= budget

	return analysis, nil
}

func (s *ScoreAnalyzer) gradeMCQ(ctx context.Context, analysis *domain.Analysis, result *domain.SubjectResult, subject string, q domain.QuestionItem, answers domain.AnswerSheet) {
	score := mcqScore(q)
	analysis.TotalMCQCount++
	result.MCQ.Total++
	result.MCQ.MaxScore += score

	selected, ok := answers.MCQ[q.ID]
	if !ok || selected == "" {
		analysis.NotAttempted = append(analysis.NotAttempted, domain.QuestionDetail{
			QuestionID: q.ID, Subject: subject, Kind: domain.KindMCQ, Status: "Not Attempted",
		})
		return
	}

	analysis.AttemptedCount++
	analysis.AttemptedMCQCount++
	result.MCQ.Attempted++

	detail := domain.QuestionDetail{QuestionID: q.ID, Subject: subject, Kind: domain.KindMCQ, Status: "Incorrect"}
	// The stored paper is the sanitized view; the correct option lives only
	// in the question pool.
	full, err := s.store.Item(ctx, subject, domain.KindMCQ, q.ID)
	if err != nil {
		log.Error().Err(err).Str("question", q.ID).Msg("mcq item missing from pool at grading")
	} else if selected == full.CorrectOption {
		detail.Status = "Correct"
		detail.IsCorrect = true
		detail.ScoreAwarded = score
		analysis.CorrectCount++
		result.MCQ.Correct++
		result.MCQ.Score += score
	}
	if !detail.IsCorrect {
		analysis.IncorrectCount++
	}
	analysis.Details = append(analysis.Details, detail)
}

func (s *ScoreAnalyzer) gradeExecution(ctx context.Context, analysis *domain.Analysis, result *domain.SubjectResult, subject string, q domain.QuestionItem, kind domain.QuestionKind, answers domain.AnswerSheet) {
	score := s.executionScore(q)
	breakdown := &result.Coding
	if kind == domain.KindQuery {
		breakdown = &result.Query
		analysis.TotalQueryCount++
	} else {
		analysis.TotalCodingCount++
	}
	breakdown.Total++
	breakdown.MaxScore += score

	exec, attempted := s.adjudicateAnswer(ctx, subject, q.ID, kind, answers)
	if !attempted {
		analysis.NotAttempted = append(analysis.NotAttempted, domain.QuestionDetail{
			QuestionID: q.ID, Subject: subject, Kind: kind, Status: "Not Attempted",
		})
		return
	}

	analysis.AttemptedCount++
	if kind == domain.KindQuery {
		analysis.AttemptedQueryCount++
	} else {
		analysis.AttemptedCodeCount++
	}
	breakdown.Attempted++

	detail := domain.QuestionDetail{QuestionID: q.ID, Subject: subject, Kind: kind, Status: "Failed"}
	// All-or-nothing: every executed test must pass to earn the score.
	if exec.AllPassed() {
		detail.Status = "Passed"
		detail.IsCorrect = true
		detail.ScoreAwarded = score
		analysis.CorrectCount++
		breakdown.Correct++
		breakdown.Score += score
	} else {
		analysis.IncorrectCount++
	}
	analysis.Details = append(analysis.Details, detail)
}

// adjudicateAnswer runs the student's stored answer for one question.
// Adjudication failures (gateway down) grade as failed rather than sinking
// the submission.
func (s *ScoreAnalyzer) adjudicateAnswer(ctx context.Context, subject, questionID string, kind domain.QuestionKind, answers domain.AnswerSheet) (domain.ExecutionResult, bool) {
	switch kind {
	case domain.KindCode:
		answer, ok := answers.Code[questionID]
		if !ok || answer.Source == "" {
			return domain.ExecutionResult{}, false
		}
		exec, err := s.adjudicator.RunCode(ctx, subject, questionID, answer.Source, answer.Language, nil)
		if err != nil {
			log.Error().Err(err).Str("question", questionID).Msg("code adjudication failed at submit")
			return domain.ExecutionResult{Status: domain.StatusFailed, Message: fmt.Sprintf("adjudication failed: %v", err)}, true
		}
		return exec, true
	case domain.KindQuery:
		query, ok := answers.Query[questionID]
		if !ok || query == "" {
			return domain.ExecutionResult{}, false
		}
		exec, err := s.adjudicator.RunQuery(ctx, subject, questionID, query, false)
		if err != nil {
			log.Error().Err(err).Str("question", questionID).Msg("query adjudication failed at submit")
			return domain.ExecutionResult{Status: domain.StatusFailed, Message: fmt.Sprintf("adjudication failed: %v", err)}, true
		}
		return exec, true
	}
	return domain.ExecutionResult{}, false
}
