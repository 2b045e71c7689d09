package app_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"exam-engine/internal/app"
	"exam-engine/internal/domain"
	"exam-engine/internal/infra/memory"
)

func analyzerFixture(gateway *fakeGateway, items ...domain.QuestionItem) *app.ScoreAnalyzer {
	store := newTestStore(items...)
	adjudicator := app.NewExecutionAdjudicator(gateway, store, memory.NewResultCache(0), app.AdjudicatorSettings{})
	return app.NewScoreAnalyzer(store, adjudicator, app.ScoringSettings{})
}

// startedAttempt wraps a paper in an attempt that began ten minutes ago.
func startedAttempt(paper domain.Paper, startAt time.Time) *domain.Attempt {
	att := plannedAttempt("a1", "2025-10-07")
	att.Started = true
	att.StartTimestamp = &startAt
	att.Paper = paper
	return att
}

func TestAnalyzeMixedPaper(t *testing.T) {
	mcq := mcqItem("m1", domain.DifficultyEasy, 1)
	easy := codeItem("ce", domain.DifficultyEasy, 5, domain.HiddenCase{Input: "3", ExpectedOutput: "6"})
	medium := codeItem("cm", domain.DifficultyMedium, 10, domain.HiddenCase{Input: "4", ExpectedOutput: "8"})

	// The gateway answers the sample and the easy hidden case correctly; the
	// medium hidden case comes back wrong.
	gateway := &fakeGateway{outputs: map[string]string{"1": "2", "3": "6"}}
	analyzer := analyzerFixture(gateway, mcq, easy, medium)

	start := time.Date(2025, 10, 7, 9, 10, 0, 0, time.UTC)
	att := startedAttempt(domain.Paper{{
		Subject:   "python",
		TotalTime: 30,
		MCQs:      []domain.QuestionItem{mcq.StudentView()},
		Coding:    []domain.QuestionItem{easy.StudentView(), medium.StudentView()},
	}}, start)

	answers := domain.AnswerSheet{
		MCQ: map[string]string{"m1": "b"},
		Code: map[string]domain.CodeAnswer{
			"ce": {Source: "print(int(input())*2)", Language: "python"},
			"cm": {Source: "print(int(input())+1)", Language: "python"},
		},
	}

	analysis, err := analyzer.Analyze(context.Background(), att, answers, start.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	if analysis.TotalScore != 6.0 || analysis.MaxScore != 16.0 {
		t.Fatalf("expected 6.0/16.0, got %v/%v", analysis.TotalScore, analysis.MaxScore)
	}
	if analysis.CorrectCount != 2 || analysis.IncorrectCount != 1 {
		t.Fatalf("expected 2 correct 1 incorrect, got %d/%d", analysis.CorrectCount, analysis.IncorrectCount)
	}
	if analysis.AttemptedMCQCount != 1 || analysis.AttemptedCodeCount != 2 {
		t.Fatalf("expected 1 MCQ and 2 code attempts, got %d/%d", analysis.AttemptedMCQCount, analysis.AttemptedCodeCount)
	}
	if analysis.TotalQuestions != 3 || analysis.NotAttemptedCount != 0 {
		t.Fatalf("expected 3 questions all attempted, got %d total %d unattempted", analysis.TotalQuestions, analysis.NotAttemptedCount)
	}
	if analysis.TotalTimeTaken != 600 || !analysis.ExamCompleted {
		t.Fatalf("expected 600s within budget, got %ds completed=%v", analysis.TotalTimeTaken, analysis.ExamCompleted)
	}

	breakdown, ok := analysis.SubjectBreakdown["python"]
	if !ok {
		t.Fatal("missing python breakdown")
	}
	if breakdown.MCQ.Score != 1 || breakdown.Coding.Score != 5 || breakdown.Coding.MaxScore != 15 {
		t.Fatalf("unexpected breakdown: %+v", breakdown)
	}

	var sum float64
	for _, r := range analysis.SubjectBreakdown {
		sum += r.Score
	}
	if math.Abs(sum-analysis.TotalScore) > 1e-9 {
		t.Fatalf("breakdown sum %v diverges from total %v", sum, analysis.TotalScore)
	}
}

func TestAnalyzeBlankAnswers(t *testing.T) {
	mcq := mcqItem("m1", domain.DifficultyEasy, 1)
	analyzer := analyzerFixture(&fakeGateway{}, mcq)

	start := time.Date(2025, 10, 7, 9, 10, 0, 0, time.UTC)
	att := startedAttempt(domain.Paper{{
		Subject: "python",
		MCQs:    []domain.QuestionItem{mcq.StudentView()},
	}}, start)

	analysis, err := analyzer.Analyze(context.Background(), att, domain.AnswerSheet{}, start.Add(time.Minute))
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if analysis.AttemptedCount != 0 || analysis.NotAttemptedCount != 1 {
		t.Fatalf("expected one unattempted question, got %+v", analysis)
	}
	if len(analysis.NotAttempted) != 1 || analysis.NotAttempted[0].QuestionID != "m1" {
		t.Fatalf("unattempted detail missing: %+v", analysis.NotAttempted)
	}
	if analysis.MaxScore != 1 || analysis.TotalScore != 0 {
		t.Fatalf("max score must count unattempted questions, got %v/%v", analysis.MaxScore, analysis.TotalScore)
	}
}

func TestAnalyzeOverrunClearsExamCompleted(t *testing.T) {
	mcq := mcqItem("m1", domain.DifficultyEasy, 1)
	analyzer := analyzerFixture(&fakeGateway{}, mcq)

	start := time.Date(2025, 10, 7, 9, 0, 0, 0, time.UTC)
	att := startedAttempt(domain.Paper{{
		Subject: "python",
		MCQs:    []domain.QuestionItem{mcq.StudentView()},
	}}, start)

	// 40 minutes elapsed against a 30-minute exam with no extension.
	analysis, err := analyzer.Analyze(context.Background(), att, domain.AnswerSheet{}, start.Add(40*time.Minute))
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if analysis.ExamCompleted {
		t.Fatal("overrun submission must not count as completed")
	}

	// The same overrun inside a granted extension does count.
	att.ExtensionMinutes = 15
	analysis, err = analyzer.Analyze(context.Background(), att, domain.AnswerSheet{}, start.Add(40*time.Minute))
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if !analysis.ExamCompleted {
		t.Fatal("submission within the extension should count as completed")
	}
}

func TestAnalyzeGatewayOutageGradesAsFailed(t *testing.T) {
	code := codeItem("ce", domain.DifficultyEasy, 5)
	gateway := &fakeGateway{err: errors.New("connection refused")}
	analyzer := analyzerFixture(gateway, code)

	start := time.Date(2025, 10, 7, 9, 10, 0, 0, time.UTC)
	att := startedAttempt(domain.Paper{{
		Subject: "python",
		Coding:  []domain.QuestionItem{code.StudentView()},
	}}, start)

	answers := domain.AnswerSheet{Code: map[string]domain.CodeAnswer{
		"ce": {Source: "print(2)", Language: "python"},
	}}
	analysis, err := analyzer.Analyze(context.Background(), att, answers, start.Add(time.Minute))
	if err != nil {
		t.Fatalf("an unreachable gateway must not sink the submission: %v", err)
	}
	if analysis.AttemptedCount != 1 || analysis.IncorrectCount != 1 || analysis.TotalScore != 0 {
		t.Fatalf("expected an attempted, failed question, got %+v", analysis)
	}
}
