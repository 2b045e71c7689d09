package app_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"exam-engine/internal/app"
	"exam-engine/internal/domain"
	"exam-engine/internal/infra/memory"
)

// fixedClock pins the engine to a single instant in UTC.
func fixedClock(at time.Time) domain.Clock {
	return domain.Clock{Loc: time.UTC, NowFn: func() time.Time { return at }}
}

func testPolicySettings() app.PolicySettings {
	return app.PolicySettings{
		Windows: map[domain.ExamType]domain.WindowConfig{
			domain.ExamTypeDaily:  {StartSec: 32400, EndSec: 36000, Active: true},
			domain.ExamTypeWeekly: {StartSec: 32400, EndSec: 46800, Active: true},
		},
		MaxDurationMinutes: map[domain.ExamType]int{
			domain.ExamTypeDaily:  60,
			domain.ExamTypeWeekly: 240,
		},
		WeekdayOnly: []domain.ExamType{domain.ExamTypeDaily},
		Enabled:     []domain.ExamType{domain.ExamTypeDaily, domain.ExamTypeWeekly},
	}
}

var testSubjectKinds = map[string][]domain.QuestionKind{
	"python": {domain.KindMCQ, domain.KindCode},
	"sql":    {domain.KindMCQ, domain.KindQuery},
}

// newTestStore builds an allowlisted question store over a static loader.
func newTestStore(items ...domain.QuestionItem) *memory.QuestionStore {
	loader := memory.NewStaticPoolLoader()
	loader.Add(items...)
	return memory.NewQuestionStore(loader, testSubjectKinds, time.Minute)
}

func mcqItem(id string, difficulty domain.Difficulty, score float64) domain.QuestionItem {
	return domain.QuestionItem{
		ID:            id,
		Subject:       "python",
		Kind:          domain.KindMCQ,
		Tags:          []string{"t1"},
		Difficulty:    difficulty,
		Score:         score,
		Prompt:        "pick one",
		Options:       map[string]string{"a": "first", "b": "second"},
		CorrectOption: "b",
	}
}

func codeItem(id string, difficulty domain.Difficulty, score float64, hidden ...domain.HiddenCase) domain.QuestionItem {
	return domain.QuestionItem{
		ID:           id,
		Subject:      "python",
		Kind:         domain.KindCode,
		Tags:         []string{"t1"},
		Difficulty:   difficulty,
		Score:        score,
		Prompt:       "double the input",
		SampleInput:  "1",
		SampleOutput: "2",
		HiddenCases:  hidden,
	}
}

// fakeGateway scripts the compiler service: stdout is looked up by stdin.
// Unknown stdin echoes a sentinel so comparisons fail deterministically.
type fakeGateway struct {
	mu       sync.Mutex
	calls    int
	sqlCalls int
	outputs  map[string]string
	sqlOut   string
	err      error
}

func (g *fakeGateway) Execute(_ context.Context, _, _, stdin string) (app.ExecOutput, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return app.ExecOutput{}, g.err
	}
	out, ok := g.outputs[stdin]
	if !ok {
		out = "unexpected input " + stdin
	}
	return app.ExecOutput{Stdout: out}, nil
}

func (g *fakeGateway) ExecuteSQL(_ context.Context, _ string) (app.ExecOutput, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sqlCalls++
	if g.err != nil {
		return app.ExecOutput{}, g.err
	}
	return app.ExecOutput{Stdout: g.sqlOut}, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// plannedAttempt seeds a scheduled Daily attempt inside the default window.
func plannedAttempt(id, date string) *domain.Attempt {
	return &domain.Attempt{
		AttemptID:     id,
		StudentID:     "s-" + id,
		ExamName:      "Daily-1",
		Batch:         "B1",
		Location:      "L1",
		StartDate:     date,
		ExamType:      domain.ExamTypeDaily,
		WindowStart:   32400,
		WindowEnd:     36000,
		TotalExamTime: 30,
		Subjects: []domain.SubjectSpec{{
			Subject:      "python",
			Tags:         []string{"t1"},
			SelectedMCQs: domain.Quota{Easy: 2},
			TotalTime:    30,
		}},
	}
}

// mcqPool generates n distinct MCQ items of one difficulty.
func mcqPool(n int, difficulty domain.Difficulty) []domain.QuestionItem {
	items := make([]domain.QuestionItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, mcqItem(fmt.Sprintf("mcq-%s-%d", difficulty, i), difficulty, 1))
	}
	return items
}
