package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"exam-engine/internal/domain"
)

type countingLoader struct {
	PoolLoader
	calls int
}

func (l *countingLoader) LoadPool(ctx context.Context, subject string, kind domain.QuestionKind) ([]domain.QuestionItem, error) {
	l.calls++
	return l.PoolLoader.LoadPool(ctx, subject, kind)
}

var storeAllow = map[string][]domain.QuestionKind{
	"python": {domain.KindMCQ, domain.KindCode},
}

func pythonMCQs(n int, difficulty domain.Difficulty, tag string) []domain.QuestionItem {
	items := make([]domain.QuestionItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, domain.QuestionItem{
			ID:         fmt.Sprintf("%s-%s-%d", tag, difficulty, i),
			Subject:    "python",
			Kind:       domain.KindMCQ,
			Tags:       []string{tag},
			Difficulty: difficulty,
		})
	}
	return items
}

func TestQuestionStoreCachesPools(t *testing.T) {
	static := NewStaticPoolLoader()
	static.Add(pythonMCQs(3, domain.DifficultyEasy, "t1")...)
	loader := &countingLoader{PoolLoader: static}
	store := NewQuestionStore(loader, storeAllow, time.Minute)
	ctx := context.Background()

	if _, err := store.Sample(ctx, "python", domain.KindMCQ, nil, domain.DifficultyEasy, 2); err != nil {
		t.Fatalf("sample: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}
	if _, err := store.Sample(ctx, "python", domain.KindMCQ, nil, domain.DifficultyEasy, 2); err != nil {
		t.Fatalf("sample 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestQuestionStoreRejectsUnknownPool(t *testing.T) {
	store := NewQuestionStore(NewStaticPoolLoader(), storeAllow, time.Minute)
	ctx := context.Background()

	// python has no query pool, and "java" is not allowlisted at all.
	if _, err := store.Sample(ctx, "python", domain.KindQuery, nil, domain.DifficultyEasy, 1); !errors.Is(err, domain.ErrQuestionsMissing) {
		t.Fatalf("expected rejection of unlisted kind, got %v", err)
	}
	if _, err := store.Sample(ctx, "java", domain.KindMCQ, nil, domain.DifficultyEasy, 1); !errors.Is(err, domain.ErrQuestionsMissing) {
		t.Fatalf("expected rejection of unlisted subject, got %v", err)
	}
}

func TestQuestionStoreSampleFilters(t *testing.T) {
	static := NewStaticPoolLoader()
	static.Add(pythonMCQs(4, domain.DifficultyEasy, "t1")...)
	static.Add(pythonMCQs(3, domain.DifficultyEasy, "t2")...)
	static.Add(pythonMCQs(2, domain.DifficultyHard, "t1")...)
	store := NewQuestionStore(static, storeAllow, time.Minute)
	ctx := context.Background()

	items, err := store.Sample(ctx, "python", domain.KindMCQ, []string{"t1"}, domain.DifficultyEasy, 2)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	for _, item := range items {
		if item.Difficulty != domain.DifficultyEasy || item.Tags[0] != "t1" {
			t.Fatalf("sample leaked a non-matching item: %+v", item)
		}
	}

	// Asking for more than exists returns the whole matching slice.
	items, err = store.Sample(ctx, "python", domain.KindMCQ, []string{"t1"}, domain.DifficultyHard, 10)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected the whole short pool, got %d", len(items))
	}
}

func TestQuestionStoreSampleIsWithoutReplacement(t *testing.T) {
	static := NewStaticPoolLoader()
	static.Add(pythonMCQs(5, domain.DifficultyEasy, "t1")...)
	store := NewQuestionStore(static, storeAllow, time.Minute)

	items, err := store.Sample(context.Background(), "python", domain.KindMCQ, []string{"t1"}, domain.DifficultyEasy, 4)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if seen[item.ID] {
			t.Fatalf("item %s drawn twice", item.ID)
		}
		seen[item.ID] = true
	}
}

func TestQuestionStoreCountByDifficulty(t *testing.T) {
	static := NewStaticPoolLoader()
	static.Add(pythonMCQs(3, domain.DifficultyEasy, "t1")...)
	static.Add(pythonMCQs(1, domain.DifficultyMedium, "t1")...)
	store := NewQuestionStore(static, storeAllow, time.Minute)

	quota, err := store.CountByDifficulty(context.Background(), "python", domain.KindMCQ, []string{"t1"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if quota.Easy != 3 || quota.Medium != 1 || quota.Hard != 0 {
		t.Fatalf("unexpected counts: %+v", quota)
	}
}

func TestQuestionStoreItemLookup(t *testing.T) {
	static := NewStaticPoolLoader()
	static.Add(domain.QuestionItem{
		ID: "code-1", Subject: "python", Kind: domain.KindCode, Difficulty: domain.DifficultyEasy,
		HiddenCases: []domain.HiddenCase{{Input: "3", ExpectedOutput: "6"}},
	})
	store := NewQuestionStore(static, storeAllow, time.Minute)
	ctx := context.Background()

	item, err := store.Item(ctx, "python", domain.KindCode, "code-1")
	if err != nil {
		t.Fatalf("item: %v", err)
	}
	if item.ID != "code-1" {
		t.Fatalf("wrong item: %+v", item)
	}
	cases, err := store.HiddenCases(ctx, "python", domain.KindCode, "code-1")
	if err != nil || len(cases) != 1 {
		t.Fatalf("hidden cases: %v %v", cases, err)
	}

	if _, err := store.Item(ctx, "python", domain.KindCode, "missing"); !errors.Is(err, domain.ErrQuestionsMissing) {
		t.Fatalf("expected missing question error, got %v", err)
	}
}
