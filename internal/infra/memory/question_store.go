package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"exam-engine/internal/domain"
)

// PoolLoader fetches a question pool from a backing store (e.g., document DB).
type PoolLoader interface {
	LoadPool(ctx context.Context, subject string, kind domain.QuestionKind) ([]domain.QuestionItem, error)
}

type poolKey struct {
	subject string
	kind    domain.QuestionKind
}

type cachedPool struct {
	items     []domain.QuestionItem
	expiresAt time.Time
}

// QuestionStore serves tagged question pools with TTL caching over a loader.
// Pool identity is validated against the subject→kinds allowlist so storage
// identifiers are never composed from raw user input.
type QuestionStore struct {
	loader PoolLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	allow map[string]map[domain.QuestionKind]bool

	mu    sync.RWMutex
	cache map[poolKey]cachedPool

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionStore(loader PoolLoader, allow map[string][]domain.QuestionKind, ttl time.Duration) *QuestionStore {
	allowSet := make(map[string]map[domain.QuestionKind]bool, len(allow))
	for subject, kinds := range allow {
		allowSet[subject] = make(map[domain.QuestionKind]bool, len(kinds))
		for _, k := range kinds {
			allowSet[subject][k] = true
		}
	}
	return &QuestionStore{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		allow:  allowSet,
		cache:  make(map[poolKey]cachedPool),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *QuestionStore) pool(ctx context.Context, subject string, kind domain.QuestionKind) ([]domain.QuestionItem, error) {
	if kinds, ok := s.allow[subject]; !ok || !kinds[kind] {
		return nil, domain.ErrQuestionsMissing.WithMessage("no %s pool exists for subject %q", kind, subject)
	}

	key := poolKey{subject: subject, kind: kind}
	now := s.clock()

	s.mu.RLock()
	if entry, ok := s.cache[key]; ok && entry.expiresAt.After(now) {
		s.mu.RUnlock()
		return entry.items, nil
	}
	s.mu.RUnlock()

	result, err, _ := s.sf.Do(subject+"/"+string(kind), func() (interface{}, error) {
		now := s.clock()
		s.mu.RLock()
		if entry, ok := s.cache[key]; ok && entry.expiresAt.After(now) {
			s.mu.RUnlock()
			return entry.items, nil
		}
		s.mu.RUnlock()

		items, err := s.loader.LoadPool(ctx, subject, kind)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.cache[key] = cachedPool{items: items, expiresAt: now.Add(s.ttl)}
		s.mu.Unlock()
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.QuestionItem), nil
}

// Sample draws count items uniformly without replacement from the matching
// pool slice. Short pools return everything they have.
func (s *QuestionStore) Sample(ctx context.Context, subject string, kind domain.QuestionKind, tags []string, difficulty domain.Difficulty, count int) ([]domain.QuestionItem, error) {
	items, err := s.pool(ctx, subject, kind)
	if err != nil {
		return nil, err
	}
	matching := filterItems(items, tags, difficulty)
	if count >= len(matching) {
		return matching, nil
	}

	s.rndMu.Lock()
	s.rnd.Shuffle(len(matching), func(i, j int) {
		matching[i], matching[j] = matching[j], matching[i]
	})
	s.rndMu.Unlock()
	return matching[:count], nil
}

func (s *QuestionStore) CountByDifficulty(ctx context.Context, subject string, kind domain.QuestionKind, tags []string) (domain.Quota, error) {
	items, err := s.pool(ctx, subject, kind)
	if err != nil {
		return domain.Quota{}, err
	}
	var quota domain.Quota
	for _, d := range []domain.Difficulty{domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard} {
		n := len(filterItems(items, tags, d))
		switch d {
		case domain.DifficultyEasy:
			quota.Easy = n
		case domain.DifficultyMedium:
			quota.Medium = n
		case domain.DifficultyHard:
			quota.Hard = n
		}
	}
	return quota, nil
}

func (s *QuestionStore) HiddenCases(ctx context.Context, subject string, kind domain.QuestionKind, questionID string) ([]domain.HiddenCase, error) {
	item, err := s.Item(ctx, subject, kind, questionID)
	if err != nil {
		return nil, err
	}
	return item.HiddenCases, nil
}

func (s *QuestionStore) Item(ctx context.Context, subject string, kind domain.QuestionKind, questionID string) (domain.QuestionItem, error) {
	items, err := s.pool(ctx, subject, kind)
	if err != nil {
		return domain.QuestionItem{}, err
	}
	for _, item := range items {
		if item.ID == questionID {
			return item, nil
		}
	}
	return domain.QuestionItem{}, domain.ErrQuestionsMissing.WithMessage("question %s not found in %s/%s pool", questionID, subject, kind)
}

func filterItems(items []domain.QuestionItem, tags []string, difficulty domain.Difficulty) []domain.QuestionItem {
	tagSet := make(map[string]bool, len(tags))
	for _, t := range tags {
		tagSet[t] = true
	}
	matching := make([]domain.QuestionItem, 0, len(items))
	for _, item := range items {
		if item.Difficulty != difficulty {
			continue
		}
		if len(tagSet) > 0 && !hasAnyTag(item.Tags, tagSet) {
			continue
		}
		matching = append(matching, item)
	}
	return matching
}

func hasAnyTag(tags []string, want map[string]bool) bool {
	for _, t := range tags {
		if want[t] {
			return true
		}
	}
	return false
}

// StaticPoolLoader is a loader backed by an in-memory map (tests/demos).
type StaticPoolLoader struct {
	mu    sync.RWMutex
	pools map[poolKey][]domain.QuestionItem
}

func NewStaticPoolLoader() *StaticPoolLoader {
	return &StaticPoolLoader{pools: make(map[poolKey][]domain.QuestionItem)}
}

// Add registers items into their (subject, kind) pools.
func (l *StaticPoolLoader) Add(items ...domain.QuestionItem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, item := range items {
		key := poolKey{subject: item.Subject, kind: item.Kind}
		l.pools[key] = append(l.pools[key], item)
	}
}

func (l *StaticPoolLoader) LoadPool(_ context.Context, subject string, kind domain.QuestionKind) ([]domain.QuestionItem, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	items := l.pools[poolKey{subject: subject, kind: kind}]
	out := make([]domain.QuestionItem, len(items))
	copy(out, items)
	return out, nil
}
