package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"exam-engine/internal/domain"
)

// PoolLoader loads question pools stored as JSONB arrays, one row per
// (subject, kind) pool.
type PoolLoader struct {
	pool *pgxpool.Pool
}

func NewPoolLoader(pool *pgxpool.Pool) *PoolLoader {
	return &PoolLoader{pool: pool}
}

func (l *PoolLoader) LoadPool(ctx context.Context, subject string, kind domain.QuestionKind) ([]domain.QuestionItem, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx,
		`SELECT items FROM question_pools WHERE subject=$1 AND kind=$2`, subject, string(kind)).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("load question pool %s/%s: %w", subject, kind, err)
	}
	var items []domain.QuestionItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("unmarshal question pool %s/%s: %w", subject, kind, err)
	}
	return items, nil
}
