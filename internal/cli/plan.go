package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"gopkg.in/yaml.v3"

	"exam-engine/internal/app"
	"exam-engine/internal/config"
	"exam-engine/internal/domain"
	"exam-engine/internal/infra/executor"
	"exam-engine/internal/infra/memory"
	pginfra "exam-engine/internal/infra/postgres"
	redisinfra "exam-engine/internal/infra/redis"
)

// NewPlanCmd plans an exam for a cohort from a YAML request file and prints
// the notifier payload.
func NewPlanCmd(configPath *string) *cobra.Command {
	var requestPath string
	var rosterPath string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan an exam for a cohort",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd.Context(), *configPath, requestPath, rosterPath)
		},
	}
	cmd.Flags().StringVar(&requestPath, "request", "plan.yaml", "path to YAML plan request")
	cmd.Flags().StringVar(&rosterPath, "roster", "", "path to YAML student roster (memory directory)")
	return cmd
}

func runPlan(ctx context.Context, configPath, requestPath, rosterPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	var req app.PlanRequest
	data, err := os.ReadFile(requestPath)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("parse plan request: %w", err)
	}

	var roster []domain.Student
	if rosterPath != "" {
		data, err := os.ReadFile(rosterPath)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, &roster); err != nil {
			return fmt.Errorf("parse roster: %w", err)
		}
	}

	coordinator, cleanup, err := buildCoordinator(ctx, cfg, roster)
	if err != nil {
		return err
	}
	defer cleanup()

	notice, err := coordinator.Plan(ctx, req)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(notice)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// buildCoordinator wires the component graph from config. Postgres and Redis
// are optional; missing pieces fall back to in-memory implementations so the
// binary stays usable on a laptop.
func buildCoordinator(ctx context.Context, cfg config.Config, roster []domain.Student) (*app.Coordinator, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { redisClient.Close() })
	}

	var pool *pgxpool.Pool
	var bunDB *bun.DB
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			cleanup()
			return nil, nil, err
		}
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, pool.Close)

		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		bunDB = bun.NewDB(sqldb, pgdialect.New())
		closers = append(closers, func() { bunDB.Close() })
	}

	var loader memory.PoolLoader = memory.NewStaticPoolLoader()
	if pool != nil {
		loader = pginfra.NewPoolLoader(pool)
	}
	store := memory.NewQuestionStore(loader, cfg.Exam.SubjectQuestionTypes, 10*time.Minute)

	var cache app.ResultCache = memory.NewResultCache(0)
	if redisClient != nil {
		cache = redisinfra.NewResultCache(redisClient)
	}

	repos := app.RepositorySet{
		Flat:   memory.NewAttemptRepository(),
		Nested: memory.NewNestedAttemptRepository(),
	}
	if bunDB != nil {
		repos = app.RepositorySet{
			Flat:   pginfra.NewAttemptRepository(bunDB),
			Nested: pginfra.NewExamRepository(bunDB),
		}
	}

	gateway := executor.NewClient(cfg.Executor.URL,
		executor.WithTimeouts(
			config.Duration(cfg.Executor.CodeTimeout, 15*time.Second),
			config.Duration(cfg.Executor.SQLTimeout, 10*time.Second),
		))

	if len(roster) > 0 {
		log.Info().Int("students", len(roster)).Msg("loaded roster")
	}

	coordinator := app.NewCoordinator(app.CoordinatorDeps{
		Repos:      repos,
		Store:      store,
		Gateway:    gateway,
		Cache:      cache,
		Directory:  memory.NewStudentDirectory(roster...),
		Curriculum: nil,
		Clock:      domain.NewClock(cfg.Location()),
		Policy: app.PolicySettings{
			Windows:            cfg.Exam.Windows,
			MaxDurationMinutes: cfg.Exam.MaxDurationMinutes,
			WeekdayOnly:        cfg.Exam.WeekdayOnly,
			Enabled:            cfg.Exam.Enabled,
		},
		Assembler: app.AssemblerSettings{
			SubjectKinds:     cfg.Exam.SubjectQuestionTypes,
			ExcludedSubjects: cfg.Exam.ExcludedSubjects,
			Timeout:          config.Duration(cfg.Exam.PaperBuildTimeout, 20*time.Second),
		},
		Adjudicator: app.AdjudicatorSettings{
			MaxCodeLength: cfg.Executor.MaxCodeLength,
			CacheTTL:      config.Duration(cfg.Executor.CacheTTL, time.Hour),
		},
		Scoring: app.ScoringSettings{
			DifficultyScores: cfg.Exam.DifficultyScores,
			DefaultScore:     cfg.Exam.DefaultScore,
		},
	})
	return coordinator, cleanup, nil
}
