package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"exam-engine/internal/domain"
)

// Config is the YAML-backed deployment configuration.
type Config struct {
	Timezone string `yaml:"timezone"`
	Redis    struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Executor struct {
		URL           string `yaml:"url"`
		CodeTimeout   string `yaml:"codeTimeout"`
		SQLTimeout    string `yaml:"sqlTimeout"`
		MaxCodeLength int    `yaml:"maxCodeLength"`
		CacheTTL      string `yaml:"cacheTTL"`
	} `yaml:"executor"`
	Exam ExamConfig `yaml:"exam"`
}

// ExamConfig carries the exam-lifecycle policy knobs.
type ExamConfig struct {
	Windows              map[domain.ExamType]domain.WindowConfig `yaml:"windows"`
	MaxDurationMinutes   map[domain.ExamType]int                 `yaml:"maxDurationMinutes"`
	WeekdayOnly          []domain.ExamType                       `yaml:"weekdayOnly"`
	Enabled              []domain.ExamType                       `yaml:"enabled"`
	SubjectQuestionTypes map[string][]domain.QuestionKind        `yaml:"subjectQuestionTypes"`
	ExcludedSubjects     []string                                `yaml:"excludedSubjects"`
	DifficultyScores     map[domain.Difficulty]float64           `yaml:"difficultyScores"`
	DefaultScore         float64                                 `yaml:"defaultScore"`
	PaperBuildTimeout    string                                  `yaml:"paperBuildTimeout"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Default returns the built-in policy defaults; a config file overrides them
// field by field.
func Default() Config {
	var cfg Config
	cfg.Timezone = "Asia/Kolkata"
	cfg.Executor.MaxCodeLength = 20000
	cfg.Executor.CodeTimeout = "15s"
	cfg.Executor.SQLTimeout = "10s"
	cfg.Executor.CacheTTL = "1h"
	cfg.Exam = ExamConfig{
		Windows: map[domain.ExamType]domain.WindowConfig{
			domain.ExamTypeDaily:   {StartSec: 32400, EndSec: 36000, Active: true},
			domain.ExamTypeWeekly:  {StartSec: 32400, EndSec: 46800, Active: true},
			domain.ExamTypeMonthly: {StartSec: 32400, EndSec: 50400, Active: true},
		},
		MaxDurationMinutes: map[domain.ExamType]int{
			domain.ExamTypeDaily:   60,
			domain.ExamTypeWeekly:  240,
			domain.ExamTypeMonthly: 300,
		},
		WeekdayOnly: []domain.ExamType{domain.ExamTypeDaily},
		Enabled:     []domain.ExamType{},
		SubjectQuestionTypes: map[string][]domain.QuestionKind{
			"python":   {domain.KindMCQ, domain.KindCode},
			"java":     {domain.KindMCQ, domain.KindCode},
			"sql":      {domain.KindMCQ, domain.KindQuery},
			"aptitude": {domain.KindMCQ},
		},
		ExcludedSubjects: []string{"soft skills"},
		DifficultyScores: map[domain.Difficulty]float64{
			domain.DifficultyEasy:   5,
			domain.DifficultyMedium: 10,
			domain.DifficultyHard:   15,
		},
		DefaultScore:      5,
		PaperBuildTimeout: "20s",
	}
	return cfg
}

// Duration parses a duration string or returns the fallback if empty or
// malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Location resolves the configured timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
