package memory

import (
	"context"
	"sync"

	"exam-engine/internal/domain"
)

// StudentDirectory is a static cohort roster for tests and demos.
type StudentDirectory struct {
	mu       sync.RWMutex
	students []domain.Student
}

func NewStudentDirectory(students ...domain.Student) *StudentDirectory {
	return &StudentDirectory{students: students}
}

// Add registers students into the roster.
func (d *StudentDirectory) Add(students ...domain.Student) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.students = append(d.students, students...)
}

func (d *StudentDirectory) Cohort(_ context.Context, batch, location string) ([]domain.Student, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []domain.Student
	for _, s := range d.students {
		if s.Batch == batch && s.Location == location {
			out = append(out, s)
		}
	}
	return out, nil
}

// Curriculum is a static curriculum view keyed by cohort and date.
type Curriculum struct {
	mu      sync.RWMutex
	entries map[string][]domain.CurriculumEntry
}

func NewCurriculum() *Curriculum {
	return &Curriculum{entries: make(map[string][]domain.CurriculumEntry)}
}

func curriculumKey(batch, location, date string) string {
	return batch + "|" + location + "|" + date
}

// Set replaces the entries for a cohort and date.
func (c *Curriculum) Set(batch, location, date string, entries []domain.CurriculumEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[curriculumKey(batch, location, date)] = entries
}

func (c *Curriculum) SubjectsFor(_ context.Context, batch, location, date string) ([]domain.CurriculumEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries := c.entries[curriculumKey(batch, location, date)]
	out := make([]domain.CurriculumEntry, len(entries))
	copy(out, entries)
	return out, nil
}
