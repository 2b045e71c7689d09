package domain

import "time"

// ExamType partitions exams by cadence. Daily exams are stored one attempt
// per document; Weekly and Monthly exams share a single exam document with
// nested per-student records.
type ExamType string

const (
	ExamTypeDaily   ExamType = "Daily"
	ExamTypeWeekly  ExamType = "Weekly"
	ExamTypeMonthly ExamType = "Monthly"
)

// Valid reports whether the type is one of the known cadences.
func (t ExamType) Valid() bool {
	switch t {
	case ExamTypeDaily, ExamTypeWeekly, ExamTypeMonthly:
		return true
	}
	return false
}

// Nested reports whether attempts of this type live inside a shared exam
// document rather than one document per student.
func (t ExamType) Nested() bool {
	return t == ExamTypeWeekly || t == ExamTypeMonthly
}

// QuestionKind selects the pool and the grading semantics for an item.
type QuestionKind string

const (
	KindMCQ   QuestionKind = "mcq"
	KindCode  QuestionKind = "code"
	KindQuery QuestionKind = "query"
)

// Difficulty buckets question items and drives default scores.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// WindowConfig is the per-type wall-clock interval during which attempts may
// be started, encoded as seconds of day.
type WindowConfig struct {
	StartSec int  `yaml:"startSec" json:"startSec"`
	EndSec   int  `yaml:"endSec" json:"endSec"`
	Active   bool `yaml:"active" json:"active"`
}

// DurationSec is the window length in seconds.
func (w WindowConfig) DurationSec() int {
	return w.EndSec - w.StartSec
}

// HiddenCase is a grading-only test case; it never leaves the adjudicator.
type HiddenCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
}

// QuestionItem is one item from a question pool. Only the fields matching
// Kind are populated.
type QuestionItem struct {
	ID         string       `json:"id"`
	Subject    string       `json:"subject"`
	Kind       QuestionKind `json:"kind"`
	Tags       []string     `json:"tags"`
	Difficulty Difficulty   `json:"difficulty"`
	Score      float64      `json:"score,omitempty"`
	Prompt     string       `json:"prompt"`

	// MCQ payload.
	Options       map[string]string `json:"options,omitempty"`
	CorrectOption string            `json:"correctOption,omitempty"`

	// Code payload.
	SampleInput  string       `json:"sampleInput,omitempty"`
	SampleOutput string       `json:"sampleOutput,omitempty"`
	HiddenCases  []HiddenCase `json:"hiddenCases,omitempty"`

	// Query payload.
	SchemaSQL      string `json:"schemaSql,omitempty"`
	ExpectedOutput string `json:"expectedOutput,omitempty"`
}

// StudentView strips grading-only fields (correct option, hidden cases,
// expected outputs) so the item can be shown to a student.
func (q QuestionItem) StudentView() QuestionItem {
	view := q
	view.CorrectOption = ""
	view.HiddenCases = nil
	view.ExpectedOutput = ""
	return view
}

// Quota is a per-difficulty selection count.
type Quota struct {
	Easy   int `yaml:"easy" json:"easy"`
	Medium int `yaml:"medium" json:"medium"`
	Hard   int `yaml:"hard" json:"hard"`
}

// Total sums the three buckets.
func (q Quota) Total() int {
	return q.Easy + q.Medium + q.Hard
}

// Count returns the bucket for a difficulty.
func (q Quota) Count(d Difficulty) int {
	switch d {
	case DifficultyEasy:
		return q.Easy
	case DifficultyMedium:
		return q.Medium
	case DifficultyHard:
		return q.Hard
	}
	return 0
}

// SubjectSpec is the planner's per-subject request: which tags to draw from
// and how many items of each kind and difficulty.
type SubjectSpec struct {
	Subject        string   `yaml:"subject" json:"subject"`
	Tags           []string `yaml:"tags" json:"tags"`
	SelectedMCQs   Quota    `yaml:"selectedMCQs" json:"selectedMCQs"`
	SelectedCoding Quota    `yaml:"selectedCoding" json:"selectedCoding"`
	SelectedQuery  Quota    `yaml:"selectedQuery" json:"selectedQuery"`
	TotalTime      int      `yaml:"totalTime" json:"totalTime"`
}

// SubjectPaper is one assembled subject block of a paper.
type SubjectPaper struct {
	Subject   string         `json:"subject"`
	TotalTime int            `json:"totalTime"`
	MCQs      []QuestionItem `json:"mcqs,omitempty"`
	Coding    []QuestionItem `json:"coding,omitempty"`
	Query     []QuestionItem `json:"query,omitempty"`
}

// Paper is the assembled exam content in curriculum order.
type Paper []SubjectPaper

// Empty reports whether no subject block carries any items.
func (p Paper) Empty() bool {
	for _, s := range p {
		if len(s.MCQs) > 0 || len(s.Coding) > 0 || len(s.Query) > 0 {
			return false
		}
	}
	return true
}

// Attempt is a single student's participation record for one exam instance.
// The planner creates it, the state machine owns the lifecycle fields, the
// assembler owns Paper and the analyzer owns Analysis.
type Attempt struct {
	AttemptID string   `json:"attemptId"`
	StudentID string   `json:"studentId"`
	ExamName  string   `json:"examName"`
	Batch     string   `json:"batch"`
	Location  string   `json:"location"`
	StartDate string   `json:"startDate"`
	ExamType  ExamType `json:"examType"`

	WindowStart    int `json:"windowStart"`
	WindowEnd      int `json:"windowEnd"`
	WindowDuration int `json:"windowDuration"`
	TotalExamTime  int `json:"totalExamTime"` // minutes

	Subjects []SubjectSpec `json:"subjects"`

	Started          bool       `json:"started"`
	Submitted        bool       `json:"submitted"`
	StartTimestamp   *time.Time `json:"startTimestamp,omitempty"`
	SubmitTimestamp  *time.Time `json:"submitTimestamp,omitempty"`
	ExtensionMinutes int        `json:"extensionMinutes"`

	Paper    Paper     `json:"paper,omitempty"`
	Analysis *Analysis `json:"analysis,omitempty"`
}

// WindowStatus is the outcome of checking an attempt against its window.
type WindowStatus string

const (
	WindowNone     WindowStatus = "no_window"
	WindowUpcoming WindowStatus = "upcoming"
	WindowActive   WindowStatus = "active"
	WindowExpired  WindowStatus = "expired"
)

// WindowCheck carries the status plus a user-facing message; for an active
// window it also carries the extension granted for starting late.
type WindowCheck struct {
	Status           WindowStatus `json:"status"`
	Message          string       `json:"message"`
	ExtensionMinutes int          `json:"extensionMinutes,omitempty"`
}

// CodeAnswer is a student's code submission for one question.
type CodeAnswer struct {
	Source   string `json:"source"`
	Language string `json:"language"`
}

// AnswerSheet maps question IDs to the student's answers, per kind.
type AnswerSheet struct {
	MCQ   map[string]string     `json:"mcq,omitempty"`
	Code  map[string]CodeAnswer `json:"code,omitempty"`
	Query map[string]string     `json:"query,omitempty"`
}

// PlanNotice describes a freshly planned exam for the external notifier.
// The planner returns it; delivery is someone else's job.
type PlanNotice struct {
	ExamName    string   `json:"examName"`
	WindowOpen  string   `json:"windowOpen"`
	WindowClose string   `json:"windowClose"`
	StudentIDs  []string `json:"studentIds"`
}

// Student is a cohort member as seen by the planner.
type Student struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Batch    string `json:"batch"`
	Location string `json:"location"`
	Placed   bool   `json:"placed"`
}

// CurriculumEntry is one subject's slice of the curriculum for a cohort and
// date. Excluded subjects contribute tags but never questions.
type CurriculumEntry struct {
	Subject   string   `json:"subject"`
	Topics    []string `json:"topics"`
	Subtitles []string `json:"subtitles"`
	Tags      []string `json:"tags"`
	Excluded  bool     `json:"excluded"`
}
