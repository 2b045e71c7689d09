package domain

// QuestionDetail is the per-question line of an analysis.
type QuestionDetail struct {
	QuestionID   string       `json:"questionId"`
	Subject      string       `json:"subject"`
	Kind         QuestionKind `json:"kind"`
	Status       string       `json:"status"`
	ScoreAwarded float64      `json:"scoreAwarded"`
	IsCorrect    bool         `json:"isCorrect"`
}

// KindBreakdown aggregates one question kind within a subject.
type KindBreakdown struct {
	Score     float64 `json:"score"`
	MaxScore  float64 `json:"maxScore"`
	Attempted int     `json:"attempted"`
	Correct   int     `json:"correct"`
	Total     int     `json:"total"`
}

// SubjectResult is the per-subject slice of an analysis.
type SubjectResult struct {
	Score  float64       `json:"score"`
	MCQ    KindBreakdown `json:"mcq"`
	Coding KindBreakdown `json:"coding,omitempty"`
	Query  KindBreakdown `json:"query,omitempty"`
}

// Analysis is the scored summary persisted at submit time.
type Analysis struct {
	TotalScore float64 `json:"totalScore"`
	MaxScore   float64 `json:"maxScore"`

	CorrectCount      int `json:"correctCount"`
	IncorrectCount    int `json:"incorrectCount"`
	AttemptedCount    int `json:"attemptedCount"`
	NotAttemptedCount int `json:"notAttemptedCount"`

	AttemptedMCQCount   int `json:"attemptedMCQCount"`
	AttemptedCodeCount  int `json:"attemptedCodeCount"`
	AttemptedQueryCount int `json:"attemptedQueryCount"`

	TotalMCQCount    int `json:"totalMCQCount"`
	TotalCodingCount int `json:"totalCodingCount"`
	TotalQueryCount  int `json:"totalQueryCount"`
	TotalQuestions   int `json:"totalQuestions"`

	TotalTimeTaken int  `json:"totalTimeTaken"` // seconds
	ExamCompleted  bool `json:"examCompleted"`

	SubjectBreakdown map[string]SubjectResult `json:"subjectBreakdown"`

	Details      []QuestionDetail `json:"details"`
	NotAttempted []QuestionDetail `json:"notAttemptedDetails"`
}
