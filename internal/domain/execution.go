package domain

// CaseStatus is the verdict for one test case.
type CaseStatus string

const (
	StatusPassed  CaseStatus = "Passed"
	StatusFailed  CaseStatus = "Failed"
	StatusSkipped CaseStatus = "Skipped"
	StatusCustom  CaseStatus = "Custom"
)

// CaseVerdict is the outcome for a single test case. Actual is nil when the
// case was never executed (Skipped).
type CaseVerdict struct {
	Name     string     `json:"name"`
	Status   CaseStatus `json:"status"`
	Input    string     `json:"input,omitempty"`
	Expected string     `json:"expected,omitempty"`
	Actual   *string    `json:"actual_output"`
	Stderr   string     `json:"stderr,omitempty"`
}

// ExecutionResult is the normalized outcome of adjudicating one submission.
// For custom-input runs only Input and Output are populated.
type ExecutionResult struct {
	Status    CaseStatus    `json:"status"`
	Verdicts  []CaseVerdict `json:"verdicts,omitempty"`
	Message   string        `json:"message,omitempty"`
	Input     string        `json:"input,omitempty"`
	Output    string        `json:"output,omitempty"`
	FromCache bool          `json:"fromCache,omitempty"`
}

// AllPassed reports whether every executed verdict passed. Custom runs never
// count as passing.
func (r ExecutionResult) AllPassed() bool {
	if r.Status == StatusCustom || len(r.Verdicts) == 0 {
		return false
	}
	for _, v := range r.Verdicts {
		if v.Status != StatusPassed {
			return false
		}
	}
	return true
}
