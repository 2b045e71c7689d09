package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"exam-engine/internal/domain"
)

// languageExtensions maps execution languages to the single-file program name
// extension the compiler service expects (Main.<ext>).
var languageExtensions = map[string]string{
	"python":     "py",
	"python3":    "py",
	"java":       "java",
	"c":          "c",
	"cpp":        "cpp",
	"javascript": "js",
	"go":         "go",
}

// MainFileName returns the single-file program name for a language.
func MainFileName(language string) string {
	ext, ok := languageExtensions[strings.ToLower(language)]
	if !ok {
		ext = "txt"
	}
	return "Main." + ext
}

// NormalizeOutput canonicalizes program output for comparison: carriage
// returns and the visible return glyph become plain newlines and trailing
// newlines are stripped. Normalizing twice equals normalizing once.
func NormalizeOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "↵", "\n")
	return strings.TrimRight(s, "\n")
}

// Fingerprint is the cache key for one deterministic execution.
func Fingerprint(questionID, language, source string) string {
	h := sha256.New()
	h.Write([]byte(questionID))
	h.Write([]byte{0})
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil))
}

// AdjudicatorSettings configures the execution adjudicator.
type AdjudicatorSettings struct {
	MaxCodeLength int
	CacheTTL      time.Duration
}

// ExecutionAdjudicator grades code and SQL submissions against sample and
// hidden cases through the external compiler service. Identical submissions
// are served from the result cache; the cache is the primary rate shield for
// the gateway. The adjudicator never mutates attempt state.
type ExecutionAdjudicator struct {
	gateway       ExecutionGateway
	store         QuestionStore
	cache         ResultCache
	sf            singleflight.Group
	maxCodeLength int
	cacheTTL      time.Duration
}

func NewExecutionAdjudicator(gateway ExecutionGateway, store QuestionStore, cache ResultCache, settings AdjudicatorSettings) *ExecutionAdjudicator {
	maxLen := settings.MaxCodeLength
	if maxLen <= 0 {
		maxLen = 20000
	}
	ttl := settings.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ExecutionAdjudicator{
		gateway:       gateway,
		store:         store,
		cache:         cache,
		maxCodeLength: maxLen,
		cacheTTL:      ttl,
	}
}

// RunCode adjudicates a code submission. With customInput set it runs once
// against that input and returns the raw output, uncached.
func (a *ExecutionAdjudicator) RunCode(ctx context.Context, subject, questionID, source, language string, customInput *string) (domain.ExecutionResult, error) {
	source = normalizeNewlines(source)
	if len(source) > a.maxCodeLength {
		return domain.ExecutionResult{}, domain.ErrCodeTooLong.WithMessage(
			"submitted code is %d characters, the maximum is %d", len(source), a.maxCodeLength)
	}

	if customInput != nil {
		out, err := a.gateway.Execute(ctx, language, source, *customInput)
		if err != nil {
			return domain.ExecutionResult{}, gatewayError(err)
		}
		return domain.ExecutionResult{
			Status: domain.StatusCustom,
			Input:  *customInput,
			Output: combinedOutput(out),
		}, nil
	}

	fp := Fingerprint(questionID, language, source)
	if cached, ok := a.cached(ctx, fp); ok {
		return cached, nil
	}

	v, err, _ := a.sf.Do(fp, func() (interface{}, error) {
		if cached, ok := a.cached(ctx, fp); ok {
			return cached, nil
		}
		result, err := a.adjudicateCode(ctx, subject, questionID, source, language)
		if err != nil {
			return domain.ExecutionResult{}, err
		}
		a.put(ctx, fp, result)
		return result, nil
	})
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	return v.(domain.ExecutionResult), nil
}

func (a *ExecutionAdjudicator) adjudicateCode(ctx context.Context, subject, questionID, source, language string) (domain.ExecutionResult, error) {
	item, err := a.store.Item(ctx, subject, domain.KindCode, questionID)
	if err != nil {
		return domain.ExecutionResult{}, domain.ErrQuestionsMissing.WithMessage("question %s not found", questionID)
	}
	hidden, err := a.store.HiddenCases(ctx, subject, domain.KindCode, questionID)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("load hidden cases: %w", err)
	}

	verdicts := make([]domain.CaseVerdict, 0, len(hidden)+1)

	sample, fatal, err := a.runCase(ctx, language, source, "sample", item.SampleInput, item.SampleOutput)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	verdicts = append(verdicts, sample)

	// Hidden cases run in declared order and stop at the first failure so
	// skipped counts stay deterministic.
	halted := sample.Status != domain.StatusPassed || fatal
	for i, hc := range hidden {
		name := fmt.Sprintf("hidden-%d", i+1)
		if halted {
			verdicts = append(verdicts, domain.CaseVerdict{Name: name, Status: domain.StatusSkipped})
			continue
		}
		verdict, caseFatal, err := a.runCase(ctx, language, source, name, hc.Input, hc.ExpectedOutput)
		if err != nil {
			return domain.ExecutionResult{}, err
		}
		verdicts = append(verdicts, verdict)
		if verdict.Status != domain.StatusPassed || caseFatal {
			halted = true
		}
	}

	return composeResult(verdicts), nil
}

// runCase executes one test case. Timeouts become a Failed verdict with the
// captured message (fatal, halting later cases); other transport errors
// surface as EXECUTION_UNAVAILABLE for the whole call.
func (a *ExecutionAdjudicator) runCase(ctx context.Context, language, source, name, input, expected string) (domain.CaseVerdict, bool, error) {
	out, err := a.gateway.Execute(ctx, language, source, input)
	if err != nil {
		if errors.Is(err, domain.ErrExecutionTimeout) || errors.Is(err, context.DeadlineExceeded) {
			msg := "execution timed out"
			return domain.CaseVerdict{
				Name:     name,
				Status:   domain.StatusFailed,
				Input:    input,
				Expected: expected,
				Actual:   &msg,
				Stderr:   msg,
			}, true, nil
		}
		return domain.CaseVerdict{}, false, gatewayError(err)
	}

	actual := NormalizeOutput(out.Stdout)
	verdict := domain.CaseVerdict{
		Name:     name,
		Status:   domain.StatusFailed,
		Input:    input,
		Expected: expected,
		Actual:   &actual,
		Stderr:   out.Stderr,
	}
	if actual == NormalizeOutput(expected) {
		verdict.Status = domain.StatusPassed
	}
	return verdict, false, nil
}

// RunQuery adjudicates a SQL submission: a single primary test comparing the
// output of schema+query to the expected output.
func (a *ExecutionAdjudicator) RunQuery(ctx context.Context, subject, questionID, query string, custom bool) (domain.ExecutionResult, error) {
	query = normalizeNewlines(query)
	if len(query) > a.maxCodeLength {
		return domain.ExecutionResult{}, domain.ErrCodeTooLong.WithMessage(
			"submitted query is %d characters, the maximum is %d", len(query), a.maxCodeLength)
	}

	item, err := a.store.Item(ctx, subject, domain.KindQuery, questionID)
	if err != nil {
		return domain.ExecutionResult{}, domain.ErrQuestionsMissing.WithMessage("question %s not found", questionID)
	}
	script := item.SchemaSQL + "\n" + query

	if custom {
		out, err := a.gateway.ExecuteSQL(ctx, script)
		if err != nil {
			return domain.ExecutionResult{}, gatewayError(err)
		}
		return domain.ExecutionResult{
			Status: domain.StatusCustom,
			Output: combinedOutput(out),
		}, nil
	}

	fp := Fingerprint(questionID, "sql", query)
	if cached, ok := a.cached(ctx, fp); ok {
		return cached, nil
	}

	v, err, _ := a.sf.Do(fp, func() (interface{}, error) {
		if cached, ok := a.cached(ctx, fp); ok {
			return cached, nil
		}
		out, err := a.gateway.ExecuteSQL(ctx, script)
		if err != nil {
			if errors.Is(err, domain.ErrExecutionTimeout) || errors.Is(err, context.DeadlineExceeded) {
				msg := "execution timed out"
				result := composeResult([]domain.CaseVerdict{{
					Name: "primary", Status: domain.StatusFailed, Expected: item.ExpectedOutput, Actual: &msg, Stderr: msg,
				}})
				a.put(ctx, fp, result)
				return result, nil
			}
			return domain.ExecutionResult{}, gatewayError(err)
		}
		actual := NormalizeOutput(out.Stdout)
		verdict := domain.CaseVerdict{
			Name:     "primary",
			Status:   domain.StatusFailed,
			Expected: item.ExpectedOutput,
			Actual:   &actual,
			Stderr:   out.Stderr,
		}
		if actual == NormalizeOutput(item.ExpectedOutput) {
			verdict.Status = domain.StatusPassed
		}
		result := composeResult([]domain.CaseVerdict{verdict})
		a.put(ctx, fp, result)
		return result, nil
	})
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	return v.(domain.ExecutionResult), nil
}

func (a *ExecutionAdjudicator) cached(ctx context.Context, fp string) (domain.ExecutionResult, bool) {
	data, ok, err := a.cache.Get(ctx, CacheNamespaceExecution, fp)
	if err != nil {
		log.Warn().Err(err).Msg("execution cache read failed")
		return domain.ExecutionResult{}, false
	}
	if !ok {
		return domain.ExecutionResult{}, false
	}
	var result domain.ExecutionResult
	if err := json.Unmarshal(data, &result); err != nil {
		log.Warn().Err(err).Msg("execution cache entry corrupt")
		return domain.ExecutionResult{}, false
	}
	result.FromCache = true
	return result, true
}

func (a *ExecutionAdjudicator) put(ctx context.Context, fp string, result domain.ExecutionResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := a.cache.Put(ctx, CacheNamespaceExecution, fp, data, a.cacheTTL); err != nil {
		log.Warn().Err(err).Msg("execution cache write failed")
	}
}

func composeResult(verdicts []domain.CaseVerdict) domain.ExecutionResult {
	passed := 0
	for _, v := range verdicts {
		if v.Status == domain.StatusPassed {
			passed++
		}
	}
	status := domain.StatusFailed
	message := fmt.Sprintf("%d of %d passed", passed, len(verdicts))
	if passed == len(verdicts) && len(verdicts) > 0 {
		status = domain.StatusPassed
		message = fmt.Sprintf("all %d passed", len(verdicts))
	}
	return domain.ExecutionResult{Status: status, Verdicts: verdicts, Message: message}
}

// normalizeNewlines canonicalizes source line endings without trimming.
func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func combinedOutput(out ExecOutput) string {
	if out.Stdout == "" && out.Stderr != "" {
		return NormalizeOutput(out.Stderr)
	}
	return NormalizeOutput(out.Stdout)
}

func gatewayError(err error) error {
	log.Error().Err(err).Msg("compiler gateway unreachable")
	return domain.ErrExecutionUnavailable.WithMessage("the code execution service is unavailable: %v", err)
}
