// Package qa validates restored translations before publication. Checks run
// in a fixed order and never short-circuit: a failing unit reports the union
// of everything wrong with it.
package qa

import (
	"fmt"
	"strings"

	"wikiloom/internal/placeholder"
	"wikiloom/internal/store"
)

// Check names one validation rule.
type Check string

const (
	CheckPlaceholders Check = "placeholders"
	CheckDelimiters   Check = "delimiters"
	CheckGlossary     Check = "glossary"
	CheckNoOp         Check = "no_op"
	CheckParity       Check = "segment_parity"
)

// Reason is one validation finding.
type Reason struct {
	Check  Check
	Detail string
}

// Failure is the error raised when a unit or page fails validation.
type Failure struct {
	PageTitle  string
	SegmentKey string
	Lang       string
	Reasons    []Reason
}

func (f *Failure) Error() string {
	details := make([]string, 0, len(f.Reasons))
	for _, reason := range f.Reasons {
		details = append(details, string(reason.Check)+": "+reason.Detail)
	}
	where := f.PageTitle
	if f.SegmentKey != "" {
		where += "/" + f.SegmentKey
	}
	return fmt.Sprintf("validation failed for %s [%s]: %s", where, f.Lang, strings.Join(details, "; "))
}

// Glossary reports whether any finding is a terminology violation.
func (f *Failure) Glossary() bool {
	for _, reason := range f.Reasons {
		if reason.Check == CheckGlossary {
			return true
		}
	}
	return false
}

// Structural reports whether any finding is a non-glossary defect.
func (f *Failure) Structural() bool {
	for _, reason := range f.Reasons {
		if reason.Check != CheckGlossary {
			return true
		}
	}
	return false
}

// TermIssue is a non-blocking terminology followup: the preferred rendering
// of a source term is absent from the translation.
type TermIssue struct {
	Term      string
	Preferred string
	Detail    string
}

// UnitInput carries everything the unit checks need.
type UnitInput struct {
	Source string
	// Restored is the translated text after placeholder restoration.
	Restored string
	// Report is the restoration report for the unit.
	Report placeholder.Report
	// Translatable is false for units holding only protected markup; the
	// no-op check does not apply to them.
	Translatable bool
	// Terms is the termbase for the target language.
	Terms []store.TermEntry
}

// UnitResult is the outcome of validating one unit.
type UnitResult struct {
	// Reasons is the union of blocking findings. Empty means the unit passed.
	Reasons []Reason
	// TermTasks are non-blocking terminology followups.
	TermTasks []TermIssue
}

// Passed reports whether the unit may be published.
func (r UnitResult) Passed() bool {
	return len(r.Reasons) == 0
}

// ValidateUnit runs the unit checks in order: placeholder integrity,
// delimiter balance, glossary, then no-op detection.
func ValidateUnit(input UnitInput) UnitResult {
	var result UnitResult

	for _, token := range input.Report.Missing {
		result.Reasons = append(result.Reasons, Reason{
			Check:  CheckPlaceholders,
			Detail: "token dropped by engine: " + token,
		})
	}
	for _, token := range input.Report.Duplicated {
		result.Reasons = append(result.Reasons, Reason{
			Check:  CheckPlaceholders,
			Detail: "token duplicated by engine: " + token,
		})
	}
	for _, token := range input.Report.Unrecognized {
		result.Reasons = append(result.Reasons, Reason{
			Check:  CheckPlaceholders,
			Detail: "unrecognized token in output: " + token,
		})
	}

	result.Reasons = append(result.Reasons, checkDelimiters(input.Source, input.Restored)...)

	glossaryReasons, tasks := checkGlossary(input.Source, input.Restored, input.Terms)
	result.Reasons = append(result.Reasons, glossaryReasons...)
	result.TermTasks = tasks

	if input.Translatable && strings.TrimSpace(input.Restored) == strings.TrimSpace(input.Source) {
		result.Reasons = append(result.Reasons, Reason{
			Check:  CheckNoOp,
			Detail: "translated output identical to source",
		})
	}

	return result
}

// ValidatePage checks segment parity between the source unit keys and the
// keys about to be published. Units that failed validation are expected to
// be absent; extra keys are a defect.
func ValidatePage(pageTitle, lang string, sourceKeys, publishKeys []string, failedKeys []string) *Failure {
	expected := make(map[string]bool, len(sourceKeys))
	for _, key := range sourceKeys {
		expected[key] = true
	}
	failed := make(map[string]bool, len(failedKeys))
	for _, key := range failedKeys {
		failed[key] = true
	}

	var reasons []Reason
	published := make(map[string]bool, len(publishKeys))
	for _, key := range publishKeys {
		published[key] = true
		if !expected[key] {
			reasons = append(reasons, Reason{Check: CheckParity, Detail: "unknown unit key: " + key})
		}
	}
	for _, key := range sourceKeys {
		if !published[key] && !failed[key] {
			reasons = append(reasons, Reason{Check: CheckParity, Detail: "unit missing from publication: " + key})
		}
	}

	if len(reasons) == 0 {
		return nil
	}
	return &Failure{PageTitle: pageTitle, Lang: lang, Reasons: reasons}
}

var delimiterPairs = []struct {
	open  string
	close string
}{
	{"{{", "}}"},
	{"[[", "]]"},
}

func checkDelimiters(source, restored string) []Reason {
	var reasons []Reason
	for _, pair := range delimiterPairs {
		srcOpen := strings.Count(source, pair.open)
		srcClose := strings.Count(source, pair.close)
		outOpen := strings.Count(restored, pair.open)
		outClose := strings.Count(restored, pair.close)

		if outOpen != outClose {
			reasons = append(reasons, Reason{
				Check:  CheckDelimiters,
				Detail: fmt.Sprintf("unbalanced %s%s: %d opening, %d closing", pair.open, pair.close, outOpen, outClose),
			})
			continue
		}
		if outOpen != srcOpen || outClose != srcClose {
			reasons = append(reasons, Reason{
				Check:  CheckDelimiters,
				Detail: fmt.Sprintf("%s%s count changed: source %d/%d, output %d/%d", pair.open, pair.close, srcOpen, srcClose, outOpen, outClose),
			})
		}
	}
	return reasons
}

func checkGlossary(source, restored string, terms []store.TermEntry) ([]Reason, []TermIssue) {
	var reasons []Reason
	var tasks []TermIssue
	lowerRestored := strings.ToLower(restored)
	lowerSource := strings.ToLower(source)

	for _, entry := range terms {
		term := strings.ToLower(entry.Term)
		if term == "" {
			continue
		}
		if entry.Forbidden {
			if strings.Contains(lowerRestored, term) {
				reasons = append(reasons, Reason{
					Check:  CheckGlossary,
					Detail: "forbidden term in output: " + entry.Term,
				})
			}
			continue
		}
		if entry.Preferred == "" {
			continue
		}
		if strings.Contains(lowerSource, term) && !strings.Contains(lowerRestored, strings.ToLower(entry.Preferred)) {
			tasks = append(tasks, TermIssue{
				Term:      entry.Term,
				Preferred: entry.Preferred,
				Detail:    fmt.Sprintf("source uses %q but output lacks preferred rendering %q", entry.Term, entry.Preferred),
			})
		}
	}
	return reasons, tasks
}
