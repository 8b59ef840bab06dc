package firmware

import (
	"fmt"
	"sort"
	"strings"
)

// Problem codes reported by readiness checks. They are stable and exported
// as metric labels.
const (
	CodePlaceholder    = "placeholder"
	CodeMissing        = "missing"
	CodeInvalidValue   = "invalid_value"
	CodeZeroMAC        = "zero_mac"
	CodeMulticastMAC   = "multicast_mac"
	CodeDuplicateMAC   = "duplicate_mac"
	CodeLengthMismatch = "length_mismatch"
	CodeEmptySequence  = "empty_sequence"
	CodeZeroTiming     = "zero_timing"
	CodeCarrierRange   = "carrier_range"
	CodeDuplicateUnit  = "duplicate_unit"
	CodeInvalidName    = "invalid_name"
)

// Problem is a single reason a configuration cannot be deployed.
type Problem struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s (%s)", p.Field, p.Message, p.Code)
}

// Report collects every problem found in a profile, not just the first.
type Report struct {
	Profile  string    `json:"profile"`
	Problems []Problem `json:"problems"`
}

func (r *Report) add(code, field, format string, args ...any) {
	r.Problems = append(r.Problems, Problem{
		Code:    code,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

// Ready reports whether the configuration can be flashed as is.
func (r Report) Ready() bool {
	return len(r.Problems) == 0
}

// Codes counts problems by code.
func (r Report) Codes() map[string]int {
	out := make(map[string]int)
	for _, p := range r.Problems {
		out[p.Code]++
	}
	return out
}

// Fields lists the distinct fields with problems, sorted.
func (r Report) Fields() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range r.Problems {
		if seen[p.Field] {
			continue
		}
		seen[p.Field] = true
		out = append(out, p.Field)
	}
	sort.Strings(out)
	return out
}

// Err returns nil for a ready report and a *NotReadyError otherwise.
func (r Report) Err() error {
	if r.Ready() {
		return nil
	}
	return &NotReadyError{Report: r}
}

// NotReadyError wraps a failing readiness report.
type NotReadyError struct {
	Report Report
}

func (e *NotReadyError) Error() string {
	parts := make([]string, 0, len(e.Report.Problems))
	for _, p := range e.Report.Problems {
		parts = append(parts, p.String())
	}
	name := e.Report.Profile
	if name == "" {
		name = "configuration"
	}
	return fmt.Sprintf("%s not ready: %s", name, strings.Join(parts, "; "))
}
