package router

import (
	"fmt"
	"strings"

	"github.com/jobquill/textgen"
)

// Attempt records how one tier fared during a single Route call: either the
// quota gate skipped it, or its adapter was invoked and failed. Successful
// tiers never appear here because success returns immediately.
type Attempt struct {
	Provider   textgen.ProviderID
	Skipped    bool
	SkipReason string
	Err        error
}

func (a Attempt) String() string {
	if a.Skipped {
		return fmt.Sprintf("%s: skipped (%s)", a.Provider, a.SkipReason)
	}
	return fmt.Sprintf("%s: %v", a.Provider, a.Err)
}

// ExhaustedError is the only error Route returns to its caller. Individual
// adapter failures are recovered internally; this surfaces only when every
// tier was skipped or failed, carrying the per-provider outcomes for
// diagnostics.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	outcomes := make([]string, len(e.Attempts))
	for i, attempt := range e.Attempts {
		outcomes[i] = attempt.String()
	}
	return fmt.Sprintf("all providers exhausted: %s", strings.Join(outcomes, "; "))
}
