package reconcile

import (
	"fmt"
	"sort"
	"strings"
)

// CycleError reports the domains whose fetch failed during one
// reconciliation cycle. The cycle itself still applied every domain
// that succeeded; prior state for the failed ones was left untouched.
type CycleError struct {
	Domains map[string]error
}

func (e *CycleError) Error() string {
	names := e.FailedDomains()
	return fmt.Sprintf("reconcile: %d domain(s) failed: %s",
		len(names), strings.Join(names, ", "))
}

// FailedDomains returns the failed domain names, sorted for stable output
func (e *CycleError) FailedDomains() []string {
	names := make([]string, 0, len(e.Domains))
	for name := range e.Domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
