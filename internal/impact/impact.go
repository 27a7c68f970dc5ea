// Package impact decides which automation targets a push affects.
package impact

import (
	"strings"

	"github.com/nahidhasan98/netconf-relay/internal/models"
)

// Result is the outcome of analysing a push. Global and Targets can both be
// set; an unrestricted run covers every target, so Global wins when the
// run is scoped.
type Result struct {
	Global  bool
	Targets []string
}

// None reports whether the push touched nothing of interest
func (r Result) None() bool {
	return !r.Global && len(r.Targets) == 0
}

// Limit returns the target limit for the automation run: nil for an
// unrestricted run.
func (r Result) Limit() []string {
	if r.Global {
		return nil
	}
	return r.Targets
}

// Kind names the result for logs and metrics
func (r Result) Kind() string {
	switch {
	case r.Global:
		return "global"
	case len(r.Targets) > 0:
		return "targeted"
	default:
		return "none"
	}
}

// Analyzer classifies changed paths
type Analyzer struct {
	globalPath   string
	targetPrefix string
}

// NewAnalyzer creates an analyzer. globalPath is matched exactly;
// targetPrefix is a directory whose next segment names the target.
func NewAnalyzer(globalPath, targetPrefix string) *Analyzer {
	if targetPrefix != "" && !strings.HasSuffix(targetPrefix, "/") {
		targetPrefix += "/"
	}
	return &Analyzer{globalPath: globalPath, targetPrefix: targetPrefix}
}

// Analyze scans added and modified paths of every commit. Removed paths are
// not considered.
func (a *Analyzer) Analyze(commits []models.Commit) Result {
	var res Result
	seen := make(map[string]struct{})

	for _, c := range commits {
		for _, paths := range [][]string{c.Added, c.Modified} {
			for _, p := range paths {
				if a.globalPath != "" && p == a.globalPath {
					res.Global = true
					continue
				}

				target, ok := a.target(p)
				if !ok {
					continue
				}
				if _, dup := seen[target]; dup {
					continue
				}
				seen[target] = struct{}{}
				res.Targets = append(res.Targets, target)
			}
		}
	}

	return res
}

// target extracts the segment after the prefix. Files directly inside the
// prefix directory have no target.
func (a *Analyzer) target(p string) (string, bool) {
	if a.targetPrefix == "" || !strings.HasPrefix(p, a.targetPrefix) {
		return "", false
	}

	name, _, found := strings.Cut(strings.TrimPrefix(p, a.targetPrefix), "/")
	if !found || name == "" {
		return "", false
	}
	return name, true
}
