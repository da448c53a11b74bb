// Package doctor runs offline health checks against a wipbot install.
package doctor

import (
	"context"

	"github.com/ksteinfeldt/wipbot/internal/config"
)

// Status is the outcome of a check.
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarning:
		return "warning"
	default:
		return "error"
	}
}

// CheckContext is what every check runs against.
type CheckContext struct {
	Context    context.Context
	Config     *config.Config
	ConfigPath string
}

// CheckResult describes one check's findings.
type CheckResult struct {
	Name    string
	Status  Status
	Message string
	Details []string
	FixHint string
}

// Check is a single health check.
type Check interface {
	Name() string
	Description() string
	Run(ctx *CheckContext) *CheckResult
}

// Fixer is a Check that can repair what it finds.
type Fixer interface {
	Check
	Fix(ctx *CheckContext) error
}

// BaseCheck carries a check's name and description.
type BaseCheck struct {
	CheckName        string
	CheckDescription string
}

func (b BaseCheck) Name() string        { return b.CheckName }
func (b BaseCheck) Description() string { return b.CheckDescription }

// Default returns the standard checks in run order.
func Default() []Check {
	return []Check{
		NewConfigCheck(),
		NewScheduleCheck(),
		NewStoreCheck(),
	}
}

// Run executes checks in order. When fix is set, failing checks that
// implement Fixer are repaired and run again.
func Run(ctx *CheckContext, checks []Check, fix bool) []*CheckResult {
	results := make([]*CheckResult, 0, len(checks))
	for _, c := range checks {
		res := c.Run(ctx)
		if fix && res.Status != StatusOK {
			if f, ok := c.(Fixer); ok {
				if err := f.Fix(ctx); err != nil {
					res.Details = append(res.Details, "fix failed: "+err.Error())
				} else {
					res = c.Run(ctx)
				}
			}
		}
		results = append(results, res)
	}
	return results
}

// Worst returns the most severe status in results.
func Worst(results []*CheckResult) Status {
	worst := StatusOK
	for _, r := range results {
		if r.Status > worst {
			worst = r.Status
		}
	}
	return worst
}
