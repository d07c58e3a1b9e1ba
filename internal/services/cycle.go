// Package services provides business logic and orchestration services.
package services

import (
	"time"

	"carteira/internal/core"
)

// CycleChecker decides whether two instants belong to the same billing cycle.
type CycleChecker interface {
	SameCycle(a, b time.Time) bool
}

// MonthlyChecker implements CycleChecker for calendar-month cycles
// evaluated in Location (time.Local when nil).
type MonthlyChecker struct {
	Location *time.Location
}

func (c MonthlyChecker) SameCycle(a, b time.Time) bool {
	return core.SameCycle(a, b, c.Location)
}
