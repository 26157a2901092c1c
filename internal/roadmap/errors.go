package roadmap

import "fmt"

// InvalidEstimateError reports a non-positive hour estimate or hours-per-day rate.
type InvalidEstimateError struct {
	EstimatedHours float64
	HoursPerDay    float64
}

func (e *InvalidEstimateError) Error() string {
	return fmt.Sprintf("invalid estimate: estimated_hours=%g hours_per_day=%g (both must be positive)",
		e.EstimatedHours, e.HoursPerDay)
}

// InfeasibleScheduleError means the modules do not fit before the deadline.
type InfeasibleScheduleError struct {
	RequiredDays  int
	AvailableDays int
	ShortfallDays int
	Deadline      Date
}

func (e *InfeasibleScheduleError) Error() string {
	return fmt.Sprintf("infeasible schedule: %d days required, %d available before %s (short by %d)",
		e.RequiredDays, e.AvailableDays, e.Deadline, e.ShortfallDays)
}

// ScheduleTooLongError means the modules add up to more days than any roadmap may span.
// RequiredDays is the running total at the point the limit was crossed.
type ScheduleTooLongError struct {
	RequiredDays int
	MaxDays      int
}

func (e *ScheduleTooLongError) Error() string {
	return fmt.Sprintf("schedule too long: at least %d days required, limit is %d", e.RequiredDays, e.MaxDays)
}

// TaskDeadlineOutOfRangeError means a supplied task deadline lies outside its module's span.
type TaskDeadlineOutOfRangeError struct {
	Deadline Date
	Span     Span
}

func (e *TaskDeadlineOutOfRangeError) Error() string {
	return fmt.Sprintf("task deadline %s outside module range [%s, %s]",
		e.Deadline, e.Span.StartDate, e.Span.EndDate)
}

// OrderIndexError means module order indexes are not the contiguous sequence 0..n-1.
type OrderIndexError struct {
	Position   int
	OrderIndex int
}

func (e *OrderIndexError) Error() string {
	return fmt.Sprintf("module at position %d has order_index %d", e.Position, e.OrderIndex)
}

// InvalidStatusError is returned when a status string is not one of the known values.
type InvalidStatusError struct {
	Value string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid status %q", e.Value)
}

// ValidationError reports a malformed or missing input field. Its message is safe to show users.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason + "."
}
