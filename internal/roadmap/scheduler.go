package roadmap

// PlanningMode selects how the schedule relates to the calendar.
type PlanningMode string

const (
	ModeOpen     PlanningMode = "open"
	ModeDeadline PlanningMode = "deadline"
)

// MaxScheduleDays bounds the whole layout; longer roadmaps are rejected as bad estimates.
const MaxScheduleDays = 30 * 365

// ParsePlanningMode validates a mode string.
func ParsePlanningMode(s string) (PlanningMode, error) {
	switch PlanningMode(s) {
	case ModeOpen, ModeDeadline:
		return PlanningMode(s), nil
	}
	return "", &ValidationError{Field: "planning_mode", Reason: "must be 'deadline' or 'open'"}
}

// ModuleInput is one module to place on the calendar.
type ModuleInput struct {
	OrderIndex    int
	EstimatedDays int
}

// Span is an inclusive range of calendar days.
type Span struct {
	StartDate Date `json:"start_date"`
	EndDate   Date `json:"end_date"`
}

// Days is the inclusive length of the span.
func (s Span) Days() int {
	return s.EndDate.DaysSince(s.StartDate) + 1
}

// Contains reports whether d falls within the span, bounds included.
func (s Span) Contains(d Date) bool {
	return !d.Before(s.StartDate) && !d.After(s.EndDate)
}

// Schedule is the result of laying modules out on the calendar.
type Schedule struct {
	Spans []Span
	// RequiredDays is the sum of every module's estimated days.
	RequiredDays int
	// BufferDays is deadline-mode slack left after the last module; always 0 in open mode.
	BufferDays int
}

// End is the last scheduled day, or the zero Date for an empty schedule.
func (s Schedule) End() Date {
	if len(s.Spans) == 0 {
		return Date{}
	}
	return s.Spans[len(s.Spans)-1].EndDate
}

// ScheduleModules assigns contiguous spans to modules starting at anchor.
//
// modules must be ordered by OrderIndex and numbered 0..n-1. Every calendar day counts;
// weekends are not skipped because hours-per-day already encodes real throughput.
// In deadline mode the whole layout must end on or before deadline, otherwise an
// *InfeasibleScheduleError carrying the shortfall is returned. Slack is reported as
// BufferDays after the last module rather than spread between modules.
func ScheduleModules(modules []ModuleInput, anchor Date, mode PlanningMode, deadline *Date) (Schedule, error) {
	if anchor.IsZero() {
		return Schedule{}, &ValidationError{Field: "anchor_date", Reason: "is required"}
	}
	switch mode {
	case ModeOpen:
	case ModeDeadline:
		if deadline == nil || deadline.IsZero() {
			return Schedule{}, &ValidationError{Field: "deadline_date", Reason: "is required in deadline mode"}
		}
	default:
		return Schedule{}, &ValidationError{Field: "planning_mode", Reason: "must be 'deadline' or 'open'"}
	}

	required := 0
	for i, m := range modules {
		if m.OrderIndex != i {
			return Schedule{}, &OrderIndexError{Position: i, OrderIndex: m.OrderIndex}
		}
		if m.EstimatedDays < 1 || m.EstimatedDays > MaxEstimatedDays {
			return Schedule{}, &InvalidEstimateError{EstimatedHours: float64(m.EstimatedDays), HoursPerDay: 1}
		}
		required += m.EstimatedDays
		if required > MaxScheduleDays {
			return Schedule{}, &ScheduleTooLongError{RequiredDays: required, MaxDays: MaxScheduleDays}
		}
	}

	sched := Schedule{RequiredDays: required}
	if mode == ModeDeadline {
		available := deadline.DaysSince(anchor) + 1
		if available < required {
			short := required - available
			if available < 0 {
				available = 0
			}
			return Schedule{}, &InfeasibleScheduleError{
				RequiredDays:  required,
				AvailableDays: available,
				ShortfallDays: short,
				Deadline:      *deadline,
			}
		}
		sched.BufferDays = available - required
	}

	sched.Spans = make([]Span, len(modules))
	start := anchor
	for i, m := range modules {
		end := start.AddDays(m.EstimatedDays - 1)
		sched.Spans[i] = Span{StartDate: start, EndDate: end}
		start = end.AddDays(1)
	}
	return sched, nil
}

// TaskDeadline resolves a task's deadline inside its module span.
//
// Tasks that neither request a deadline nor supply one get none (ok is false).
// A supplied date must fall within span; otherwise the module's end date is used.
func TaskDeadline(span Span, requested bool, supplied *Date) (deadline Date, ok bool, err error) {
	if supplied != nil && !supplied.IsZero() {
		if !span.Contains(*supplied) {
			return Date{}, false, &TaskDeadlineOutOfRangeError{Deadline: *supplied, Span: span}
		}
		return *supplied, true, nil
	}
	if !requested {
		return Date{}, false, nil
	}
	return span.EndDate, true, nil
}
