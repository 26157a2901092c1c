// Package apperr defines the service-level error taxonomy and its mapping to
// HTTP status codes and user-facing sentences.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"spmagent/internal/roadmap"
)

const (
	DetailGeneration = "Failed to generate roadmap. Please try again."
	DetailInternal   = "Internal server error."
	DetailAuth       = "Could not validate credentials."
)

// ValidationError is a malformed or missing field. Detail is shown to the user verbatim.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string { return e.Detail }

func Validation(format string, args ...any) *ValidationError {
	return &ValidationError{Detail: fmt.Sprintf(format, args...)}
}

// NotFoundError covers both absent rows and rows owned by someone else.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

// Detail returns the user-facing sentence.
func (e *NotFoundError) Detail() string {
	switch e.Resource {
	case "project":
		return "Project not found."
	case "task":
		return "Task not found."
	case "user":
		return "User not found."
	default:
		return "Not found."
	}
}

// AuthError rejects a request for bad credentials. Detail overrides DetailAuth when set.
type AuthError struct {
	Reason string
	Detail string
}

func (e *AuthError) Error() string { return "auth: " + e.Reason }

type ConflictError struct {
	Detail string
}

func (e *ConflictError) Error() string { return e.Detail }

// GenerationError wraps a failure of the content generator or an inconsistency in its output.
type GenerationError struct {
	Cause error
}

func (e *GenerationError) Error() string { return "roadmap generation failed: " + e.Cause.Error() }
func (e *GenerationError) Unwrap() error { return e.Cause }

// Status maps err to an HTTP status and a single user-facing sentence.
func Status(err error) (int, string) {
	var (
		validation  *ValidationError
		notFound    *NotFoundError
		auth        *AuthError
		conflict    *ConflictError
		generation  *GenerationError
		infeasible  *roadmap.InfeasibleScheduleError
		coreInvalid *roadmap.ValidationError
		badStatus   *roadmap.InvalidStatusError
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Detail
	case errors.As(err, &coreInvalid):
		return http.StatusBadRequest, coreInvalid.Error()
	case errors.As(err, &badStatus):
		return http.StatusBadRequest, "Invalid status. Must be one of: pending, in_progress, completed, blocked."
	case errors.As(err, &infeasible):
		return http.StatusUnprocessableEntity, infeasibleDetail(infeasible)
	case errors.As(err, &notFound):
		return http.StatusNotFound, notFound.Detail()
	case errors.As(err, &auth):
		if auth.Detail != "" {
			return http.StatusUnauthorized, auth.Detail
		}
		return http.StatusUnauthorized, DetailAuth
	case errors.As(err, &conflict):
		return http.StatusConflict, conflict.Detail
	case errors.As(err, &generation):
		return http.StatusBadGateway, DetailGeneration
	case IsContentInconsistency(err):
		return http.StatusBadGateway, DetailGeneration
	default:
		return http.StatusInternalServerError, DetailInternal
	}
}

// IsContentInconsistency reports errors caused by generator output the scheduler cannot use.
func IsContentInconsistency(err error) bool {
	var (
		estimate *roadmap.InvalidEstimateError
		outRange *roadmap.TaskDeadlineOutOfRangeError
		order    *roadmap.OrderIndexError
		tooLong  *roadmap.ScheduleTooLongError
	)
	return errors.As(err, &estimate) || errors.As(err, &outRange) || errors.As(err, &order) ||
		errors.As(err, &tooLong)
}

func infeasibleDetail(e *roadmap.InfeasibleScheduleError) string {
	unit := "days"
	if e.ShortfallDays == 1 {
		unit = "day"
	}
	return fmt.Sprintf(
		"The roadmap needs %d more %s than the deadline allows. Please choose a later deadline or reduce the project scope.",
		e.ShortfallDays, unit,
	)
}
