package lifecycle

import (
	"errors"
	"fmt"

	"civicdesk/backend/internal/models"
)

// ErrUnauthenticated is returned when no caller identity is available.
var ErrUnauthenticated = errors.New("lifecycle: caller is not authenticated")

// ForbiddenError reports a caller whose role or relationship to the complaint
// does not allow the operation.
type ForbiddenError struct {
	Role   models.Role
	Action models.Action
	Reason string
}

func (e *ForbiddenError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("lifecycle: %s may not %s: %s", e.Role, e.Action, e.Reason)
	}
	return fmt.Sprintf("lifecycle: %s may not %s", e.Role, e.Action)
}

// InvalidTransitionError reports an action that is not legal from the
// complaint's current status. Stale is set when the complaint changed between
// read and write.
type InvalidTransitionError struct {
	From   models.Status
	Action models.Action
	Stale  bool
}

func (e *InvalidTransitionError) Error() string {
	if e.Stale {
		return fmt.Sprintf("lifecycle: complaint changed concurrently, %s from %s no longer applies", e.Action, e.From)
	}
	return fmt.Sprintf("lifecycle: cannot %s a %s complaint", e.Action, e.From)
}

// InvalidWorkerError reports an assignment target that is not an active worker.
type InvalidWorkerError struct {
	WorkerID string
	Reason   string
}

func (e *InvalidWorkerError) Error() string {
	return fmt.Sprintf("lifecycle: user %q cannot be assigned: %s", e.WorkerID, e.Reason)
}

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("lifecycle: invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
