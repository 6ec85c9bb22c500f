package lifecycle

import (
	"fmt"
	"slices"

	"civicdesk/backend/internal/models"
)

type rule struct {
	roles []models.Role
	// from lists the legal source states; nil means any non-terminal state.
	from []models.Status
	// to is the target state; empty keeps the current one.
	to           models.Status
	assigneeOnly bool
}

var staff = []models.Role{models.RoleOfficer, models.RoleAdmin}

var transitions = map[models.Action]rule{
	models.ActionAssign: {
		roles: staff,
		from:  []models.Status{models.StatusPending},
		to:    models.StatusAssigned,
	},
	models.ActionReassign: {
		roles: staff,
		from:  []models.Status{models.StatusAssigned},
		to:    models.StatusAssigned,
	},
	models.ActionStart: {
		roles:        []models.Role{models.RoleWorker},
		from:         []models.Status{models.StatusAssigned},
		to:           models.StatusInProgress,
		assigneeOnly: true,
	},
	models.ActionSubmitProof: {
		roles:        []models.Role{models.RoleWorker},
		from:         []models.Status{models.StatusInProgress},
		to:           models.StatusInProgress,
		assigneeOnly: true,
	},
	models.ActionResolve: {
		roles: staff,
		from:  []models.Status{models.StatusAssigned, models.StatusInProgress},
		to:    models.StatusResolved,
	},
	models.ActionReject: {
		roles: staff,
		from:  []models.Status{models.StatusPending, models.StatusAssigned},
		to:    models.StatusRejected,
	},
	models.ActionUpdateMetadata: {
		roles: staff,
	},
}

// Decide returns the status a complaint in state from moves to when actor
// performs action. assignee is the worker of the active assignment, if any.
// Role is checked first, then assignment, then the source state.
func Decide(from models.Status, action models.Action, actor models.Actor, assignee string) (models.Status, error) {
	r, ok := transitions[action]
	if !ok {
		return "", fmt.Errorf("lifecycle: %q is not a transition", action)
	}
	if !actor.Is(r.roles...) {
		return "", &ForbiddenError{Role: actor.Role, Action: action}
	}
	if r.assigneeOnly && (assignee == "" || assignee != actor.UserID) {
		return "", &ForbiddenError{Role: actor.Role, Action: action, Reason: "not the assigned worker"}
	}

	legal := !from.Terminal()
	if r.from != nil {
		legal = slices.Contains(r.from, from)
	}
	if !legal {
		return "", &InvalidTransitionError{From: from, Action: action}
	}
	if r.to == "" {
		return from, nil
	}
	return r.to, nil
}

// Allowed lists the actions actor may currently perform on a complaint.
func Allowed(from models.Status, actor models.Actor, assignee string) []models.Action {
	var out []models.Action
	for _, action := range actionOrder {
		if _, err := Decide(from, action, actor, assignee); err == nil {
			out = append(out, action)
		}
	}
	return out
}

var actionOrder = []models.Action{
	models.ActionAssign,
	models.ActionReassign,
	models.ActionStart,
	models.ActionSubmitProof,
	models.ActionResolve,
	models.ActionReject,
	models.ActionUpdateMetadata,
}
