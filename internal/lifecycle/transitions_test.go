package lifecycle_test

import (
	"errors"
	"testing"

	"civicdesk/backend/internal/lifecycle"
	"civicdesk/backend/internal/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	officer = models.Actor{UserID: "o1", Role: models.RoleOfficer}
	admin   = models.Actor{UserID: "a1", Role: models.RoleAdmin}
	worker  = models.Actor{UserID: "w1", Role: models.RoleWorker}
	citizen = models.Actor{UserID: "c1", Role: models.RoleCitizen}
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		from     models.Status
		action   models.Action
		actor    models.Actor
		assignee string
		want     models.Status
		wantErr  interface{}
	}{
		{"officer assigns pending", models.StatusPending, models.ActionAssign, officer, "", models.StatusAssigned, nil},
		{"admin reassigns", models.StatusAssigned, models.ActionReassign, admin, "w1", models.StatusAssigned, nil},
		{"assignee starts", models.StatusAssigned, models.ActionStart, worker, "w1", models.StatusInProgress, nil},
		{"assignee submits proof", models.StatusInProgress, models.ActionSubmitProof, worker, "w1", models.StatusInProgress, nil},
		{"officer resolves in progress", models.StatusInProgress, models.ActionResolve, officer, "w1", models.StatusResolved, nil},
		{"officer resolves assigned", models.StatusAssigned, models.ActionResolve, officer, "w1", models.StatusResolved, nil},
		{"officer rejects pending", models.StatusPending, models.ActionReject, officer, "", models.StatusRejected, nil},
		{"metadata keeps state", models.StatusInProgress, models.ActionUpdateMetadata, officer, "w1", models.StatusInProgress, nil},

		{"resolve from pending", models.StatusPending, models.ActionResolve, officer, "", "", &lifecycle.InvalidTransitionError{}},
		{"reassign pending", models.StatusPending, models.ActionReassign, officer, "", "", &lifecycle.InvalidTransitionError{}},
		{"reject in progress", models.StatusInProgress, models.ActionReject, officer, "w1", "", &lifecycle.InvalidTransitionError{}},
		{"reject resolved", models.StatusResolved, models.ActionReject, admin, "w1", "", &lifecycle.InvalidTransitionError{}},
		{"metadata on rejected", models.StatusRejected, models.ActionUpdateMetadata, officer, "", "", &lifecycle.InvalidTransitionError{}},
		{"start twice", models.StatusInProgress, models.ActionStart, worker, "w1", "", &lifecycle.InvalidTransitionError{}},

		{"citizen assigns", models.StatusPending, models.ActionAssign, citizen, "", "", &lifecycle.ForbiddenError{}},
		{"worker resolves", models.StatusInProgress, models.ActionResolve, worker, "w1", "", &lifecycle.ForbiddenError{}},
		{"officer starts", models.StatusAssigned, models.ActionStart, officer, "w1", "", &lifecycle.ForbiddenError{}},
		{"other worker starts", models.StatusAssigned, models.ActionStart, worker, "w2", "", &lifecycle.ForbiddenError{}},
		{"role checked before state", models.StatusResolved, models.ActionReject, citizen, "", "", &lifecycle.ForbiddenError{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lifecycle.Decide(tt.from, tt.action, tt.actor, tt.assignee)
			switch want := tt.wantErr.(type) {
			case nil:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			case *lifecycle.InvalidTransitionError:
				assert.ErrorAs(t, err, &want)
				assert.False(t, want.Stale)
			case *lifecycle.ForbiddenError:
				assert.ErrorAs(t, err, &want)
			}
		})
	}
}

func TestDecide_UnknownAction(t *testing.T) {
	_, err := lifecycle.Decide(models.StatusPending, models.ActionCreate, officer, "")
	require.Error(t, err)
	var forbidden *lifecycle.ForbiddenError
	assert.False(t, errors.As(err, &forbidden))
}

func TestDecide_TerminalStatesHaveNoExit(t *testing.T) {
	actions := []models.Action{
		models.ActionAssign, models.ActionReassign, models.ActionStart, models.ActionSubmitProof,
		models.ActionResolve, models.ActionReject, models.ActionUpdateMetadata,
	}
	for _, from := range []models.Status{models.StatusResolved, models.StatusRejected} {
		for _, action := range actions {
			for _, actor := range []models.Actor{officer, admin, worker} {
				_, err := lifecycle.Decide(from, action, actor, actor.UserID)
				assert.Error(t, err, "%s %s by %s", from, action, actor.Role)
			}
		}
	}
}

func TestAllowed(t *testing.T) {
	got := lifecycle.Allowed(models.StatusAssigned, officer, "w1")
	want := []models.Action{models.ActionReassign, models.ActionResolve, models.ActionReject, models.ActionUpdateMetadata}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Allowed mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []models.Action{models.ActionStart}, lifecycle.Allowed(models.StatusAssigned, worker, "w1"))
	assert.Empty(t, lifecycle.Allowed(models.StatusPending, citizen, ""))
}

func TestValidateMediaRef(t *testing.T) {
	for _, ok := range []string{"https://cdn.example.com/p.jpg", "http://host/x", "gs://bucket/complaints/1.jpg"} {
		assert.NoError(t, lifecycle.ValidateMediaRef(ok), ok)
	}
	for _, bad := range []string{"", "photo.jpg", "ftp://host/x", "https:///nohost", "gs://bucket", "file:///etc/passwd"} {
		var verr *lifecycle.ValidationError
		assert.ErrorAs(t, lifecycle.ValidateMediaRef(bad), &verr, bad)
	}
}
