package storage_test

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"civicdesk/backend/internal/models"
	"civicdesk/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedComplaint(t *testing.T, s *storage.MemoryStore, citizenID string) *models.Complaint {
	t.Helper()
	c := &models.Complaint{
		Title:       "Pothole",
		Description: "Big pothole near the bus stop",
		Category:    models.CategoryRoad,
		Status:      models.StatusPending,
		Priority:    models.PriorityMedium,
		CitizenID:   citizenID,
		MediaURLs:   []string{"https://cdn.example.com/a.jpg"},
	}
	ev := &models.ComplaintEvent{Action: models.ActionCreate, ActorID: citizenID, ActorRole: models.RoleCitizen, ToStatus: models.StatusPending}
	require.NoError(t, s.CreateComplaint(context.Background(), c, ev))
	return c
}

func TestMemoryStore_CreateAndGetComplaint(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	c := seedComplaint(t, s, "citizen-1")

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, int64(1), c.Version)

	got, err := s.GetComplaintByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Title, got.Title)

	// Returned records are copies.
	got.MediaURLs[0] = "mutated"
	again, err := s.GetComplaintByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.jpg", again.MediaURLs[0])

	events, err := s.ListEvents(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.ActionCreate, events[0].Action)

	_, err = s.GetComplaintByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryStore_ApplyUpdateVersionGuard(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	c := seedComplaint(t, s, "citizen-1")

	first := *c
	first.Status = models.StatusAssigned
	err := s.ApplyUpdate(ctx, storage.ComplaintUpdate{
		Complaint:       &first,
		ExpectedVersion: 1,
		NewAssignment:   &models.Assignment{WorkerID: "worker-1", OfficerID: "officer-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Version)

	stale := *c
	stale.Status = models.StatusAssigned
	err = s.ApplyUpdate(ctx, storage.ComplaintUpdate{Complaint: &stale, ExpectedVersion: 1})
	assert.ErrorIs(t, err, storage.ErrVersionConflict)

	missing := models.Complaint{ID: "nope"}
	err = s.ApplyUpdate(ctx, storage.ComplaintUpdate{Complaint: &missing, ExpectedVersion: 1})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryStore_ReassignSupersedes(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	c := seedComplaint(t, s, "citizen-1")

	for i, worker := range []string{"worker-1", "worker-2"} {
		next := *c
		next.Status = models.StatusAssigned
		require.NoError(t, s.ApplyUpdate(ctx, storage.ComplaintUpdate{
			Complaint:       &next,
			ExpectedVersion: int64(i + 1),
			NewAssignment:   &models.Assignment{WorkerID: worker, OfficerID: "officer-1"},
		}))
		c = &next
	}

	active, err := s.ActiveAssignment(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "worker-2", active.WorkerID)

	all, err := s.ListAssignments(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.False(t, all[0].Active)
	assert.NotNil(t, all[0].SupersededAt)
	assert.True(t, all[1].Active)

	none, err := s.ActiveAssignment(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMemoryStore_ListComplaintsFilters(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	for i := 0; i < 12; i++ {
		seedComplaint(t, s, fmt.Sprintf("citizen-%d", i%2))
	}
	water := seedComplaint(t, s, "citizen-9")
	w := *water
	w.Category = models.CategoryWater
	w.Status = models.StatusAssigned
	require.NoError(t, s.ApplyUpdate(ctx, storage.ComplaintUpdate{
		Complaint:       &w,
		ExpectedVersion: 1,
		NewAssignment:   &models.Assignment{WorkerID: "worker-7"},
	}))

	page, total, err := s.ListComplaints(ctx, storage.ComplaintFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(13), total)
	assert.Len(t, page, 10)

	page, _, err = s.ListComplaints(ctx, storage.ComplaintFilter{Page: 2})
	require.NoError(t, err)
	assert.Len(t, page, 3)

	_, total, err = s.ListComplaints(ctx, storage.ComplaintFilter{CitizenID: "citizen-0"})
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)

	page, total, err = s.ListComplaints(ctx, storage.ComplaintFilter{WorkerID: "worker-7"})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, water.ID, page[0].ID)

	_, total, err = s.ListComplaints(ctx, storage.ComplaintFilter{Category: models.CategoryWater, Status: models.StatusAssigned})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestMemoryStore_DeleteAndCounts(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	a := seedComplaint(t, s, "citizen-1")
	seedComplaint(t, s, "citizen-1")

	byStatus, err := s.CountComplaintsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), byStatus[models.StatusPending])

	require.NoError(t, s.DeleteComplaint(ctx, a.ID))
	assert.ErrorIs(t, s.DeleteComplaint(ctx, a.ID), storage.ErrNotFound)

	events, err := s.ListEvents(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, events)

	byCategory, err := s.CountComplaintsByCategory(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[models.Category]int64{models.CategoryRoad: 1}, byCategory)
}

func TestMemoryStore_Users(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()

	u := &models.User{PhoneNumber: "+911234567890", Name: "Asha", Role: models.RoleWorker, IsActive: true}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.ErrorIs(t, s.CreateUser(ctx, &models.User{PhoneNumber: u.PhoneNumber}), storage.ErrDuplicate)

	u.Role = models.RoleOfficer
	require.NoError(t, s.UpdateUser(ctx, u))
	got, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOfficer, got.Role)

	assert.ErrorIs(t, s.UpdateUser(ctx, &models.User{ID: "ghost"}), storage.ErrNotFound)

	users, total, err := s.ListUsers(ctx, storage.UserFilter{Role: models.RoleOfficer})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, users, 1)

	roles, err := s.CountUsersByRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), roles[models.RoleOfficer])
}

func TestMemoryStore_TokenRevocation(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()

	revoked, err := s.IsTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.RevokeToken(ctx, "jti-1", time.Now().Add(time.Hour)))
	revoked, err = s.IsTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	require.NoError(t, s.RevokeToken(ctx, "jti-2", time.Now().Add(-time.Second)))
	revoked, err = s.IsTokenRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestPage(t *testing.T) {
	tests := []struct {
		name                      string
		page, limit               int
		wantPage, wantLim, wantOf int
	}{
		{"defaults", 0, 0, 1, 10, 0},
		{"second page", 2, 5, 2, 5, 5},
		{"clamped", 3, 500, 3, 100, 200},
		{"huge page", math.MaxInt, 10, math.MaxInt/10 + 1, 10, math.MaxInt / 10 * 10},
		{"huge page max limit", math.MaxInt, 100, math.MaxInt/100 + 1, 100, math.MaxInt / 100 * 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, l, o := storage.Page(tt.page, tt.limit, 10, 100)
			assert.Equal(t, []int{tt.wantPage, tt.wantLim, tt.wantOf}, []int{p, l, o})
		})
	}
}

func TestMemoryStore_ListBeyondLastPage(t *testing.T) {
	s := storage.NewMemoryStore()
	seedComplaint(t, s, "c1")

	items, total, err := s.ListComplaints(context.Background(), storage.ComplaintFilter{Page: math.MaxInt, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Empty(t, items)

	users, _, err := s.ListUsers(context.Background(), storage.UserFilter{Page: math.MaxInt, Limit: 100})
	require.NoError(t, err)
	assert.Empty(t, users)
}
