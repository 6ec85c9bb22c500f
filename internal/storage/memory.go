package storage

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"civicdesk/backend/internal/config"
	"civicdesk/backend/internal/models"
)

// MemoryStore is an in-process Storage for local development and tests.
// Every method copies records in and out, so callers never share memory with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]models.User
	complaints  map[string]models.Complaint
	assignments []models.Assignment
	proofs      []models.WorkProof
	events      []models.ComplaintEvent
	revoked     map[string]time.Time
	now         func() time.Time
}

var (
	_ Storage      = (*MemoryStore)(nil)
	_ TokenRevoker = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]models.User),
		complaints: make(map[string]models.Complaint),
		revoked:    make(map[string]time.Time),
		now:        time.Now,
	}
}

func copyComplaint(c models.Complaint) models.Complaint {
	if c.MediaURLs != nil {
		c.MediaURLs = slices.Clone(c.MediaURLs)
	}
	if c.Latitude != nil {
		v := *c.Latitude
		c.Latitude = &v
	}
	if c.Longitude != nil {
		v := *c.Longitude
		c.Longitude = &v
	}
	if c.ResolvedAt != nil {
		v := *c.ResolvedAt
		c.ResolvedAt = &v
	}
	return c
}

func copyProof(p models.WorkProof) models.WorkProof {
	if p.BeforeMedia != nil {
		p.BeforeMedia = slices.Clone(p.BeforeMedia)
	}
	if p.AfterMedia != nil {
		p.AfterMedia = slices.Clone(p.AfterMedia)
	}
	return p
}

// CreateUser inserts a user. Phone numbers are unique.
func (m *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.PhoneNumber == user.PhoneNumber {
			return ErrDuplicate
		}
	}
	if err := user.BeforeCreate(nil); err != nil {
		return err
	}
	if _, exists := m.users[user.ID]; exists {
		return ErrDuplicate
	}
	now := m.now()
	user.CreatedAt, user.UpdatedAt = now, now
	m.users[user.ID] = *user
	return nil
}

// GetUserByID loads a user.
func (m *MemoryStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// UpdateUser replaces an existing user.
func (m *MemoryStore) UpdateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	for id, u := range m.users {
		if id != user.ID && u.PhoneNumber == user.PhoneNumber {
			return ErrDuplicate
		}
	}
	user.CreatedAt = current.CreatedAt
	user.UpdatedAt = m.now()
	m.users[user.ID] = *user
	return nil
}

// ListUsers returns one page of users, newest first, and the total count.
func (m *MemoryStore) ListUsers(_ context.Context, f UserFilter) ([]models.User, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []models.User
	for _, u := range m.users {
		if f.Role == "" || u.Role == f.Role {
			matched = append(matched, u)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	_, limit, offset := Page(f.Page, f.Limit, config.DefaultUserPageSize, config.MaxPageSize)
	return window(matched, offset, limit), int64(len(matched)), nil
}

// CreateComplaint inserts a complaint and its creation event.
func (m *MemoryStore) CreateComplaint(_ context.Context, c *models.Complaint, ev *models.ComplaintEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := c.BeforeCreate(nil); err != nil {
		return err
	}
	if _, exists := m.complaints[c.ID]; exists {
		return ErrDuplicate
	}
	now := m.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Version == 0 {
		c.Version = 1
	}
	m.complaints[c.ID] = copyComplaint(*c)

	if ev != nil {
		ev.ComplaintID = c.ID
		m.appendEvent(ev, now)
	}
	return nil
}

func (m *MemoryStore) appendEvent(ev *models.ComplaintEvent, now time.Time) {
	_ = ev.BeforeCreate(nil)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now
	}
	m.events = append(m.events, *ev)
}

// GetComplaintByID loads a complaint.
func (m *MemoryStore) GetComplaintByID(_ context.Context, id string) (*models.Complaint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.complaints[id]
	if !ok {
		return nil, ErrNotFound
	}
	c = copyComplaint(c)
	return &c, nil
}

// ListComplaints returns one page of complaints, newest first, and the total count.
func (m *MemoryStore) ListComplaints(_ context.Context, f ComplaintFilter) ([]models.Complaint, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	assignedTo := map[string]bool{}
	if f.WorkerID != "" {
		for _, a := range m.assignments {
			if a.WorkerID == f.WorkerID {
				assignedTo[a.ComplaintID] = true
			}
		}
	}

	var matched []models.Complaint
	for _, c := range m.complaints {
		switch {
		case f.Status != "" && c.Status != f.Status,
			f.Category != "" && c.Category != f.Category,
			f.Priority != "" && c.Priority != f.Priority,
			f.CitizenID != "" && c.CitizenID != f.CitizenID,
			f.WorkerID != "" && !assignedTo[c.ID]:
			continue
		}
		matched = append(matched, copyComplaint(c))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	_, limit, offset := Page(f.Page, f.Limit, config.DefaultPageSize, config.MaxPageSize)
	return window(matched, offset, limit), int64(len(matched)), nil
}

// ApplyUpdate writes a lifecycle change atomically, guarded by the complaint's version.
func (m *MemoryStore) ApplyUpdate(_ context.Context, u ComplaintUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := u.Complaint
	current, ok := m.complaints[c.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != u.ExpectedVersion {
		return ErrVersionConflict
	}

	now := m.now()
	c.Version = u.ExpectedVersion + 1
	c.UpdatedAt = now
	c.CreatedAt = current.CreatedAt
	m.complaints[c.ID] = copyComplaint(*c)

	if u.NewAssignment != nil {
		for i := range m.assignments {
			if m.assignments[i].ComplaintID == c.ID && m.assignments[i].Active {
				m.assignments[i].Active = false
				superseded := now
				m.assignments[i].SupersededAt = &superseded
			}
		}
		a := u.NewAssignment
		_ = a.BeforeCreate(nil)
		a.ComplaintID = c.ID
		a.Active = true
		if a.AssignedAt.IsZero() {
			a.AssignedAt = now
		}
		m.assignments = append(m.assignments, *a)
	}
	if u.WorkProof != nil {
		p := u.WorkProof
		_ = p.BeforeCreate(nil)
		p.ComplaintID = c.ID
		if p.UploadedAt.IsZero() {
			p.UploadedAt = now
		}
		m.proofs = append(m.proofs, copyProof(*p))
	}
	if u.Event != nil {
		u.Event.ComplaintID = c.ID
		m.appendEvent(u.Event, now)
	}
	return nil
}

// DeleteComplaint removes a complaint and its evidence trail.
func (m *MemoryStore) DeleteComplaint(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.complaints[id]; !ok {
		return ErrNotFound
	}
	delete(m.complaints, id)
	m.assignments = slices.DeleteFunc(m.assignments, func(a models.Assignment) bool { return a.ComplaintID == id })
	m.proofs = slices.DeleteFunc(m.proofs, func(p models.WorkProof) bool { return p.ComplaintID == id })
	m.events = slices.DeleteFunc(m.events, func(e models.ComplaintEvent) bool { return e.ComplaintID == id })
	return nil
}

// ActiveAssignment returns the complaint's active assignment, or nil when there is none.
func (m *MemoryStore) ActiveAssignment(_ context.Context, complaintID string) (*models.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.assignments {
		if a.ComplaintID == complaintID && a.Active {
			return &a, nil
		}
	}
	return nil, nil
}

// ListAssignments returns every assignment of a complaint, oldest first.
func (m *MemoryStore) ListAssignments(_ context.Context, complaintID string) ([]models.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Assignment
	for _, a := range m.assignments {
		if a.ComplaintID == complaintID {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListWorkProofs returns a complaint's work proofs, newest first.
func (m *MemoryStore) ListWorkProofs(_ context.Context, complaintID string) ([]models.WorkProof, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.WorkProof
	for i := len(m.proofs) - 1; i >= 0; i-- {
		if m.proofs[i].ComplaintID == complaintID {
			out = append(out, copyProof(m.proofs[i]))
		}
	}
	return out, nil
}

// ListEvents returns a complaint's audit trail, oldest first.
func (m *MemoryStore) ListEvents(_ context.Context, complaintID string) ([]models.ComplaintEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.ComplaintEvent
	for _, e := range m.events {
		if e.ComplaintID == complaintID {
			out = append(out, e)
		}
	}
	return out, nil
}

// CountComplaintsByStatus groups complaints by status.
func (m *MemoryStore) CountComplaintsByStatus(_ context.Context) (map[models.Status]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[models.Status]int64)
	for _, c := range m.complaints {
		out[c.Status]++
	}
	return out, nil
}

// CountComplaintsByCategory groups complaints by category.
func (m *MemoryStore) CountComplaintsByCategory(_ context.Context) (map[models.Category]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[models.Category]int64)
	for _, c := range m.complaints {
		out[c.Category]++
	}
	return out, nil
}

// CountUsersByRole groups users by role.
func (m *MemoryStore) CountUsersByRole(_ context.Context) (map[models.Role]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[models.Role]int64)
	for _, u := range m.users {
		out[u.Role]++
	}
	return out, nil
}

// RevokeToken marks a token id revoked until the given time.
func (m *MemoryStore) RevokeToken(_ context.Context, tokenID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[tokenID] = until
	return nil
}

// IsTokenRevoked reports whether the token id is revoked and not yet expired.
func (m *MemoryStore) IsTokenRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	until, ok := m.revoked[tokenID]
	return ok && m.now().Before(until), nil
}

func window[T any](items []T, offset, limit int) []T {
	if offset < 0 || offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}
