// Package lifecycle enforces who may move a complaint between states and
// writes every move, with its assignment, proof and audit entry, atomically.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"civicdesk/backend/internal/categorizer"
	"civicdesk/backend/internal/models"
	"civicdesk/backend/internal/storage"

	"go.uber.org/zap"
)

// Categorizer suggests a category for a description.
type Categorizer interface {
	Categorize(text string) (categorizer.Prediction, error)
}

// Publisher receives events after they have been committed.
type Publisher interface {
	Publish(ctx context.Context, ev models.ComplaintEvent) error
}

// Manager runs complaint operations on behalf of the resolved caller.
type Manager struct {
	store       storage.Storage
	categorizer Categorizer
	identity    IdentityResolver
	publisher   Publisher
	logger      *zap.Logger
	now         func() time.Time
}

// Option customises a Manager.
type Option func(*Manager)

// WithIdentityResolver replaces the context-based resolver.
func WithIdentityResolver(r IdentityResolver) Option {
	return func(m *Manager) { m.identity = r }
}

// WithPublisher sets where committed events go.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager builds a Manager over store. cat fills in missing categories.
func NewManager(store storage.Storage, cat Categorizer, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		categorizer: cat,
		identity:    ContextIdentity,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewComplaint is the input of CreateComplaint. An empty Category is predicted
// from the description. CitizenID lets staff file on behalf of a citizen.
type NewComplaint struct {
	Title       string
	Description string
	Category    models.Category
	Priority    models.Priority
	Location    string
	Latitude    *float64
	Longitude   *float64
	MediaURLs   []string
	CitizenID   string
}

// Assignment is the input of AssignWorker and ReassignWorker.
type Assignment struct {
	WorkerID string
	Deadline *time.Time
	Notes    string
}

// Proof is the input of SubmitProof.
type Proof struct {
	BeforeMedia []string
	AfterMedia  []string
	Notes       string
}

// MetadataPatch is the input of UpdateMetadata. Nil fields are left unchanged.
type MetadataPatch struct {
	Title       *string
	Description *string
	Category    *models.Category
	Priority    *models.Priority
}

func (m *Manager) resolve(ctx context.Context) (models.Actor, error) {
	actor, err := m.identity.Resolve(ctx)
	if err != nil {
		return models.Actor{}, err
	}
	if actor.UserID == "" || actor.Role == "" {
		return models.Actor{}, ErrUnauthenticated
	}
	return actor, nil
}

// CreateComplaint files a new PENDING complaint.
func (m *Manager) CreateComplaint(ctx context.Context, in NewComplaint) (*models.Complaint, error) {
	actor, err := m.resolve(ctx)
	if err != nil {
		return nil, err
	}
	if !actor.Is(models.RoleCitizen, models.RoleOfficer, models.RoleAdmin) {
		return nil, &ForbiddenError{Role: actor.Role, Action: models.ActionCreate}
	}

	c := &models.Complaint{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Category:    in.Category,
		Priority:    in.Priority,
		Status:      models.StatusPending,
		CitizenID:   actor.UserID,
		Location:    strings.TrimSpace(in.Location),
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		MediaURLs:   in.MediaURLs,
	}
	if in.CitizenID != "" && in.CitizenID != actor.UserID {
		if actor.Role == models.RoleCitizen {
			return nil, &ForbiddenError{Role: actor.Role, Action: models.ActionCreate, Reason: "cannot file for another citizen"}
		}
		citizen, err := m.store.GetUserByID(ctx, in.CitizenID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, invalid("citizenId", "user %q does not exist", in.CitizenID)
		}
		if err != nil {
			return nil, fmt.Errorf("load citizen: %w", err)
		}
		if citizen.Role != models.RoleCitizen {
			return nil, invalid("citizenId", "user %q is not a citizen", in.CitizenID)
		}
		c.CitizenID = citizen.ID
	}
	if c.Priority == "" {
		c.Priority = models.PriorityMedium
	}
	if err := validateComplaint(c); err != nil {
		return nil, err
	}

	if c.Category == "" {
		p, err := m.categorizer.Categorize(c.Description)
		if err != nil {
			return nil, fmt.Errorf("categorize complaint: %w", err)
		}
		c.Category = p.Category
		c.IsAICategorized = true
		c.AIConfidence = p.Confidence
	}

	ev := &models.ComplaintEvent{
		Action:    models.ActionCreate,
		ActorID:   actor.UserID,
		ActorRole: actor.Role,
		ToStatus:  models.StatusPending,
	}
	if c.IsAICategorized {
		ev.Details = fmt.Sprintf("category %s suggested with confidence %.2f", c.Category, c.AIConfidence)
	}
	if err := m.store.CreateComplaint(ctx, c, ev); err != nil {
		return nil, fmt.Errorf("create complaint: %w", err)
	}
	ev.CitizenID = c.CitizenID
	m.publish(ctx, *ev)

	m.logger.Info("complaint created",
		zap.String("complaint_id", c.ID),
		zap.String("category", string(c.Category)),
		zap.Bool("ai_categorized", c.IsAICategorized))
	return c, nil
}

func validateComplaint(c *models.Complaint) error {
	if c.Title == "" {
		return invalid("title", "must not be empty")
	}
	if c.Description == "" {
		return invalid("description", "must not be empty")
	}
	if c.Category != "" {
		category, ok := models.ParseCategory(string(c.Category))
		if !ok {
			return invalid("category", "unknown category %q", c.Category)
		}
		c.Category = category
	}
	priority, ok := models.ParsePriority(string(c.Priority))
	if !ok {
		return invalid("priority", "unknown priority %q", c.Priority)
	}
	c.Priority = priority
	if (c.Latitude == nil) != (c.Longitude == nil) {
		return invalid("location", "latitude and longitude go together")
	}
	if c.Latitude != nil && (math.Abs(*c.Latitude) > 90 || math.Abs(*c.Longitude) > 180) {
		return invalid("location", "coordinates out of range")
	}
	return validateMedia(c.MediaURLs)
}

// change is what a transition writes besides the complaint itself.
type change struct {
	assignment *models.Assignment
	proof      *models.WorkProof
	details    string
}

type prepareFunc func(actor models.Actor, c *models.Complaint, active *models.Assignment) (change, error)

// transition loads the complaint, decides the move, lets prepare fill in the
// side records and writes everything guarded by the version read here.
func (m *Manager) transition(ctx context.Context, id string, action models.Action, prepare prepareFunc) (*models.Complaint, change, error) {
	actor, err := m.resolve(ctx)
	if err != nil {
		return nil, change{}, err
	}
	c, err := m.store.GetComplaintByID(ctx, id)
	if err != nil {
		return nil, change{}, fmt.Errorf("load complaint %s: %w", id, err)
	}
	active, err := m.store.ActiveAssignment(ctx, id)
	if err != nil {
		return nil, change{}, fmt.Errorf("load assignment: %w", err)
	}
	var assignee string
	if active != nil {
		assignee = active.WorkerID
	}

	from := c.Status
	to, err := Decide(from, action, actor, assignee)
	if err != nil {
		return nil, change{}, err
	}

	var ch change
	if prepare != nil {
		if ch, err = prepare(actor, c, active); err != nil {
			return nil, change{}, err
		}
	}

	expected := c.Version
	c.Status = to
	ev := &models.ComplaintEvent{
		Action:     action,
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		FromStatus: from,
		ToStatus:   to,
		Details:    ch.details,
	}
	err = m.store.ApplyUpdate(ctx, storage.ComplaintUpdate{
		Complaint:       c,
		ExpectedVersion: expected,
		NewAssignment:   ch.assignment,
		WorkProof:       ch.proof,
		Event:           ev,
	})
	if errors.Is(err, storage.ErrVersionConflict) {
		return nil, change{}, &InvalidTransitionError{From: from, Action: action, Stale: true}
	}
	if err != nil {
		return nil, change{}, fmt.Errorf("%s complaint %s: %w", action, id, err)
	}

	ev.CitizenID = c.CitizenID
	switch {
	case ch.assignment != nil:
		ev.WorkerID = ch.assignment.WorkerID
		if active != nil {
			ev.PreviousWorkerID = active.WorkerID
		}
	case active != nil:
		ev.WorkerID = active.WorkerID
	}
	m.publish(ctx, *ev)

	m.logger.Info("complaint transition",
		zap.String("complaint_id", c.ID),
		zap.String("action", string(action)),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor_id", actor.UserID))
	return c, ch, nil
}

func (m *Manager) publish(ctx context.Context, ev models.ComplaintEvent) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, ev); err != nil {
		m.logger.Warn("event publish failed",
			zap.String("complaint_id", ev.ComplaintID),
			zap.String("action", string(ev.Action)),
			zap.Error(err))
	}
}

// AssignWorker assigns a PENDING complaint to a worker.
func (m *Manager) AssignWorker(ctx context.Context, complaintID string, in Assignment) (*models.Complaint, error) {
	c, _, err := m.transition(ctx, complaintID, models.ActionAssign, m.prepareAssignment(ctx, in))
	return c, err
}

// ReassignWorker moves an ASSIGNED complaint to another worker, superseding
// the current assignment.
func (m *Manager) ReassignWorker(ctx context.Context, complaintID string, in Assignment) (*models.Complaint, error) {
	c, _, err := m.transition(ctx, complaintID, models.ActionReassign, m.prepareAssignment(ctx, in))
	return c, err
}

func (m *Manager) prepareAssignment(ctx context.Context, in Assignment) prepareFunc {
	return func(actor models.Actor, c *models.Complaint, active *models.Assignment) (change, error) {
		workerID := strings.TrimSpace(in.WorkerID)
		if workerID == "" {
			return change{}, invalid("workerId", "must not be empty")
		}
		if in.Deadline != nil && !in.Deadline.After(m.now()) {
			return change{}, invalid("deadline", "must be in the future")
		}
		if err := m.checkWorker(ctx, workerID); err != nil {
			return change{}, err
		}
		if active != nil && active.WorkerID == workerID {
			return change{}, &InvalidWorkerError{WorkerID: workerID, Reason: "already assigned to this complaint"}
		}

		details := "assigned to " + workerID
		if active != nil {
			details = fmt.Sprintf("reassigned from %s to %s", active.WorkerID, workerID)
		}
		return change{
			assignment: &models.Assignment{
				WorkerID:   workerID,
				OfficerID:  actor.UserID,
				Deadline:   in.Deadline,
				Notes:      strings.TrimSpace(in.Notes),
				AssignedAt: m.now(),
			},
			details: details,
		}, nil
	}
}

func (m *Manager) checkWorker(ctx context.Context, workerID string) error {
	u, err := m.store.GetUserByID(ctx, workerID)
	if errors.Is(err, storage.ErrNotFound) {
		return &InvalidWorkerError{WorkerID: workerID, Reason: "no such user"}
	}
	if err != nil {
		return fmt.Errorf("load worker: %w", err)
	}
	if u.Role != models.RoleWorker {
		return &InvalidWorkerError{WorkerID: workerID, Reason: fmt.Sprintf("role is %s", u.Role)}
	}
	if !u.IsActive {
		return &InvalidWorkerError{WorkerID: workerID, Reason: "account is inactive"}
	}
	return nil
}

// StartWork moves an ASSIGNED complaint to IN_PROGRESS. Only the assignee may start.
func (m *Manager) StartWork(ctx context.Context, complaintID string) (*models.Complaint, error) {
	c, _, err := m.transition(ctx, complaintID, models.ActionStart, nil)
	return c, err
}

// SubmitProof records evidence for an IN_PROGRESS complaint. The status does
// not change; an officer still has to resolve it.
func (m *Manager) SubmitProof(ctx context.Context, complaintID string, in Proof) (*models.WorkProof, error) {
	_, ch, err := m.transition(ctx, complaintID, models.ActionSubmitProof,
		func(actor models.Actor, c *models.Complaint, _ *models.Assignment) (change, error) {
			if len(in.AfterMedia) == 0 {
				return change{}, invalid("afterMedia", "at least one after photo is required")
			}
			if err := validateMedia(in.BeforeMedia); err != nil {
				return change{}, err
			}
			if err := validateMedia(in.AfterMedia); err != nil {
				return change{}, err
			}
			return change{
				proof: &models.WorkProof{
					WorkerID:    actor.UserID,
					BeforeMedia: in.BeforeMedia,
					AfterMedia:  in.AfterMedia,
					Notes:       strings.TrimSpace(in.Notes),
					UploadedAt:  m.now(),
				},
				details: fmt.Sprintf("%d after, %d before", len(in.AfterMedia), len(in.BeforeMedia)),
			}, nil
		})
	if err != nil {
		return nil, err
	}
	return ch.proof, nil
}

// MarkResolved closes an ASSIGNED or IN_PROGRESS complaint.
func (m *Manager) MarkResolved(ctx context.Context, complaintID string) (*models.Complaint, error) {
	c, _, err := m.transition(ctx, complaintID, models.ActionResolve,
		func(_ models.Actor, c *models.Complaint, _ *models.Assignment) (change, error) {
			now := m.now()
			c.ResolvedAt = &now
			return change{}, nil
		})
	return c, err
}

// Reject closes a PENDING or ASSIGNED complaint with a reason.
func (m *Manager) Reject(ctx context.Context, complaintID, reason string) (*models.Complaint, error) {
	c, _, err := m.transition(ctx, complaintID, models.ActionReject,
		func(_ models.Actor, c *models.Complaint, _ *models.Assignment) (change, error) {
			reason = strings.TrimSpace(reason)
			if reason == "" {
				return change{}, invalid("reason", "must not be empty")
			}
			c.RejectionReason = reason
			return change{details: reason}, nil
		})
	return c, err
}

// UpdateMetadata edits descriptive fields of a non-terminal complaint.
func (m *Manager) UpdateMetadata(ctx context.Context, complaintID string, patch MetadataPatch) (*models.Complaint, error) {
	c, _, err := m.transition(ctx, complaintID, models.ActionUpdateMetadata,
		func(_ models.Actor, c *models.Complaint, _ *models.Assignment) (change, error) {
			var changed []string
			if patch.Title != nil && strings.TrimSpace(*patch.Title) != c.Title {
				c.Title = strings.TrimSpace(*patch.Title)
				changed = append(changed, "title")
			}
			if patch.Description != nil && strings.TrimSpace(*patch.Description) != c.Description {
				c.Description = strings.TrimSpace(*patch.Description)
				changed = append(changed, "description")
			}
			if patch.Category != nil && *patch.Category == "" {
				return change{}, invalid("category", "must not be empty")
			}
			if patch.Category != nil && *patch.Category != c.Category {
				c.Category = *patch.Category
				c.IsAICategorized = false
				c.AIConfidence = 0
				changed = append(changed, "category")
			}
			if patch.Priority != nil && *patch.Priority != c.Priority {
				c.Priority = *patch.Priority
				changed = append(changed, "priority")
			}
			if len(changed) == 0 {
				return change{}, invalid("metadata", "nothing to change")
			}
			if err := validateComplaint(c); err != nil {
				return change{}, err
			}
			return change{details: "updated " + strings.Join(changed, ", ")}, nil
		})
	return c, err
}

// canRead reports whether actor may see complaint c.
func (m *Manager) canRead(ctx context.Context, actor models.Actor, c *models.Complaint) error {
	switch actor.Role {
	case models.RoleOfficer, models.RoleAdmin:
		return nil
	case models.RoleCitizen:
		if c.CitizenID == actor.UserID {
			return nil
		}
	case models.RoleWorker:
		assignments, err := m.store.ListAssignments(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("load assignments: %w", err)
		}
		for _, a := range assignments {
			if a.WorkerID == actor.UserID {
				return nil
			}
		}
	}
	return &ForbiddenError{Role: actor.Role, Action: "view", Reason: "not your complaint"}
}

func (m *Manager) readable(ctx context.Context, id string) (models.Actor, *models.Complaint, error) {
	actor, err := m.resolve(ctx)
	if err != nil {
		return models.Actor{}, nil, err
	}
	c, err := m.store.GetComplaintByID(ctx, id)
	if err != nil {
		return models.Actor{}, nil, fmt.Errorf("load complaint %s: %w", id, err)
	}
	if err := m.canRead(ctx, actor, c); err != nil {
		return models.Actor{}, nil, err
	}
	return actor, c, nil
}

// Detail is a complaint with its active assignment and the actions the caller may take.
type Detail struct {
	Complaint        *models.Complaint  `json:"complaint"`
	ActiveAssignment *models.Assignment `json:"activeAssignment,omitempty"`
	AllowedActions   []models.Action    `json:"allowedActions"`
}

// GetComplaint returns a complaint the caller is allowed to see.
func (m *Manager) GetComplaint(ctx context.Context, id string) (*Detail, error) {
	actor, c, err := m.readable(ctx, id)
	if err != nil {
		return nil, err
	}
	active, err := m.store.ActiveAssignment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load assignment: %w", err)
	}
	var assignee string
	if active != nil {
		assignee = active.WorkerID
	}
	allowed := Allowed(c.Status, actor, assignee)
	if allowed == nil {
		allowed = []models.Action{}
	}
	return &Detail{Complaint: c, ActiveAssignment: active, AllowedActions: allowed}, nil
}

// ListComplaints returns the complaints visible to the caller. Citizens see
// their own, workers those assigned to them, staff everything.
func (m *Manager) ListComplaints(ctx context.Context, f storage.ComplaintFilter) ([]models.Complaint, int64, error) {
	actor, err := m.resolve(ctx)
	if err != nil {
		return nil, 0, err
	}
	switch actor.Role {
	case models.RoleCitizen:
		f.CitizenID = actor.UserID
		f.WorkerID = ""
	case models.RoleWorker:
		f.WorkerID = actor.UserID
		f.CitizenID = ""
	}
	return m.store.ListComplaints(ctx, f)
}

// History returns the audit trail of a complaint, oldest first.
func (m *Manager) History(ctx context.Context, id string) ([]models.ComplaintEvent, error) {
	if _, _, err := m.readable(ctx, id); err != nil {
		return nil, err
	}
	return m.store.ListEvents(ctx, id)
}

// Proofs returns the work proofs of a complaint, newest first.
func (m *Manager) Proofs(ctx context.Context, id string) ([]models.WorkProof, error) {
	if _, _, err := m.readable(ctx, id); err != nil {
		return nil, err
	}
	return m.store.ListWorkProofs(ctx, id)
}

// DeleteComplaint removes a complaint and its trail. Admins only.
func (m *Manager) DeleteComplaint(ctx context.Context, id string) error {
	actor, err := m.resolve(ctx)
	if err != nil {
		return err
	}
	if actor.Role != models.RoleAdmin {
		return &ForbiddenError{Role: actor.Role, Action: models.ActionDelete}
	}
	c, err := m.store.GetComplaintByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load complaint %s: %w", id, err)
	}
	active, err := m.store.ActiveAssignment(ctx, id)
	if err != nil {
		return fmt.Errorf("load assignment: %w", err)
	}
	if err := m.store.DeleteComplaint(ctx, id); err != nil {
		return fmt.Errorf("delete complaint %s: %w", id, err)
	}

	ev := models.ComplaintEvent{
		ComplaintID: id,
		Action:      models.ActionDelete,
		ActorID:     actor.UserID,
		ActorRole:   actor.Role,
		FromStatus:  c.Status,
		CitizenID:   c.CitizenID,
		CreatedAt:   m.now(),
	}
	if active != nil {
		ev.WorkerID = active.WorkerID
	}
	m.publish(ctx, ev)
	m.logger.Info("complaint deleted", zap.String("complaint_id", id), zap.String("actor_id", actor.UserID))
	return nil
}
