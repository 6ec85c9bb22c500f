package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"civicdesk/backend/internal/analysis"
	"civicdesk/backend/internal/api/handler"
	"civicdesk/backend/internal/auth"
	"civicdesk/backend/internal/categorizer"
	"civicdesk/backend/internal/config"
	"civicdesk/backend/internal/lifecycle"
	"civicdesk/backend/internal/models"
	"civicdesk/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

type server struct {
	t      *testing.T
	router *gin.Engine
	store  *storage.MemoryStore
	tokens *auth.TokenService
	users  map[string]*models.User
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewMemoryStore()
	cat := categorizer.NewService()
	tokens := auth.NewTokenService(config.Auth{Secret: "handler-secret", Issuer: "civicdesk-test", TokenTTL: time.Hour})
	h := handler.NewHandler(handler.Deps{
		Manager:     lifecycle.NewManager(store, cat),
		Store:       store,
		Categorizer: cat,
		Stats:       analysis.NewService(store, nil, nil),
		Tokens:      tokens,
		Revoker:     store,
		DevTokens:   true,
	})

	s := &server{t: t, router: h.Router(), store: store, tokens: tokens, users: map[string]*models.User{}}
	for key, role := range map[string]models.Role{
		"citizen": models.RoleCitizen,
		"other":   models.RoleCitizen,
		"officer": models.RoleOfficer,
		"admin":   models.RoleAdmin,
		"worker":  models.RoleWorker,
	} {
		u := &models.User{PhoneNumber: "+380" + key, Name: key, Role: role, IsActive: true}
		require.NoError(t, store.CreateUser(context.Background(), u))
		s.users[key] = u
	}
	return s
}

func (s *server) token(key string) string {
	raw, _, err := s.tokens.Issue(s.users[key])
	require.NoError(s.t, err)
	return raw
}

func (s *server) do(method, path, token string, body interface{}) (int, response) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var out response
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func decode[T any](t *testing.T, r response) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.Data, &v))
	return v
}

func (s *server) file(token, description string) models.Complaint {
	code, res := s.do(http.MethodPost, "/api/complaints", token, gin.H{
		"title":       "Report",
		"description": description,
	})
	require.Equal(s.t, http.StatusCreated, code, res.Message)
	return decode[models.Complaint](s.t, res)
}

func TestComplaintLifecycleOverHTTP(t *testing.T) {
	s := newServer(t)
	citizen, officer, worker := s.token("citizen"), s.token("officer"), s.token("worker")

	c := s.file(citizen, "Huge pothole near the school gate")
	assert.Equal(t, models.CategoryRoad, c.Category)
	assert.True(t, c.IsAICategorized)
	assert.Equal(t, models.StatusPending, c.Status)
	assert.Equal(t, models.PriorityMedium, c.Priority)
	base := "/api/complaints/" + c.ID

	code, res := s.do(http.MethodPost, base+"/assign", officer, gin.H{"workerId": s.users["worker"].ID})
	require.Equal(t, http.StatusOK, code, res.Message)
	assert.Equal(t, models.StatusAssigned, decode[models.Complaint](t, res).Status)

	code, res = s.do(http.MethodGet, base, worker, nil)
	require.Equal(t, http.StatusOK, code)
	detail := decode[lifecycle.Detail](t, res)
	assert.Equal(t, []models.Action{models.ActionStart}, detail.AllowedActions)
	require.NotNil(t, detail.ActiveAssignment)
	assert.Equal(t, s.users["worker"].ID, detail.ActiveAssignment.WorkerID)

	code, _ = s.do(http.MethodPost, base+"/start", worker, nil)
	require.Equal(t, http.StatusOK, code)

	code, res = s.do(http.MethodPost, base+"/proofs", worker, gin.H{
		"afterMedia": []string{"https://media.example.org/after.jpg"},
		"notes":      "filled",
	})
	require.Equal(t, http.StatusCreated, code, res.Message)

	code, res = s.do(http.MethodPost, base+"/resolve", officer, nil)
	require.Equal(t, http.StatusOK, code, res.Message)
	resolved := decode[models.Complaint](t, res)
	assert.Equal(t, models.StatusResolved, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)

	code, res = s.do(http.MethodGet, base+"/events", citizen, nil)
	require.Equal(t, http.StatusOK, code)
	trail := decode[[]models.ComplaintEvent](t, res)
	var actions []models.Action
	for _, ev := range trail {
		actions = append(actions, ev.Action)
	}
	assert.Equal(t, []models.Action{
		models.ActionCreate, models.ActionAssign, models.ActionStart, models.ActionSubmitProof, models.ActionResolve,
	}, actions)

	code, res = s.do(http.MethodGet, base+"/proofs", officer, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]models.WorkProof](t, res), 1)
}

func TestErrorMapping(t *testing.T) {
	s := newServer(t)
	citizen, officer := s.token("citizen"), s.token("officer")
	c := s.file(citizen, "Water leak in the basement")
	base := "/api/complaints/" + c.ID

	t.Run("no token", func(t *testing.T) {
		code, res := s.do(http.MethodGet, base, "", nil)
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.False(t, res.Success)
	})
	t.Run("citizen cannot assign", func(t *testing.T) {
		code, res := s.do(http.MethodPost, base+"/assign", citizen, gin.H{"workerId": s.users["worker"].ID})
		assert.Equal(t, http.StatusForbidden, code)
		assert.Equal(t, "forbidden", res.Error)
	})
	t.Run("other citizen cannot read", func(t *testing.T) {
		code, _ := s.do(http.MethodGet, base, s.token("other"), nil)
		assert.Equal(t, http.StatusForbidden, code)
	})
	t.Run("resolve from pending", func(t *testing.T) {
		code, res := s.do(http.MethodPost, base+"/resolve", officer, nil)
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, "invalid_transition", res.Error)
	})
	t.Run("unknown complaint", func(t *testing.T) {
		code, res := s.do(http.MethodGet, "/api/complaints/missing", officer, nil)
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, "not_found", res.Error)
	})
	t.Run("assign a citizen", func(t *testing.T) {
		code, res := s.do(http.MethodPost, base+"/assign", officer, gin.H{"workerId": s.users["other"].ID})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "invalid_worker", res.Error)
	})
	t.Run("bad media", func(t *testing.T) {
		code, res := s.do(http.MethodPost, "/api/complaints", citizen, gin.H{
			"title": "x", "description": "y", "mediaUrls": []string{"file:///etc/passwd"},
		})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "validation", res.Error)
	})
	t.Run("unknown status filter", func(t *testing.T) {
		code, _ := s.do(http.MethodGet, "/api/complaints?status=LOST", officer, nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})
	t.Run("unknown route", func(t *testing.T) {
		code, _ := s.do(http.MethodGet, "/nope", "", nil)
		assert.Equal(t, http.StatusNotFound, code)
	})
}

func TestListComplaintsScopedByRole(t *testing.T) {
	s := newServer(t)
	s.file(s.token("citizen"), "Garbage not collected")
	s.file(s.token("citizen"), "Street light broken")
	s.file(s.token("other"), "Drain blocked")

	code, res := s.do(http.MethodGet, "/api/complaints", s.token("citizen"), nil)
	require.Equal(t, http.StatusOK, code)
	var page struct {
		Items []models.Complaint `json:"items"`
		Total int64              `json:"total"`
		Page  int                `json:"page"`
		Limit int                `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &page))
	assert.EqualValues(t, 2, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, config.DefaultPageSize, page.Limit)

	code, res = s.do(http.MethodGet, "/api/complaints?page=9223372036854775807&limit=10", s.token("officer"), nil)
	require.Equal(t, http.StatusOK, code, res.Message)
	require.NoError(t, json.Unmarshal(res.Data, &page))
	assert.Empty(t, page.Items)
	assert.EqualValues(t, 3, page.Total)

	code, res = s.do(http.MethodGet, "/api/complaints?limit=1&page=2", s.token("officer"), nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(res.Data, &page))
	assert.EqualValues(t, 3, page.Total)
	assert.Len(t, page.Items, 1)
}

func TestPredictCategory(t *testing.T) {
	s := newServer(t)
	token := s.token("citizen")

	code, res := s.do(http.MethodPost, "/api/ml/predict-category", token, gin.H{"description": "road"})
	assert.Equal(t, http.StatusBadRequest, code, "shorter than the minimum")
	assert.Equal(t, "validation", res.Error)

	code, res = s.do(http.MethodPost, "/api/ml/predict-category", token, gin.H{"description": "No power since morning"})
	require.Equal(t, http.StatusOK, code)
	p := decode[categorizer.Prediction](t, res)
	assert.Equal(t, models.CategoryElectricity, p.Category)
	assert.Equal(t, categorizer.SourceKeyword, p.Source)

	code, res = s.do(http.MethodGet, "/api/ml/predict-category", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, categorizer.SourceKeyword, decode[categorizer.Info](t, res).Source)
}

func TestUsersAdmin(t *testing.T) {
	s := newServer(t)
	admin := s.token("admin")

	code, _ := s.do(http.MethodGet, "/api/users", s.token("officer"), nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, res := s.do(http.MethodPost, "/api/users", admin, gin.H{"phoneNumber": "+380501112233", "name": "New", "role": "worker"})
	require.Equal(t, http.StatusCreated, code, res.Message)
	created := decode[models.User](t, res)
	assert.Equal(t, models.RoleWorker, created.Role)
	assert.True(t, created.IsActive)

	code, res = s.do(http.MethodPost, "/api/users", admin, gin.H{"phoneNumber": "+380501112233", "role": "CITIZEN"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "duplicate", res.Error)

	code, _ = s.do(http.MethodPost, "/api/users", admin, gin.H{"phoneNumber": "+380501112299", "role": "MAYOR"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, res = s.do(http.MethodPatch, "/api/users/"+created.ID, admin, gin.H{"role": "OFFICER", "isActive": false})
	require.Equal(t, http.StatusOK, code)
	updated := decode[models.User](t, res)
	assert.Equal(t, models.RoleOfficer, updated.Role)
	assert.False(t, updated.IsActive)

	code, res = s.do(http.MethodGet, "/api/users?role=CITIZEN", admin, nil)
	require.Equal(t, http.StatusOK, code)
	var page struct {
		Total int64 `json:"total"`
		Limit int   `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &page))
	assert.EqualValues(t, 2, page.Total)
	assert.Equal(t, config.DefaultUserPageSize, page.Limit)
}

func TestDevTokenMeAndLogout(t *testing.T) {
	s := newServer(t)

	code, res := s.do(http.MethodPost, "/api/auth/dev-token", "", gin.H{"userId": s.users["officer"].ID})
	require.Equal(t, http.StatusOK, code, res.Message)
	var issued struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &issued))
	require.NotEmpty(t, issued.Token)

	code, res = s.do(http.MethodGet, "/api/auth/me", issued.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, s.users["officer"].ID, decode[models.User](t, res).ID)

	code, _ = s.do(http.MethodPost, "/api/auth/logout", issued.Token, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(http.MethodGet, "/api/auth/me", issued.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(http.MethodPost, "/api/auth/dev-token", "", gin.H{"userId": "ghost"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDashboardStats(t *testing.T) {
	s := newServer(t)
	c := s.file(s.token("citizen"), "Garbage piling up")
	code, _ := s.do(http.MethodPost, "/api/complaints/"+c.ID+"/reject", s.token("officer"), gin.H{"reason": "duplicate report"})
	require.Equal(t, http.StatusOK, code)
	s.file(s.token("other"), "Sewer overflow")

	code, _ = s.do(http.MethodGet, "/api/dashboard/stats", s.token("citizen"), nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, res := s.do(http.MethodGet, "/api/dashboard/stats", s.token("admin"), nil)
	require.Equal(t, http.StatusOK, code)
	stats := decode[analysis.Stats](t, res)
	assert.EqualValues(t, 2, stats.TotalComplaints)
	assert.EqualValues(t, 1, stats.ByStatus[models.StatusRejected])
	assert.EqualValues(t, 1, stats.ByStatus[models.StatusPending])
	assert.EqualValues(t, 2, stats.UsersByRole[models.RoleCitizen])
	assert.Len(t, stats.RecentComplaints, 2)
}

func TestDeleteComplaintAdminOnly(t *testing.T) {
	s := newServer(t)
	c := s.file(s.token("citizen"), "Broken lamp post")
	path := "/api/complaints/" + c.ID

	code, _ := s.do(http.MethodDelete, path, s.token("officer"), nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(http.MethodDelete, path, s.token("admin"), nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(http.MethodGet, path, s.token("admin"), nil)
	assert.Equal(t, http.StatusNotFound, code)
}
