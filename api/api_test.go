package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"civic-governance-backend/handlers"
	"civic-governance-backend/model"
	"civic-governance-backend/models"
	"civic-governance-backend/registry"
	"civic-governance-backend/repository"
	"civic-governance-backend/service"
)

var (
	secret = []byte("api-test")
	t0     = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type apiEnv struct {
	router *gin.Engine
	roles  *registry.Registry
}

func setupAPI(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	roles := registry.New(db, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, roles.BootstrapAdmins(ctx, []string{"0xadmin"}))
	for _, c := range []string{"0xc1", "0xc2"} {
		require.NoError(t, roles.Grant(ctx, c, model.RoleCitizen, 0, "test"))
	}
	require.NoError(t, roles.Grant(ctx, "0xactor", model.RolePoliticalActor, 1, "test"))

	deps := service.Dependencies{
		Repo:       repository.NewGormLedgerRepository(db),
		Authorizer: roles,
		Clock:      fixedClock{now: t0},
		Logger:     zerolog.Nop(),
	}
	elections := service.NewElectionService(deps)
	votings, err := service.NewVotingService(deps)
	require.NoError(t, err)

	router := gin.New()
	public := router.Group("/api")
	protected := router.Group("/api", handlers.JWTAuth(secret))
	NewElectionController(elections).RegisterRoutes(public, protected)
	NewVotingController(votings).RegisterRoutes(public, protected)
	NewContentController(votings, nil).RegisterRoutes(public, protected)
	NewRoleController(roles, nil, votings).RegisterRoutes(public, protected)

	return &apiEnv{router: router, roles: roles}
}

func (e *apiEnv) do(t *testing.T, method, path, caller string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		tok, err := handlers.IssueToken(secret, caller, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestStatusOf(t *testing.T) {
	cases := map[service.ErrorCode]int{
		service.ErrorCodePermissionDenied: http.StatusForbidden,
		service.ErrorCodePhaseViolation:   http.StatusConflict,
		service.ErrorCodeCreditExhausted:  http.StatusUnprocessableEntity,
		service.ErrorCodeNotFound:         http.StatusNotFound,
		service.ErrorCodeDuplicateAction:  http.StatusConflict,
		service.ErrorCodeSelfReference:    http.StatusUnprocessableEntity,
		service.ErrorCodeInvalidInput:     http.StatusBadRequest,
		service.ErrorCodeProofRejected:    http.StatusUnprocessableEntity,
	}
	for code, status := range cases {
		assert.Equal(t, status, StatusOf(&service.Error{Code: code}), code.String())
	}
	assert.Equal(t, http.StatusInternalServerError, StatusOf(assert.AnError))
}

func TestWritesRequireToken(t *testing.T) {
	env := setupAPI(t)

	w := env.do(t, http.MethodPost, "/api/elections/pre/votes", "", model.BallotRequest{Candidate: "0xa"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/elections", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestElectionEndpoints(t *testing.T) {
	env := setupAPI(t)

	schedule := model.ScheduleElectionsRequest{
		PreElectionsStart: t0.Add(31 * 24 * time.Hour).Unix(),
		PreElectionsEnd:   t0.Add(41 * 24 * time.Hour).Unix(),
		ElectionsStart:    t0.Add(48 * 24 * time.Hour).Unix(),
		ElectionsEnd:      t0.Add(58 * 24 * time.Hour).Unix(),
	}

	w := env.do(t, http.MethodPost, "/api/elections/schedule", "0xc1", schedule)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "permission_denied", decodeError(t, w).Code)

	w = env.do(t, http.MethodPost, "/api/elections/schedule", "0xadmin", schedule)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/elections/schedule", "0xadmin", schedule)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "phase_violation", decodeError(t, w).Code)

	w = env.do(t, http.MethodPost, "/api/elections/pre/candidates", "0xadmin", model.CandidateRequest{Address: "0xcand"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/elections/pre/candidates", "0xadmin", model.CandidateRequest{Address: "0xcand"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate_action", decodeError(t, w).Code)

	w = env.do(t, http.MethodPost, "/api/elections/pre/candidates", "0xadmin", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", decodeError(t, w).Code)

	// 预选尚未开始
	w = env.do(t, http.MethodPost, "/api/elections/pre/votes", "0xc1", model.BallotRequest{Candidate: "0xcand"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, "/api/elections/pre/candidates/0xcand", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var candidate model.PreElectionCandidate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &candidate))
	assert.Equal(t, uint64(1), candidate.Score)

	w = env.do(t, http.MethodGet, "/api/elections/pre/candidates/0xnobody", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Code)

	w = env.do(t, http.MethodGet, "/api/elections", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary model.ElectionSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.PreElectionCandidates)

	w = env.do(t, http.MethodGet, "/api/elections/winners?round=x", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, http.MethodGet, "/api/elections/winners", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVotingEndpoints(t *testing.T) {
	env := setupAPI(t)

	req := model.ScheduleVotingRequest{ContentHash: "0xcontent", StartDate: t0.Add(12 * 24 * time.Hour).Unix(), Budget: 7}

	// 周期尚未锚定
	w := env.do(t, http.MethodPost, "/api/votings", "0xactor", req)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/cycles/anchor", "0xadmin", model.AnchorRequest{FirstCycleStart: t0.Unix()})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/votings", "0xc1", req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/api/votings", "0xactor", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var voting model.Voting
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &voting))
	assert.Equal(t, "0xactor", voting.Creator)
	assert.Equal(t, uint64(7), voting.Budget)
	assert.Len(t, voting.Key, 66)

	// 额度为 1
	w = env.do(t, http.MethodPost, "/api/votings", "0xactor", req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "credit_exhausted", decodeError(t, w).Code)

	w = env.do(t, http.MethodGet, "/api/votings/"+voting.Key, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodGet, "/api/votings/0xmissing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/votings?limit=5", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Votings []model.Voting `json:"votings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Votings, 1)

	w = env.do(t, http.MethodGet, "/api/cycles/0/credits", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"0xactor":1`)

	w = env.do(t, http.MethodGet, "/api/content/challenge?voting_key="+voting.Key, "0xc1", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "no answers yet")

	w = env.do(t, http.MethodGet, "/api/content/challenge?kind=bogus&voting_key="+voting.Key, "0xc1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodDelete, "/api/votings/"+voting.Key, "0xc1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = env.do(t, http.MethodDelete, "/api/votings/"+voting.Key, "0xactor", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRoleEndpoints(t *testing.T) {
	env := setupAPI(t)

	grant := model.RoleGrantRequest{Account: "0xnew", Role: model.RolePoliticalActor, Credit: 3}
	w := env.do(t, http.MethodPost, "/api/admin/roles", "0xc1", grant)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/api/admin/roles", "0xadmin", grant)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	credit, err := env.roles.PoliticalActorCredit(context.Background(), "0xnew")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), credit)

	w = env.do(t, http.MethodPost, "/api/admin/roles", "0xadmin", model.RoleGrantRequest{Account: "0xnew", Role: "KING"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/roles/0xnew", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "POLITICAL_ACTOR")

	w = env.do(t, http.MethodDelete, "/api/admin/roles/0xnew/POLITICAL_ACTOR", "0xadmin", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/admin/grants", "0xadmin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pending":0`)

	w = env.do(t, http.MethodPost, "/api/admin/grants/retry", "0xadmin", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
