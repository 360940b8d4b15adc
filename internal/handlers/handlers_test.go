package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/robjohncolson/statrelay/internal/auth"
	"github.com/robjohncolson/statrelay/internal/cache"
	"github.com/robjohncolson/statrelay/internal/database/testutil"
	"github.com/robjohncolson/statrelay/internal/gateway"
	"github.com/robjohncolson/statrelay/internal/middleware"
	"github.com/robjohncolson/statrelay/internal/models"
)

type testEnv struct {
	router   *gin.Engine
	db       *gorm.DB
	verifier *auth.Verifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)
	responseCache := cache.NewResponseCache()
	t.Cleanup(responseCache.Close)

	verifier, err := auth.NewVerifier(auth.Config{
		Secret:   "test-secret",
		Issuer:   "statrelay",
		Audience: "quiz-app",
		TokenTTL: time.Hour,
	})
	require.NoError(t, err)

	gw, err := gateway.New(db, responseCache, nil, gateway.Config{})
	require.NoError(t, err)

	profiles := NewProfileHandler(gw, verifier)
	answers := NewAnswerHandler(gw)
	votes := NewVoteHandler(gw)
	badges := NewBadgeHandler(gw)
	classes := NewClassHandler(gw)

	router := gin.New()
	api := router.Group("/api")
	api.POST("/profiles", middleware.OptionalAuth(verifier), profiles.Create)
	api.POST("/auth/verify", middleware.RequireAuth(verifier), profiles.VerifyToken)
	api.GET("/questions/:id/answers", middleware.OptionalAuth(verifier), answers.ListByQuestion)
	api.GET("/questions/:id/consensus", middleware.OptionalAuth(verifier), answers.Consensus)
	api.POST("/questions/:id/answers", middleware.RequireAuth(verifier), answers.Submit)
	api.POST("/answers/batch", middleware.RequireAuth(verifier), answers.SubmitBatch)
	api.POST("/answers/:id/votes", middleware.RequireAuth(verifier), votes.Cast)
	api.POST("/badges", middleware.RequireAuth(verifier), badges.Award)
	api.GET("/classes/:id/roster", middleware.RequireAuth(verifier), classes.Roster)
	api.PUT("/profiles/:username/progress", middleware.RequireAuth(verifier), profiles.UpdateProgress)

	return &testEnv{router: router, db: db, verifier: verifier}
}

func (e *testEnv) token(t *testing.T, username string, role auth.Role) string {
	t.Helper()
	token, err := e.verifier.Issue(auth.IssueInput{Username: username, Role: role})
	require.NoError(t, err)
	return token
}

func (e *testEnv) request(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func TestCreateProfileReturnsToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/profiles", "", gin.H{"username": "stats_kid"})
	require.Equal(t, http.StatusCreated, rec.Code)

	envelope := decodeEnvelope(t, rec)
	require.Equal(t, true, envelope["success"])

	data := envelope["data"].(map[string]any)
	token, _ := data["token"].(string)
	require.NotEmpty(t, token)

	identity, err := env.verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "stats_kid", identity.Username)
	require.False(t, identity.IsTeacher())
}

func TestCreateProfileDuplicateIsConflict(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/profiles", "", gin.H{"username": "stats_kid"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/profiles", "", gin.H{"username": "stats_kid"})
	require.Equal(t, http.StatusConflict, rec.Code)

	envelope := decodeEnvelope(t, rec)
	require.Equal(t, false, envelope["success"])
	errInfo := envelope["error"].(map[string]any)
	require.Equal(t, "ConflictError", errInfo["kind"])
	require.NotEmpty(t, errInfo["timestamp"])
}

func TestCreateProfileBadUsernameIsValidationError(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/profiles", "", gin.H{"username": "a!"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	envelope := decodeEnvelope(t, rec)
	errInfo := envelope["error"].(map[string]any)
	require.Equal(t, "ValidationError", errInfo["kind"])
}

func TestVerifyTokenRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/auth/verify", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token := env.token(t, "stats_kid", auth.RoleStudent)
	rec = env.request(t, http.MethodPost, "/api/auth/verify", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeEnvelope(t, rec)["data"].(map[string]any)
	require.Equal(t, "stats_kid", data["username"])
	require.Equal(t, "student", data["role"])
}

func TestSubmitAnswerRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Create(&models.Profile{Username: "stats_kid"}).Error)
	token := env.token(t, "stats_kid", auth.RoleStudent)

	rec := env.request(t, http.MethodPost, "/api/questions/q-1/answers", token, gin.H{
		"value": "B", "reasoning": "median resists outliers",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/questions/q-1/answers", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	answers := decodeEnvelope(t, rec)["data"].([]any)
	require.Len(t, answers, 1)
	first := answers[0].(map[string]any)
	require.Equal(t, "B", first["value"])
}

func TestSubmitAnswerRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/questions/q-1/answers", "", gin.H{"value": "A"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSelfVoteReturnsUnprocessable(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Create(&models.Profile{Username: "stats_kid"}).Error)

	answer := &models.Answer{Username: "stats_kid", QuestionID: "q-2", Value: "A"}
	require.NoError(t, env.db.Create(answer).Error)

	token := env.token(t, "stats_kid", auth.RoleStudent)
	rec := env.request(t, http.MethodPost, "/api/answers/"+answer.ID+"/votes", token, gin.H{})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	errInfo := decodeEnvelope(t, rec)["error"].(map[string]any)
	require.Equal(t, "InvalidOperation", errInfo["kind"])
}

func TestRosterForbiddenForStudents(t *testing.T) {
	env := newTestEnv(t)

	section := &models.ClassSection{Name: "Period 1", TeacherUsername: "ms_rivera", JoinCode: "JOIN1111"}
	require.NoError(t, env.db.Create(section).Error)

	token := env.token(t, "stats_kid", auth.RoleStudent)
	rec := env.request(t, http.MethodGet, "/api/classes/"+section.ID+"/roster", token, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBatchReportsPerItemOutcomes(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Create(&models.Profile{Username: "stats_kid"}).Error)
	token := env.token(t, "stats_kid", auth.RoleStudent)

	rec := env.request(t, http.MethodPost, "/api/answers/batch", token, gin.H{
		"answers": []gin.H{
			{"question_id": "q-3", "value": "A"},
			{"question_id": "", "value": "B"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	results := decodeEnvelope(t, rec)["data"].(map[string]any)["results"].([]any)
	require.Len(t, results, 2)
	require.Nil(t, results[0].(map[string]any)["error"])
	require.NotNil(t, results[1].(map[string]any)["error"])
}

func TestUpdateProgressForeignProfileForbidden(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Create(&models.Profile{Username: "stats_kid"}).Error)

	token := env.token(t, "other_kid", auth.RoleStudent)
	rec := env.request(t, http.MethodPut, "/api/profiles/stats_kid/progress", token, gin.H{
		"lesson_id": "unit-1", "completed_questions": 3, "total_questions": 12,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}
