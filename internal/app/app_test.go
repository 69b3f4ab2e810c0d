package app

import (
	"bytes"
	"context"
	"edutest_backend/internal/config"
	"edutest_backend/internal/service"
	"edutest_backend/pkg/database"
	"edutest_backend/pkg/logger"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := service.HashPassword("teacher-pass")
	require.NoError(t, err)
	return &config.Config{
		Server:    config.ServerConfig{Port: "0", Mode: gin.TestMode},
		Store:     config.StoreConfig{Driver: "memory"},
		JWT:       config.JWTConfig{Secret: "app-test-secret", ExpireTime: time.Hour},
		AI:        config.AIConfig{TimeoutSeconds: 1},
		Session:   config.SessionConfig{TickInterval: time.Hour},
		Export:    config.ExportConfig{Type: "local", LocalPath: t.TempDir()},
		RateLimit: config.RateLimitConfig{MaxRequests: 10000, WindowMinutes: 1},
		Auth: config.AuthConfig{
			TeacherPasswordHash: hash,
			DefaultTeacherName:  "Teacher",
			DefaultStudentName:  "Student",
			StudentClassCode:    "CLASS6A",
		},
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	logger.InitNop()
	gin.SetMode(gin.TestMode)
	a, err := newApp(testConfig(t), database.NewMemoryBackend())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func call(t *testing.T, a *App, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func login(t *testing.T, a *App, body map[string]string) string {
	t.Helper()
	code, env := call(t, a, http.MethodPost, "/api/login", "", body)
	require.Equal(t, http.StatusOK, code, env.Message)
	var res service.LoginResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	return res.Token
}

func TestHealth(t *testing.T) {
	a := newTestApp(t)
	code, env := call(t, a, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"driver":"memory"`)
}

func TestLoginFailures(t *testing.T) {
	a := newTestApp(t)

	code, _ := call(t, a, http.MethodPost, "/api/login", "", map[string]string{"role": "teacher", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = call(t, a, http.MethodPost, "/api/login", "", map[string]string{"role": "admin"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, a, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestTakeTestEndToEnd(t *testing.T) {
	a := newTestApp(t)
	studentToken := login(t, a, map[string]string{"role": "student", "name": "Nguyễn An"})
	teacherToken := login(t, a, map[string]string{"role": "teacher", "password": "teacher-pass"})

	// The seed test is listed without answers.
	code, env := call(t, a, http.MethodGet, "/api/tests", studentToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "mock-test-1")
	assert.NotContains(t, string(env.Data), "correctAnswer")

	code, _ = call(t, a, http.MethodGet, "/api/teacher/dashboard", studentToken, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = call(t, a, http.MethodPost, "/api/sessions", teacherToken, map[string]string{"testId": "mock-test-1"})
	assert.Equal(t, http.StatusForbidden, code)

	code, env = call(t, a, http.MethodPost, "/api/sessions", studentToken, map[string]string{"testId": "mock-test-1"})
	require.Equal(t, http.StatusOK, code, env.Message)
	var status service.SessionStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, 900, status.RemainingSeconds)

	code, _ = call(t, a, http.MethodPut, "/api/sessions/answers", studentToken, map[string]string{"questionId": "sample-1", "option": "A"})
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, a, http.MethodPut, "/api/sessions/answers", studentToken, map[string]string{"questionId": "sample-2", "option": "C"})
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, a, http.MethodPut, "/api/sessions/answers", studentToken, map[string]string{"questionId": "sample-2", "option": "Z"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = call(t, a, http.MethodPost, "/api/sessions/submit", studentToken, nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	var result service.SubmissionResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 5.0, result.Submission.Score)
	assert.Equal(t, 1, result.Correct)
	assert.Equal(t, "Nguyễn An", result.Submission.StudentName)

	code, _ = call(t, a, http.MethodPost, "/api/sessions/submit", studentToken, nil)
	assert.Equal(t, http.StatusConflict, code)

	// Feedback fails without a collaborator; the submission is unaffected.
	a.services.feedback.Wait()

	code, env = call(t, a, http.MethodGet, "/api/teacher/dashboard", teacherToken, nil)
	require.Equal(t, http.StatusOK, code)
	var dash service.Dashboard
	require.NoError(t, json.Unmarshal(env.Data, &dash))
	assert.Equal(t, 1, dash.Summary.Count)
	assert.Equal(t, 5.0, dash.Summary.MeanScore)
	assert.Equal(t, 1.0, dash.Summary.PassRate)
	assert.Equal(t, 2, dash.Competency.Total())

	// Removing the test orphans the submission.
	code, _ = call(t, a, http.MethodDelete, "/api/teacher/tests/mock-test-1", teacherToken, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = call(t, a, http.MethodGet, "/api/submissions/"+result.Submission.ID, studentToken, nil)
	require.Equal(t, http.StatusOK, code)
	var orphan service.SubmissionResult
	require.NoError(t, json.Unmarshal(env.Data, &orphan))
	assert.True(t, orphan.Orphaned)
	assert.Equal(t, "Deleted test", orphan.TestTitle)
	assert.Empty(t, orphan.Submission.AIFeedback)

	otherStudent := login(t, a, map[string]string{"role": "student", "name": "Bình"})
	code, _ = call(t, a, http.MethodGet, "/api/submissions/"+result.Submission.ID, otherStudent, nil)
	assert.Equal(t, http.StatusForbidden, code)

	req := httptest.NewRequest(http.MethodGet, "/api/teacher/exports/submissions.csv", nil)
	req.Header.Set("Authorization", "Bearer "+teacherToken)
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Ket_qua_hoc_sinh.csv")
	assert.Contains(t, w.Body.String(), "Nguyễn An,N/A,5,")
}

func TestNewLoginAbandonsRunningAttempt(t *testing.T) {
	logger.InitNop()
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)
	cfg.Session.TickInterval = time.Millisecond
	a, err := newApp(cfg, database.NewMemoryBackend())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	first := login(t, a, map[string]string{"role": "student", "name": "An"})
	code, env := call(t, a, http.MethodPost, "/api/sessions", first, map[string]string{"testId": "mock-test-1"})
	require.Equal(t, http.StatusOK, code, env.Message)

	second := login(t, a, map[string]string{"role": "student", "name": "An"})
	code, _ = call(t, a, http.MethodGet, "/api/sessions/current", first, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = call(t, a, http.MethodGet, "/api/sessions/current", second, nil)
	assert.Equal(t, http.StatusNotFound, code)

	// Well past the 15 minute seed test at one millisecond per second.
	assert.Never(t, func() bool {
		return len(a.repos.submissions.List()) > 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestCreateTest(t *testing.T) {
	a := newTestApp(t)
	teacherToken := login(t, a, map[string]string{"role": "teacher", "password": "teacher-pass"})

	body := map[string]interface{}{
		"title": "Unit 2",
		"grade": 6,
		"questions": []map[string]interface{}{{
			"type":          "Từ vựng",
			"difficulty":    "Vận dụng",
			"content":       "We live ___ a flat.",
			"options":       map[string]string{"A": "in", "B": "on", "C": "at", "D": "of"},
			"correctAnswer": "A",
		}},
	}
	code, env := call(t, a, http.MethodPost, "/api/teacher/tests", teacherToken, body)
	require.Equal(t, http.StatusCreated, code, env.Message)

	code, env = call(t, a, http.MethodGet, "/api/teacher/tests", teacherToken, nil)
	require.Equal(t, http.StatusOK, code)
	var tests []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tests))
	require.Len(t, tests, 2)
	assert.Equal(t, "Unit 2", tests[0].Title)

	code, _ = call(t, a, http.MethodPost, "/api/teacher/tests", teacherToken, map[string]interface{}{"title": "Empty", "grade": 6})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTwoInstancesShareStore(t *testing.T) {
	backend := database.NewMemoryBackend()
	gin.SetMode(gin.TestMode)
	first, err := newApp(testConfig(t), backend)
	require.NoError(t, err)
	defer first.Close()
	second, err := newApp(testConfig(t), backend)
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, first.repos.tests.Remove(context.Background(), "mock-test-1"))
	assert.Eventually(t, func() bool {
		return len(second.repos.tests.List()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
