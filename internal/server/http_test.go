package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/certprep/internal/auth/jwt"
	"github.com/gokatarajesh/certprep/internal/db/repository"
	"github.com/gokatarajesh/certprep/internal/docstore"
	"github.com/gokatarajesh/certprep/internal/metrics"
	"github.com/gokatarajesh/certprep/internal/question"
	"github.com/gokatarajesh/certprep/internal/report"
	"github.com/gokatarajesh/certprep/internal/session"
	"github.com/gokatarajesh/certprep/pkg/http/ws"
)

type apiFixture struct {
	server   *httptest.Server
	tokens   *jwt.Manager
	moduleID string
	tracker  *report.Tracker
	sessions *session.Service
	registry *prometheus.Registry
}

func newAPIFixture(t *testing.T, limiter *UserLimiter) *apiFixture {
	t.Helper()
	logger := zerolog.Nop()
	ctx := context.Background()

	mem := docstore.NewMemory()
	questions := repository.NewQuestionRepository(mem, 5)
	results := repository.NewResultRepository(mem)

	moduleID, err := questions.AddModule(ctx, question.Module{Title: "Cloud Security", CertificationID: "sec-plus"})
	require.NoError(t, err)
	diffs := []question.Difficulty{question.DifficultyEasy, question.DifficultyMedium, question.DifficultyHard}
	for i := 0; i < 30; i++ {
		_, err := questions.AddQuestion(ctx, question.Question{
			Text:       fmt.Sprintf("Question %d", i),
			ModuleID:   moduleID,
			Difficulty: diffs[i%3],
			CreatedAt:  time.Unix(int64(i), 0).UTC(),
			Options: []question.Option{
				{Text: "right", IsCorrect: true},
				{Text: "wrong"},
			},
		})
		require.NoError(t, err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	tokens := jwt.NewManager(jwt.TokenConfig{AccessSecret: []byte("test-secret")})
	hub := ws.NewHub(logger)

	pools := question.NewService(questions, nil, logger)
	selector := question.NewSelector(rand.NewPCG(3, 4), question.DefaultComposition)
	sessions := session.NewService(pools, selector, report.NewGenerator(results), hub, session.Options{
		TickInterval: time.Hour,
		Metrics:      m,
	}, logger)
	viewer := report.NewViewer(results, report.ViewerOptions{Metrics: m}, logger)
	tracker := report.NewTracker(viewer, time.Minute, time.Minute, logger)

	router := NewRouter(Deps{
		Logger:    logger,
		Validator: tokens,
		Metrics:   m,
		Gatherer:  registry,
		Limiter:   limiter,
		Pingers: map[string]Pinger{
			"store": func(context.Context) error { return nil },
		},
		Sessions:  session.NewHTTPHandlers(sessions, logger),
		SessionWS: session.NewWSHandler(sessions, hub, tokens, logger),
		Reports:   report.NewHTTPHandlers(viewer, tracker, 10, logger),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		_ = sessions.Shutdown(context.Background())
	})
	return &apiFixture{server: srv, tokens: tokens, moduleID: moduleID, tracker: tracker, sessions: sessions, registry: registry}
}

func (f *apiFixture) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := f.tokens.GenerateAccessToken(jwt.User{ID: userID, DisplayName: userID})
	require.NoError(t, err)
	return tok
}

func (f *apiFixture) do(t *testing.T, userID, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+f.token(t, userID))
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthAndPing(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp := f.do(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, "", http.MethodGet, "/v1/ping", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPingReportsFailingDependency(t *testing.T) {
	router := NewRouter(Deps{
		Logger: zerolog.Nop(),
		Pingers: map[string]Pinger{
			"redis": func(context.Context) error { return fmt.Errorf("connection refused") },
		},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAPIRequiresAuthentication(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp := f.do(t, "", http.MethodGet, "/v1/results", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFullTestFlowAndOneTimeReport(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp := f.do(t, "alice", http.MethodPost, "/v1/modules/"+f.moduleID+"/tests", map[string]int{"length": 10})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	view := decode[session.View](t, resp)
	require.Len(t, view.Questions, 10)
	assert.Equal(t, session.StateActive, view.State)
	assert.Equal(t, 600, view.BudgetSeconds)

	// answer every other question with whatever option reads "right"
	for i, q := range view.Questions {
		if i%2 == 1 {
			continue
		}
		idx := 0
		for j, text := range q.Options {
			if text == "right" {
				idx = j
			}
		}
		resp = f.do(t, "alice", http.MethodPut, "/v1/sessions/"+view.ID+"/answers/"+q.ID, map[string]int{"option_index": idx})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp = f.do(t, "alice", http.MethodPost, "/v1/sessions/"+view.ID+"/next", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decode[map[string]int](t, resp)["currentIndex"])

	resp = f.do(t, "alice", http.MethodPost, "/v1/sessions/"+view.ID+"/submit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	completion := decode[session.Completion](t, resp)
	assert.Equal(t, 5, completion.Summary.Correct)
	assert.Equal(t, 5, completion.Summary.Skipped)
	assert.Equal(t, 50, completion.Summary.Score)
	require.NotEmpty(t, completion.ResultID)

	resp = f.do(t, "alice", http.MethodPut, "/v1/sessions/"+view.ID+"/answers/"+view.Questions[1].ID, map[string]int{"option_index": 0})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "finished sessions no longer accept answers")

	resp = f.do(t, "alice", http.MethodGet, "/v1/results", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[historyBody](t, resp)
	require.Len(t, history.Items, 1)
	assert.Equal(t, completion.ResultID, history.Items[0].ID)
	assert.False(t, history.Items[0].HasBeenViewed)

	resp = f.do(t, "bob", http.MethodGet, "/v1/results/"+completion.ResultID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, "alice", http.MethodGet, "/v1/results/"+completion.ResultID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	opened := decode[openBody](t, resp)
	assert.Equal(t, report.StatusAvailable, opened.Status)
	require.NotNil(t, opened.Result)
	assert.Len(t, opened.Result.QuestionReports, 10)
	assert.Equal(t, 1, f.tracker.Open())

	resp = f.do(t, "alice", http.MethodGet, "/v1/results/"+completion.ResultID, nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	resp = f.do(t, "alice", http.MethodPost, "/v1/results/"+completion.ResultID+"/export", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, "alice", http.MethodDelete, "/v1/results/"+completion.ResultID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Zero(t, f.tracker.Open())

	resp = f.do(t, "alice", http.MethodGet, "/v1/results/"+completion.ResultID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, "alice", http.MethodGet, "/v1/results", nil)
	assert.Empty(t, decode[historyBody](t, resp).Items)
}

type historyBody struct {
	Items      []report.Summary `json:"items"`
	NextCursor string           `json:"nextCursor"`
}

type openBody struct {
	Status report.Status      `json:"status"`
	Result *report.TestResult `json:"result"`
}

func TestStartErrors(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp := f.do(t, "alice", http.MethodPost, "/v1/modules/"+f.moduleID+"/tests", map[string]int{"length": 7})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, "alice", http.MethodPost, "/v1/modules/missing/tests", map[string]int{"length": 10})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, "alice", http.MethodGet, "/v1/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartDuringShutdownIsUnavailable(t *testing.T) {
	f := newAPIFixture(t, nil)
	require.NoError(t, f.sessions.Shutdown(context.Background()))

	resp := f.do(t, "alice", http.MethodPost, "/v1/modules/"+f.moduleID+"/tests", map[string]int{"length": 10})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "service_unavailable", body["error"])
}

func TestUnknownRouteReturnsJSONNotFound(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp := f.do(t, "", http.MethodGet, "/v2/nothing-here", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "not_found", body["error"])
}

func TestHistoryRejectsBadParameters(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp := f.do(t, "alice", http.MethodGet, "/v1/results?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, "alice", http.MethodGet, "/v1/results?cursor=garbage", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartIsRateLimitedPerUser(t *testing.T) {
	f := newAPIFixture(t, NewUserLimiter(1, 1))
	path := "/v1/modules/" + f.moduleID + "/tests"

	resp := f.do(t, "alice", http.MethodPost, path, map[string]int{"length": 10})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(t, "alice", http.MethodPost, path, map[string]int{"length": 10})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "rate_limited", body["error"])
	assert.Equal(t, map[string]any{"retryAfterSeconds": float64(60)}, body["details"])

	resp = f.do(t, "bob", http.MethodPost, path, map[string]int{"length": 10})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestMetricsEndpointExposesCollectors(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.do(t, "", http.MethodGet, "/healthz", nil)

	resp := f.do(t, "", http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(buf.String(), "http_requests_total"))
}

func TestUserLimiterRefills(t *testing.T) {
	l := NewUserLimiter(60, 1)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("u"))
	assert.False(t, l.Allow("u"))
	now = now.Add(time.Second)
	assert.True(t, l.Allow("u"))
}
