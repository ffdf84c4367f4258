package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"fridge-chef/internal/core/queue"
	"fridge-chef/internal/core/recipe"
	"fridge-chef/internal/core/session"
	"fridge-chef/internal/infrastructure/cache"
	"fridge-chef/internal/infrastructure/config"
	"fridge-chef/internal/pkg/common"
	"fridge-chef/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
)

type RouterSuite struct {
	suite.Suite
	cfg      *config.Config
	sessions *session.Manager
	queue    *queue.Manager
	router   *gin.Engine
	fail     atomic.Bool
	calls    atomic.Int32
}

func (s *RouterSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.fail.Store(false)
	s.calls.Store(0)

	s.cfg = &config.Config{
		App:        config.AppConfig{Debug: true, Version: "test"},
		Server:     config.ServerConfig{RequestTimeout: 5 * time.Second, MaxBodyBytes: 1024},
		Generation: config.GenerationConfig{Timeout: time.Second, Workers: 1, QueueSize: 4},
		Session:    config.SessionConfig{TTL: time.Hour, MaxSessions: 10, InboxSize: 10},
		Metrics:    config.MetricsConfig{Enabled: true, Path: "/metrics"},
		// 與預設設定相同的去重時間窗
		DedupWindow: time.Second,
	}

	gen := recipe.GeneratorFunc(func(_ context.Context, req recipe.Request) (*recipe.Recipe, error) {
		s.calls.Add(1)
		if s.fail.Load() {
			return nil, common.NewGenerationError("Model overloaded", errors.New("503"))
		}
		return &recipe.Recipe{
			RecipeName:        "Skillet " + req.Ingredients,
			IngredientsList:   "2 eggs\n1 tomato",
			Instructions:      "Heat pan\nCook",
			ServingSuggestion: "Serve warm",
		}, nil
	})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s.sessions = session.NewManager(s.cfg, gen, session.WithObserver(m))
	s.queue = queue.NewManager(s.cfg)
	s.router = SetupRouter(Dependencies{
		Config:   s.cfg,
		Sessions: s.sessions,
		Queue:    s.queue,
		Dedup:    cache.NewMemoryStore(0),
		Metrics:  m,
		Gatherer: reg,
	})
}

func (s *RouterSuite) TearDownTest() {
	_ = s.queue.Close(context.Background())
	_ = s.sessions.Close()
}

func (s *RouterSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RouterSuite) decode(w *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), v))
}

func (s *RouterSuite) createSession() string {
	w := s.do(http.MethodPost, "/api/v1/sessions", nil)
	s.Require().Equal(http.StatusCreated, w.Code)
	var snap session.Snapshot
	s.decode(w, &snap)
	s.Require().NotEmpty(snap.ID)
	return snap.ID
}

func (s *RouterSuite) TestHealthEndpoints() {
	w := s.do(http.MethodGet, "/health", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"generator":"disabled"`)
	s.NotEmpty(w.Header().Get("X-Request-ID"))

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/ready", nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/live", nil).Code)

	s.Require().NoError(s.queue.Close(context.Background()))
	s.Equal(http.StatusServiceUnavailable, s.do(http.MethodGet, "/ready", nil).Code)
}

func (s *RouterSuite) TestSuggestions() {
	w := s.do(http.MethodGet, "/api/v1/suggestions", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"common_ingredients":["Onion","Garlic","Salt","Pepper","Olive Oil"]`)
}

func (s *RouterSuite) TestTagLifecycle() {
	id := s.createSession()
	base := "/api/v1/sessions/" + id

	w := s.do(http.MethodPost, base+"/tags", map[string]any{"text": "eggs, tomato and cheese"})
	s.Require().Equal(http.StatusOK, w.Code)
	var added struct {
		Result struct {
			Added int `json:"added"`
		} `json:"result"`
		Session session.Snapshot `json:"session"`
	}
	s.decode(w, &added)
	s.Equal(3, added.Result.Added)
	s.Equal([]string{"Eggs", "Tomato", "Cheese"}, added.Session.Tags)

	w = s.do(http.MethodPost, base+"/tags", map[string]any{"text": "green onion", "split": false})
	s.Require().Equal(http.StatusOK, w.Code)
	s.decode(w, &added)
	s.Contains(added.Session.Tags, "Green onion")

	w = s.do(http.MethodDelete, base+"/tags/TOMATO", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var snap session.Snapshot
	s.decode(w, &snap)
	s.Equal([]string{"Eggs", "Cheese", "Green onion"}, snap.Tags)

	s.Equal(http.StatusNotFound, s.do(http.MethodDelete, base+"/tags/caviar", nil).Code)

	w = s.do(http.MethodDelete, base+"/tags", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.decode(w, &snap)
	s.Empty(snap.Tags)
	s.False(snap.Full)

	w = s.do(http.MethodPost, base+"/tags", map[string]any{})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *RouterSuite) TestCapacityRejection() {
	id := s.createSession()
	base := "/api/v1/sessions/" + id

	var words []string
	for i := 0; i < 15; i++ {
		words = append(words, "item"+string(rune('a'+i)))
	}
	w := s.do(http.MethodPost, base+"/tags", map[string]any{"text": strings.Join(words, " ")})
	s.Require().Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodPost, base+"/tags", map[string]any{"text": "saffron"})
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Contains(w.Body.String(), "TOO_MANY_INGREDIENTS")

	w = s.do(http.MethodGet, base+"/notifications", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "Too many ingredients!")
}

func (s *RouterSuite) TestGenerateSync() {
	id := s.createSession()
	base := "/api/v1/sessions/" + id

	w := s.do(http.MethodPost, base+"/generate", nil)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Contains(w.Body.String(), "NO_INGREDIENTS")

	s.do(http.MethodPost, base+"/tags", map[string]any{"text": "egg tomato"})
	w = s.do(http.MethodPost, base+"/generate", nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var snap session.Snapshot
	s.decode(w, &snap)
	s.Equal("succeeded", snap.Status)
	s.Require().NotNil(snap.Recipe)
	s.Equal("Skillet Egg,Tomato", snap.Recipe.RecipeName)
	s.Equal([]string{"Heat pan", "Cook"}, snap.Recipe.Instructions)
	s.GreaterOrEqual(snap.Recipe.PrepMinutes, 10)
	s.Less(snap.Recipe.PrepMinutes, 40)

	w = s.do(http.MethodPost, base+"/save", nil)
	s.Equal(http.StatusOK, w.Code)
}

func (s *RouterSuite) TestGenerateFailure() {
	id := s.createSession()
	base := "/api/v1/sessions/" + id
	s.do(http.MethodPost, base+"/tags", map[string]any{"text": "rice"})
	s.fail.Store(true)

	w := s.do(http.MethodPost, base+"/generate", nil)
	s.Equal(http.StatusBadGateway, w.Code)

	var resp struct {
		Code    string           `json:"code"`
		Message string           `json:"message"`
		Session session.Snapshot `json:"session"`
	}
	s.decode(w, &resp)
	s.Equal("GENERATION_FAILED", resp.Code)
	s.Equal("Model overloaded", resp.Message)
	s.Equal("failed", resp.Session.Status)
	s.Equal("Model overloaded", resp.Session.Error)
	s.Nil(resp.Session.Recipe)
	s.Equal([]string{"Rice"}, resp.Session.Tags)

	w = s.do(http.MethodPost, base+"/save", nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *RouterSuite) TestGenerateAsync() {
	id := s.createSession()
	base := "/api/v1/sessions/" + id
	s.do(http.MethodPost, base+"/tags", map[string]any{"text": "potato"})

	w := s.do(http.MethodPost, base+"/shuffle?async=true", nil)
	s.Require().Equal(http.StatusAccepted, w.Code)

	s.Eventually(func() bool {
		var snap session.Snapshot
		s.decode(s.do(http.MethodGet, base, nil), &snap)
		return snap.Status == "succeeded"
	}, time.Second, 10*time.Millisecond)

	w = s.do(http.MethodGet, base+"/notifications", nil)
	s.Contains(w.Body.String(), "Shuffling Recipe")
	s.Contains(w.Body.String(), "Recipe generated!")
}

func (s *RouterSuite) TestUnknownSession() {
	w := s.do(http.MethodGet, "/api/v1/sessions/missing", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Contains(w.Body.String(), "SESSION_NOT_FOUND")

	id := s.createSession()
	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, "/api/v1/sessions/"+id, nil).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodDelete, "/api/v1/sessions/"+id, nil).Code)
}

func (s *RouterSuite) TestVoiceAndCommon() {
	id := s.createSession()
	base := "/api/v1/sessions/" + id

	s.Equal(http.StatusOK, s.do(http.MethodPost, base+"/voice", nil).Code)
	w := s.do(http.MethodPost, base+"/tags/common", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "Olive oil")

	w = s.do(http.MethodGet, base+"/notifications", nil)
	s.Contains(w.Body.String(), "Coming Soon")
}

func (s *RouterSuite) TestDuplicateTagPostIsDropped() {
	id := s.createSession()
	body := map[string]any{"text": "egg"}
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/api/v1/sessions/"+id+"/tags", body).Code)

	w := s.do(http.MethodPost, "/api/v1/sessions/"+id+"/tags", body)
	s.Equal(http.StatusTooManyRequests, w.Code)
	s.Contains(w.Body.String(), "DUPLICATE_REQUEST")
}

func (s *RouterSuite) TestRepeatedActionsAreFreshRequests() {
	// 同一 IP 的兩個使用者都能建立工作階段
	id := s.createSession()
	other := s.createSession()
	s.NotEqual(id, other)

	base := "/api/v1/sessions/" + id
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, base+"/tags", map[string]any{"text": "rice"}).Code)

	s.fail.Store(true)
	s.Equal(http.StatusBadGateway, s.do(http.MethodPost, base+"/generate", nil).Code)
	s.Equal(http.StatusBadGateway, s.do(http.MethodPost, base+"/generate", nil).Code)
	s.Equal(int32(2), s.calls.Load())

	s.fail.Store(false)
	s.Equal(http.StatusOK, s.do(http.MethodPost, base+"/generate", nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodPost, base+"/shuffle", nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodPost, base+"/shuffle", nil).Code)
	s.Equal(int32(5), s.calls.Load())

	s.Equal(http.StatusOK, s.do(http.MethodPost, base+"/save", nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodPost, base+"/save", nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodPost, base+"/voice", nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodPost, base+"/voice", nil).Code)
}

func (s *RouterSuite) TestBodyTooLarge() {
	id := s.createSession()
	w := s.do(http.MethodPost, "/api/v1/sessions/"+id+"/tags", map[string]any{"text": strings.Repeat("a", 2048)})
	s.Equal(http.StatusRequestEntityTooLarge, w.Code)
}

func (s *RouterSuite) TestMetricsEndpoint() {
	id := s.createSession()
	s.do(http.MethodPost, "/api/v1/sessions/"+id+"/tags", map[string]any{"text": "egg"})

	w := s.do(http.MethodGet, "/metrics", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "fridgechef_tags_added_total 1")
	s.Contains(w.Body.String(), "fridgechef_sessions_active 1")
	s.Contains(w.Body.String(), `route="/api/v1/sessions"`)
}

func (s *RouterSuite) TestRateLimit() {
	s.cfg.RateLimit = config.RateLimitConfig{Enabled: true, Requests: 1, Window: time.Minute, Burst: 1}
	s.router = SetupRouter(Dependencies{Config: s.cfg, Sessions: s.sessions, Queue: s.queue})

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/v1/suggestions", nil).Code)
	w := s.do(http.MethodGet, "/api/v1/suggestions", nil)
	s.Equal(http.StatusTooManyRequests, w.Code)
	s.NotEmpty(w.Header().Get("Retry-After"))
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}
