package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/desertthunder/spc/internal/models"
	"github.com/desertthunder/spc/internal/shared"
	tu "github.com/desertthunder/spc/internal/testing"
)

type mockOAuth struct {
	token *oauth2.Token
	err   error
	codes []string
}

func (m *mockOAuth) GetAuthURL(state string) string {
	return "https://accounts.example.com/authorize?state=" + state
}

func (m *mockOAuth) GetOAuthConfig() *oauth2.Config { return &oauth2.Config{} }

func (m *mockOAuth) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	m.codes = append(m.codes, code)
	return m.token, m.err
}

type mockInstances struct {
	mu          sync.Mutex
	checkpoints map[string]*models.Checkpoint
	startErr    error
	started     []models.WorkflowInput
	terminated  []string
}

func newMockInstances() *mockInstances {
	return &mockInstances{checkpoints: make(map[string]*models.Checkpoint)}
}

func (m *mockInstances) Start(_ context.Context, input models.WorkflowInput) (*models.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return nil, m.startErr
	}
	if err := input.Validate(); err != nil || len(input.Contributors) == 0 {
		return nil, fmt.Errorf("%w: bad input", shared.ErrInvalidInput)
	}
	m.started = append(m.started, input)
	cp := &models.Checkpoint{InstanceID: models.InstanceID(input.State), Generation: 1, Status: models.StatusRunning, Phase: models.PhaseRefreshingToken, Input: input}
	m.checkpoints[cp.InstanceID] = cp
	return cp, nil
}

func (m *mockInstances) Get(_ context.Context, id string) (*models.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrInstanceNotFound, id)
	}
	return cp, nil
}

func (m *mockInstances) List(_ context.Context, status models.Status) ([]*models.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Checkpoint
	for _, cp := range m.checkpoints {
		if status == "" || cp.Status == status {
			out = append(out, cp)
		}
	}
	return out, nil
}

func (m *mockInstances) History(ctx context.Context, id string) ([]models.HistoryEvent, error) {
	if _, err := m.Get(ctx, id); err != nil {
		return nil, err
	}
	return []models.HistoryEvent{{InstanceID: id, Kind: models.EventStarted}}, nil
}

func (m *mockInstances) Terminate(ctx context.Context, id, reason string) (*models.Checkpoint, error) {
	cp, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated = append(m.terminated, id+":"+reason)
	cp.Status = models.StatusTerminated
	cp.Error = reason
	return cp, nil
}

type mockCounters struct {
	values  map[string]int64
	history []models.CounterMutation
}

func (m *mockCounters) Read(_ context.Context, key string) (models.CounterState, error) {
	v, ok := m.values[key]
	return models.CounterState{Key: key, Value: v, Exists: ok}, nil
}

func (m *mockCounters) Reset(_ context.Context, key string) error {
	m.values[key] = 0
	return nil
}

func (m *mockCounters) History(_ context.Context, key string, limit int) ([]models.CounterMutation, error) {
	out := []models.CounterMutation{}
	for _, h := range m.history {
		if h.Key == key && len(out) < limit {
			out = append(out, h)
		}
	}
	return out, nil
}

func TestBasicRouter(t *testing.T) {
	t.Run("Method Patterns", func(t *testing.T) {
		router := NewBasicRouter()
		router.Handle(http.MethodGet, "/items/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, r.PathValue("id"))
		}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "42" {
			t.Errorf("GET = %d %q", rec.Code, rec.Body.String())
		}

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/items/42", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("DELETE = %d, want 405", rec.Code)
		}
	})

	t.Run("Middleware Order", func(t *testing.T) {
		var order []string
		mw := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router := NewBasicRouter()
		router.Use(mw("first"), mw("second"))
		router.Handle("", "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}))
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))

		if strings.Join(order, ",") != "first,second,handler" {
			t.Errorf("middleware order = %v", order)
		}
	})

	t.Run("Request Logger And Recoverer", func(t *testing.T) {
		var buf strings.Builder
		logger := shared.NewLogger(&buf)

		router := NewBasicRouter()
		router.Use(RequestLogger(logger), Recoverer(logger))
		router.Handle(http.MethodGet, "/boom", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("kaboom")
		}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
		if !strings.Contains(buf.String(), "kaboom") || !strings.Contains(buf.String(), "status=500") {
			t.Errorf("expected panic and access log lines, got %q", buf.String())
		}
	})
}

func TestCallbackHandler(t *testing.T) {
	now := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	logger := shared.NewLogger(io.Discard)

	newHandler := func(oauth *mockOAuth, vault *tu.MockVault, opts CallbackOpts) http.Handler {
		opts.Now = func() time.Time { return now }
		router := NewBasicRouter()
		router.Handler(NewCallbackHandler(oauth, vault, opts, logger))
		return router
	}

	t.Run("Stores Tokens And Redirects", func(t *testing.T) {
		vault := tu.NewMockVault()
		oauth := &mockOAuth{token: &oauth2.Token{AccessToken: "at", RefreshToken: "rt"}}
		h := newHandler(oauth, vault, CallbackOpts{RedirectURL: "https://open.spotify.com"})

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=S1", nil))

		if rec.Code != http.StatusFound || rec.Header().Get("Location") != "https://open.spotify.com" {
			t.Fatalf("response = %d %s", rec.Code, rec.Header().Get("Location"))
		}

		access, err := vault.GetSecret(context.Background(), "S1-AccessToken")
		if err != nil || access.Value != "at" {
			t.Fatalf("access token = %+v, %v", access, err)
		}
		if access.ExpiresOn == nil || !access.ExpiresOn.Equal(now.Add(time.Hour)) {
			t.Errorf("access token expiry = %v, want now+1h", access.ExpiresOn)
		}
		refresh, err := vault.GetSecret(context.Background(), "S1-RefreshToken")
		if err != nil || refresh.Value != "rt" || refresh.ExpiresOn != nil {
			t.Errorf("refresh token = %+v, %v", refresh, err)
		}
		if len(oauth.codes) != 1 || oauth.codes[0] != "abc" {
			t.Errorf("exchanged codes = %v", oauth.codes)
		}
	})

	t.Run("Single Use With Fixed State", func(t *testing.T) {
		vault := tu.NewMockVault()
		oauth := &mockOAuth{token: &oauth2.Token{AccessToken: "at", RefreshToken: "rt"}}
		handler := NewCallbackHandler(oauth, vault, CallbackOpts{State: "S1", Now: func() time.Time { return now }}, logger)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=S1", nil))
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "authorized") {
			t.Errorf("first callback = %d", rec.Code)
		}

		select {
		case res := <-handler.Result():
			if res.Error() != nil || res.State != "S1" || res.Token.AccessToken != "at" {
				t.Errorf("unexpected result %+v", res)
			}
		default:
			t.Fatal("expected a result")
		}

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=S1", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("second callback = %d, want 400", rec.Code)
		}
	})

	tc := []struct {
		name   string
		query  string
		opts   CallbackOpts
		oauth  *mockOAuth
		status int
	}{
		{name: "missing state", query: "code=abc", status: http.StatusBadRequest, oauth: &mockOAuth{}},
		{name: "unexpected state", query: "code=abc&state=S2", opts: CallbackOpts{State: "S1"}, status: http.StatusBadRequest, oauth: &mockOAuth{}},
		{name: "denied", query: "error=access_denied&state=S1", status: http.StatusBadRequest, oauth: &mockOAuth{}},
		{name: "exchange failure", query: "code=abc&state=S1", status: http.StatusBadGateway, oauth: &mockOAuth{err: shared.ErrAuthFailed}},
		{name: "no refresh token", query: "code=abc&state=S1", status: http.StatusInternalServerError, oauth: &mockOAuth{token: &oauth2.Token{AccessToken: "at"}}},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(tt.oauth, tu.NewMockVault(), tt.opts)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?"+tt.query, nil))
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestLoginHandler(t *testing.T) {
	router := NewBasicRouter()
	router.Handler(NewLoginHandler(&mockOAuth{}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login?state=S1", nil))
	if rec.Code != http.StatusFound || !strings.HasSuffix(rec.Header().Get("Location"), "state=S1") {
		t.Errorf("login = %d %s", rec.Code, rec.Header().Get("Location"))
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("login without state = %d, want 400", rec.Code)
	}
}

func newAPI(instances *mockInstances, counters *mockCounters) http.Handler {
	router := NewBasicRouter()
	NewAPIHandler(instances, counters, counters, shared.NewLogger(io.Discard)).Register(router)
	return router
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

func TestAPIHandler(t *testing.T) {
	body := `{"contributors":["u1"],"playlistId":"P1","state":"S1"}`

	t.Run("Start Returns Status Links", func(t *testing.T) {
		instances := newMockInstances()
		h := newAPI(instances, &mockCounters{values: map[string]int64{}})

		rec := do(h, http.MethodPost, "/api/orchestrators/PlaylistCleanupOrchestrator", body)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}

		var links models.InstanceLinks
		if err := json.Unmarshal(rec.Body.Bytes(), &links); err != nil {
			t.Fatal(err)
		}
		if links.ID != "playlist-cleanup:S1" {
			t.Errorf("id = %s", links.ID)
		}
		if links.StatusQueryGetURI != "http://example.com/api/instances/playlist-cleanup:S1" {
			t.Errorf("status uri = %s", links.StatusQueryGetURI)
		}
		if !strings.HasPrefix(links.TerminatePostURI, links.StatusQueryGetURI+"/terminate") {
			t.Errorf("terminate uri = %s", links.TerminatePostURI)
		}
		if rec.Header().Get("Location") != links.StatusQueryGetURI {
			t.Errorf("Location = %s", rec.Header().Get("Location"))
		}
		if len(instances.started) != 1 || instances.started[0].PlaylistID != "P1" {
			t.Errorf("started = %+v", instances.started)
		}
	})

	t.Run("Start Errors", func(t *testing.T) {
		h := newAPI(newMockInstances(), &mockCounters{values: map[string]int64{}})

		tc := []struct {
			name, path, body string
			status           int
		}{
			{name: "unknown orchestrator", path: "/api/orchestrators/Other", body: body, status: http.StatusNotFound},
			{name: "malformed body", path: "/api/orchestrators/PlaylistCleanupOrchestrator", body: "{", status: http.StatusBadRequest},
			{name: "no contributors", path: "/api/orchestrators/PlaylistCleanupOrchestrator", body: `{"playlistId":"P1","state":"S1"}`, status: http.StatusBadRequest},
			{name: "no state", path: "/api/orchestrators/PlaylistCleanupOrchestrator", body: `{"contributors":["u1"],"playlistId":"P1"}`, status: http.StatusBadRequest},
		}
		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				if rec := do(h, http.MethodPost, tt.path, tt.body); rec.Code != tt.status {
					t.Errorf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
				}
			})
		}
	})

	t.Run("Host Closed", func(t *testing.T) {
		instances := newMockInstances()
		instances.startErr = shared.ErrHostClosed
		h := newAPI(instances, &mockCounters{values: map[string]int64{}})

		if rec := do(h, http.MethodPost, "/api/orchestrators/PlaylistCleanupOrchestrator", body); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("Instances", func(t *testing.T) {
		instances := newMockInstances()
		h := newAPI(instances, &mockCounters{values: map[string]int64{}})
		do(h, http.MethodPost, "/api/orchestrators/PlaylistCleanupOrchestrator", body)

		rec := do(h, http.MethodGet, "/api/instances/playlist-cleanup:S1", "")
		var cp models.Checkpoint
		if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &cp) != nil || cp.Input.State != "S1" {
			t.Errorf("get = %d %s", rec.Code, rec.Body.String())
		}

		if rec := do(h, http.MethodGet, "/api/instances/missing", ""); rec.Code != http.StatusNotFound {
			t.Errorf("missing = %d, want 404", rec.Code)
		}

		rec = do(h, http.MethodGet, "/api/instances?status=running", "")
		var list []models.Checkpoint
		if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &list) != nil || len(list) != 1 {
			t.Errorf("list = %d %s", rec.Code, rec.Body.String())
		}
		if rec := do(h, http.MethodGet, "/api/instances?status=sleepy", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("bad status filter = %d, want 400", rec.Code)
		}

		rec = do(h, http.MethodGet, "/api/instances?status=failed", "")
		if strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Errorf("empty list should encode as [], got %s", rec.Body.String())
		}

		rec = do(h, http.MethodGet, "/api/instances/playlist-cleanup:S1/history", "")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"started"`) {
			t.Errorf("history = %d %s", rec.Code, rec.Body.String())
		}

		rec = do(h, http.MethodPost, "/api/instances/playlist-cleanup:S1/terminate?reason=bye", "")
		if rec.Code != http.StatusOK || instances.terminated[0] != "playlist-cleanup:S1:bye" {
			t.Errorf("terminate = %d, terminated %v", rec.Code, instances.terminated)
		}
	})

	t.Run("Counters", func(t *testing.T) {
		counters := &mockCounters{
			values:  map[string]int64{"S1": 7},
			history: []models.CounterMutation{{Key: "S1", Op: "add", Amount: 7, Value: 7}},
		}
		h := newAPI(newMockInstances(), counters)

		rec := do(h, http.MethodGet, "/api/counters/S1", "")
		var st models.CounterState
		if json.Unmarshal(rec.Body.Bytes(), &st) != nil || st.Value != 7 || !st.Exists {
			t.Errorf("counter = %s", rec.Body.String())
		}

		rec = do(h, http.MethodPost, "/api/counters/S1/reset", "")
		if json.Unmarshal(rec.Body.Bytes(), &st) != nil || st.Value != 0 {
			t.Errorf("reset = %s", rec.Body.String())
		}

		rec = do(h, http.MethodGet, "/api/counters/S1/history?limit=5", "")
		var entries []models.CounterMutation
		if json.Unmarshal(rec.Body.Bytes(), &entries) != nil || len(entries) != 1 {
			t.Errorf("history = %s", rec.Body.String())
		}
		if rec := do(h, http.MethodGet, "/api/counters/S1/history?limit=0", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("bad limit = %d, want 400", rec.Code)
		}
	})

	t.Run("Health", func(t *testing.T) {
		h := newAPI(newMockInstances(), &mockCounters{values: map[string]int64{}})
		if rec := do(h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
			t.Errorf("health = %d", rec.Code)
		}
	})
}

func TestErrorStatus(t *testing.T) {
	tc := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: x", shared.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("%w: x", shared.ErrInstanceNotFound), http.StatusNotFound},
		{shared.ErrRegistryClosed, http.StatusServiceUnavailable},
		{shared.ErrTimeout, http.StatusGatewayTimeout},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tc {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	t.Run("writes status and body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeJSON(rec, shared.NewLogger(io.Discard), http.StatusCreated, map[string]int{"n": 1})

		if rec.Code != http.StatusCreated || rec.Header().Get("Content-Type") != "application/json" {
			t.Errorf("unexpected response %d %q", rec.Code, rec.Header().Get("Content-Type"))
		}
		if strings.TrimSpace(rec.Body.String()) != `{"n":1}` {
			t.Errorf("unexpected body %q", rec.Body.String())
		}
	})

	t.Run("logs encode failures", func(t *testing.T) {
		var buf strings.Builder
		rec := httptest.NewRecorder()
		writeJSON(rec, shared.NewLogger(&buf), http.StatusOK, map[string]any{"c": make(chan int)})

		if !strings.Contains(buf.String(), "failed to encode response") {
			t.Errorf("encode failure not logged:\n%s", buf.String())
		}
	})
}

func TestServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	router := NewBasicRouter()
	router.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "pong")
	}))
	srv := New(ln.Addr().String(), router, shared.NewLogger(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
	if err != nil {
		t.Fatalf("GET /ping: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(b) != "pong" {
		t.Errorf("body = %q", b)
	}

	cancel()
	select {
	case err := <-errs:
		if err != nil {
			t.Errorf("Serve() = %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
