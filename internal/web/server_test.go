package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ideapedyudi/tabby/internal/notify"
	"github.com/ideapedyudi/tabby/internal/profile"
	"github.com/ideapedyudi/tabby/internal/tab"
	"github.com/ideapedyudi/tabby/internal/workspace"
)

type fakeSession struct {
	out    io.Writer
	once   sync.Once
	closed chan struct{}

	mu    sync.Mutex
	input bytes.Buffer
}

func (s *fakeSession) Open() bool {
	select {
	case <-s.closed:
		return false
	default:
		return true
	}
}
func (s *fakeSession) Closed() <-chan struct{}   { return s.closed }
func (s *fakeSession) Destroy()                  { s.once.Do(func() { close(s.closed) }) }
func (s *fakeSession) ReleaseInitialDataBuffer() {}
func (s *fakeSession) WorkingDirectory(context.Context) (string, error) {
	return "/srv", nil
}

func (s *fakeSession) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input.Write(p)
}

func (s *fakeSession) inputString() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input.String()
}

type sessionLog struct {
	mu       sync.Mutex
	sessions []*fakeSession
}

func (l *sessionLog) factory() tab.SessionFactory {
	return tab.SessionFactoryFunc(func(_ context.Context, _ profile.Profile, out io.Writer) (tab.Session, error) {
		s := &fakeSession{out: out, closed: make(chan struct{})}
		l.mu.Lock()
		l.sessions = append(l.sessions, s)
		l.mu.Unlock()
		return s, nil
	})
}

func (l *sessionLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

func (l *sessionLog) last() *fakeSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessions[len(l.sessions)-1]
}

type testServer struct {
	srv      *Server
	host     *workspace.Host
	sessions *sessionLog
	store    *profile.Store
	hub      *notify.Hub
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	sessions := &sessionLog{}
	store := profile.NewStore([]profile.Profile{
		{Type: profile.TypeLocal, Name: "bash", Options: profile.Options{Command: "bash"}},
	}, nil)
	hub := notify.NewHub()
	host := workspace.New(workspace.Options{
		Factory:  sessions.factory(),
		Profiles: store,
		Notifier: hub,
	})
	t.Cleanup(func() { _ = host.Shutdown() })

	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Workspace = host
	cfg.Notifications = hub
	return &testServer{srv: NewServer(cfg), host: host, sessions: sessions, store: store, hub: hub}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rr := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthzEndpoint(t *testing.T) {
	ts := newTestServer(t, Config{ReadOnly: true})

	rr := ts.do(t, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `"ok":true`) || !strings.Contains(body, `"readOnly":true`) {
		t.Fatalf("unexpected health response: %s", body)
	}

	if rr := ts.do(t, http.MethodPost, "/healthz", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	ts := newTestServer(t, Config{Token: "secret-token"})

	if rr := ts.do(t, http.MethodGet, "/api/tabs", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/api/tabs?token=secret-token", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected status %d with query token, got %d", http.StatusOK, rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/profiles", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rr := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d with bearer token, got %d", http.StatusOK, rr.Code)
	}
}

func TestTabLifecycleEndpoints(t *testing.T) {
	ts := newTestServer(t, Config{})

	rr := ts.do(t, http.MethodPost, "/api/tabs", `{"profile":"BASH"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}
	created := decode[tabResponse](t, rr)
	if created.Profile.Name != "bash" || created.State != "active" {
		t.Fatalf("unexpected tab: %+v", created)
	}

	rr = ts.do(t, http.MethodGet, "/api/tabs", "")
	list := decode[struct {
		Tabs []tabResponse `json:"tabs"`
	}](t, rr)
	if len(list.Tabs) != 1 || list.Tabs[0].ID != created.ID {
		t.Fatalf("unexpected tab list: %+v", list)
	}

	rr = ts.do(t, http.MethodPost, "/api/tabs/"+created.ID+"/reconnect", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("reconnect: expected %d, got %d", http.StatusOK, rr.Code)
	}
	if ts.sessions.count() != 2 {
		t.Fatalf("expected a second session after reconnect, got %d", ts.sessions.count())
	}

	rr = ts.do(t, http.MethodDelete, "/api/tabs/"+created.ID, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: expected %d, got %d", http.StatusNoContent, rr.Code)
	}
	rr = ts.do(t, http.MethodGet, "/api/tabs/"+created.ID, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected %d after delete, got %d", http.StatusNotFound, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "TAB_NOT_FOUND") {
		t.Fatalf("expected error envelope, got %s", rr.Body.String())
	}
}

func TestOpenTabDefaultsAndUnknownProfile(t *testing.T) {
	ts := newTestServer(t, Config{})

	rr := ts.do(t, http.MethodPost, "/api/tabs", "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected %d, got %d", http.StatusCreated, rr.Code)
	}
	if got := decode[tabResponse](t, rr).Profile.Name; got != "bash" {
		t.Fatalf("expected default profile bash, got %q", got)
	}

	rr = ts.do(t, http.MethodPost, "/api/tabs", `{"profile":"nope"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected %d, got %d", http.StatusNotFound, rr.Code)
	}
	rr = ts.do(t, http.MethodPost, "/api/tabs", `{`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestReadOnlyRejectsMutations(t *testing.T) {
	ts := newTestServer(t, Config{ReadOnly: true})

	rr := ts.do(t, http.MethodPost, "/api/tabs", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected %d, got %d", http.StatusForbidden, rr.Code)
	}
	if ts.sessions.count() != 0 {
		t.Fatal("no session should be created in read-only mode")
	}
}

func TestRecoveryEndpoint(t *testing.T) {
	ts := newTestServer(t, Config{})
	tb, err := ts.host.Open(context.Background(), profile.Profile{Type: "local", Name: "x", Options: profile.Options{Cwd: "/tmp"}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	rr := ts.do(t, http.MethodGet, "/api/tabs/"+tb.ID()+"/recovery?state=1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rr.Code)
	}
	var tok map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &tok); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tok["type"] != "app:local-tab" {
		t.Fatalf("unexpected type: %v", tok["type"])
	}
	if _, ok := tok["savedState"]; ok {
		t.Fatal("savedState must be absent without a frontend")
	}
	prof, _ := tok["profile"].(map[string]any)
	if prof["name"] != "x" {
		t.Fatalf("unexpected profile: %v", tok["profile"])
	}
}

func TestMenuEndpoints(t *testing.T) {
	ts := newTestServer(t, Config{})
	tb, err := ts.host.Open(context.Background(), profile.Profile{Name: "bash"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	rr := ts.do(t, http.MethodGet, "/api/menu?tab="+tb.ID()+"&header=1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rr.Code)
	}
	resp := decode[menuResponse](t, rr)
	var got []string
	for _, it := range resp.Items {
		got = append(got, it.Label)
	}
	want := []string{"New terminal", "New with profile", "Reconnect", "Save as profile"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("menu labels: got %v want %v", got, want)
	}
	if resp.Items[1].Clickable || len(resp.Items[1].Submenu) != 1 {
		t.Fatalf("expected profile submenu, got %+v", resp.Items[1])
	}

	// Save as profile without input needs a prompt answer.
	body := `{"tab":"` + tb.ID() + `","path":[3]}`
	rr = ts.do(t, http.MethodPost, "/api/menu/click", body)
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "INPUT_REQUIRED") {
		t.Fatalf("expected INPUT_REQUIRED, got %d %s", rr.Code, rr.Body.String())
	}

	body = `{"tab":"` + tb.ID() + `","path":[3],"input":"work"}`
	rr = ts.do(t, http.MethodPost, "/api/menu/click", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	p, err := ts.store.Find("work")
	if err != nil {
		t.Fatalf("saved profile missing: %v", err)
	}
	if p.Options.Cwd != "/srv" {
		t.Fatalf("expected cwd from session, got %q", p.Options.Cwd)
	}
	recent := ts.hub.Recent()
	if len(recent) == 0 || recent[len(recent)-1].Message != "Saved" {
		t.Fatalf("expected Saved notification, got %+v", recent)
	}

	rr = ts.do(t, http.MethodPost, "/api/menu/click", `{"path":[1,0]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("new with profile: expected %d, got %d", http.StatusOK, rr.Code)
	}
	if n := len(ts.host.List()); n != 2 {
		t.Fatalf("expected 2 tabs, got %d", n)
	}

	rr = ts.do(t, http.MethodPost, "/api/menu/click", `{"path":[9]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected %d for bad path, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestProfilesEndpoint(t *testing.T) {
	ts := newTestServer(t, Config{})
	rr := ts.do(t, http.MethodGet, "/api/profiles", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"name":"bash"`) {
		t.Fatalf("unexpected profiles body: %s", rr.Body.String())
	}
}

func TestWithRecover(t *testing.T) {
	h := withRecover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected %d, got %d", http.StatusInternalServerError, rr.Code)
	}
}
