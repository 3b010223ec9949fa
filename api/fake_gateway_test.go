package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
	"github.com/Peap0ds-23/collaborative-todo-1/gateway"
	"github.com/Peap0ds-23/collaborative-todo-1/realtime"
)

const goodToken = "good.token.sig"

var (
	_ Gateway       = (*gateway.Service)(nil)
	_ Authenticator = (*Auth)(nil)
	_ Deduper       = (*RedisDeduper)(nil)
)

var testUser = domain.Identity{UserID: "user-1", Email: "ann@example.com"}

type mockGateway struct {
	mu    sync.Mutex
	calls []string

	list          domain.TaskList
	task          domain.Task
	inputs        []gateway.TaskInput
	toggled       []bool
	order         []string
	removedEmail  string
	deleted       int
	collaborators []gateway.Collaborator
	history       []domain.AuditLogEntry
	notifications []domain.Notification
	user          domain.User
	signIn        domain.Identity
	signedOut     []domain.Identity
	err           error
}

func (m *mockGateway) record(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
	return m.err
}

func (m *mockGateway) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (m *mockGateway) SignUp(_ context.Context, email, _ string) (domain.User, error) {
	if err := m.record("SignUp"); err != nil {
		return domain.User{}, err
	}
	u := m.user
	u.Email = email
	return u, nil
}

func (m *mockGateway) SignIn(context.Context, string, string) (domain.Identity, error) {
	return m.signIn, m.record("SignIn")
}

func (m *mockGateway) CurrentUser(_ context.Context, id domain.Identity) (domain.User, error) {
	if err := m.record("CurrentUser"); err != nil {
		return domain.User{}, err
	}
	return domain.User{ID: id.UserID, Email: id.Email, Verified: true}, nil
}

func (m *mockGateway) SignOut(_ context.Context, id domain.Identity) {
	_ = m.record("SignOut")
	m.mu.Lock()
	m.signedOut = append(m.signedOut, id)
	m.mu.Unlock()
}

func (m *mockGateway) ListTasks(context.Context, domain.Identity) (domain.TaskList, error) {
	return m.list, m.record("ListTasks")
}

func (m *mockGateway) AddTask(_ context.Context, _ domain.Identity, in gateway.TaskInput) (domain.Task, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, in)
	m.mu.Unlock()
	return m.task, m.record("AddTask")
}

func (m *mockGateway) EditTask(_ context.Context, _ domain.Identity, _ string, in gateway.TaskInput) (domain.Task, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, in)
	m.mu.Unlock()
	return m.task, m.record("EditTask")
}

func (m *mockGateway) SetComplete(_ context.Context, _ domain.Identity, _ string, complete bool) (domain.Task, error) {
	m.mu.Lock()
	m.toggled = append(m.toggled, complete)
	m.mu.Unlock()
	return m.task, m.record("SetComplete")
}

func (m *mockGateway) DeleteTask(context.Context, domain.Identity, string) error {
	return m.record("DeleteTask")
}

func (m *mockGateway) DeleteCompleted(context.Context, domain.Identity) (int, error) {
	return m.deleted, m.record("DeleteCompleted")
}

func (m *mockGateway) DeleteAll(context.Context, domain.Identity) (int, error) {
	return m.deleted, m.record("DeleteAll")
}

func (m *mockGateway) UpdateOrder(_ context.Context, _ domain.Identity, ids []string) error {
	m.mu.Lock()
	m.order = ids
	m.mu.Unlock()
	return m.record("UpdateOrder")
}

func (m *mockGateway) TaskHistory(context.Context, domain.Identity, string) ([]domain.AuditLogEntry, error) {
	return m.history, m.record("TaskHistory")
}

func (m *mockGateway) ShareTask(_ context.Context, _ domain.Identity, taskID, email string) (domain.Share, error) {
	return domain.Share{TaskID: taskID, Email: email}, m.record("ShareTask")
}

func (m *mockGateway) RemoveCollaborator(_ context.Context, _ domain.Identity, _ string, email string) error {
	m.mu.Lock()
	m.removedEmail = email
	m.mu.Unlock()
	return m.record("RemoveCollaborator")
}

func (m *mockGateway) Collaborators(context.Context, domain.Identity, string) ([]gateway.Collaborator, error) {
	return m.collaborators, m.record("Collaborators")
}

func (m *mockGateway) Notifications(context.Context, domain.Identity) ([]domain.Notification, error) {
	return m.notifications, m.record("Notifications")
}

func (m *mockGateway) MarkNotificationRead(context.Context, domain.Identity, string) error {
	return m.record("MarkNotificationRead")
}

func (m *mockGateway) MarkAllNotificationsRead(context.Context, domain.Identity) error {
	return m.record("MarkAllNotificationsRead")
}

type mockAuth struct{}

func (mockAuth) IdentityFromAuthHeader(h string) (domain.Identity, error) {
	if h != "Bearer "+goodToken {
		return domain.Identity{}, errBadAuthorization
	}
	return testUser, nil
}

func (mockAuth) IdentityFromToken(token string) (domain.Identity, error) {
	if token != goodToken {
		return domain.Identity{}, errBadAuthorization
	}
	return testUser, nil
}

func (mockAuth) Issue(domain.Identity) (string, error) { return "", errIssueUnsupported }

// newTestServer builds a router with every route registered behind the
// session middleware.
func newTestServer(t *testing.T, svc Gateway, auth Authenticator, feed realtime.Feed, dedup Deduper) (*echo.Echo, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	e := echo.New()
	e.Use(session.Middleware(NewSessionStore([]byte("0123456789abcdef0123456789abcdef"))))
	e.Use(GzipRequestMiddleware())
	if feed == nil {
		hub := realtime.NewHub(logger)
		t.Cleanup(hub.Close)
		feed = hub
	}
	Register(e, svc, auth, feed, dedup, logger)
	return e, hook
}

func doRequest(e *echo.Echo, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func authed(extra map[string]string) map[string]string {
	h := map[string]string{echo.HeaderAuthorization: "Bearer " + goodToken}
	for k, v := range extra {
		h[k] = v
	}
	return h
}
