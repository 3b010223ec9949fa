package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
)

func newLocalAuth(t *testing.T) *Auth {
	t.Helper()
	a, err := NewAuth(nil, AuthConfig{LocalMode: "hs256", LocalSecret: "local-secret"})
	if err != nil {
		t.Fatalf("new auth: %v", err)
	}
	return a
}

func formRequest(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSignInFailureRedirectsFormPosts(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "invalid", err: domain.ErrInvalidCredentials, want: "/signin?error=invalid_credentials"},
		{name: "unverified", err: domain.ErrEmailNotVerified, want: "/signin?error=email_not_verified"},
		{name: "other", err: &domain.ValidationError{Field: "email", Message: "email is required"}, want: "/signin?error=" + url.QueryEscape("email: email is required")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestServer(t, &mockGateway{err: tt.err}, newLocalAuth(t), nil, nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, formRequest("/auth/signin", url.Values{"email": {"a@example.com"}, "password": {"wrong-pass"}}))

			if rec.Code != http.StatusSeeOther {
				t.Fatalf("expected 303, got %d", rec.Code)
			}
			if loc := rec.Header().Get(echo.HeaderLocation); loc != tt.want {
				t.Fatalf("unexpected redirect %q, want %q", loc, tt.want)
			}
			if cookieNamed(rec, accessTokenCookie) != nil {
				t.Fatalf("failed sign-in must not set a token")
			}
		})
	}
}

func TestSignInFailureJSON(t *testing.T) {
	e, _ := newTestServer(t, &mockGateway{err: domain.ErrInvalidCredentials}, newLocalAuth(t), nil, nil)
	rec := doRequest(e, http.MethodPost, "/auth/signin", `{"email":"a@example.com","password":"wrong-pass"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var resp errorResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Error != "invalid_credentials" {
		t.Fatalf("unexpected body %s (%v)", rec.Body.String(), err)
	}
}

func TestSignInIssuesTokenAndSession(t *testing.T) {
	auth := newLocalAuth(t)
	svc := &mockGateway{signIn: testUser}
	e, _ := newTestServer(t, svc, auth, nil, nil)

	rec := doRequest(e, http.MethodPost, "/auth/signin", `{"email":"ann@example.com","password":"long-enough"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp signInResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.User != testUser || resp.AccessToken == "" {
		t.Fatalf("unexpected response: %#v", resp)
	}
	id, err := auth.IdentityFromAuthHeader("Bearer " + resp.AccessToken)
	if err != nil || id != testUser {
		t.Fatalf("issued token does not verify: %v %#v", err, id)
	}

	sess := cookieNamed(rec, sessionName)
	if sess == nil {
		t.Fatalf("expected session cookie")
	}
	req := httptest.NewRequest(http.MethodGet, "/auth/user", nil)
	req.AddCookie(sess)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("session cookie should authenticate, got %d", rec.Code)
	}
	var user domain.User
	if err := sonic.Unmarshal(rec.Body.Bytes(), &user); err != nil || user.ID != testUser.UserID {
		t.Fatalf("unexpected user %s (%v)", rec.Body.String(), err)
	}
}

func TestSignInFormSuccessRedirectsHome(t *testing.T) {
	e, _ := newTestServer(t, &mockGateway{signIn: testUser}, newLocalAuth(t), nil, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, formRequest("/auth/signin", url.Values{"email": {"ann@example.com"}, "password": {"long-enough"}}))
	if rec.Code != http.StatusSeeOther || rec.Header().Get(echo.HeaderLocation) != "/" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Header().Get(echo.HeaderLocation))
	}
	if cookieNamed(rec, accessTokenCookie) == nil {
		t.Fatalf("expected access token cookie")
	}
}

func TestSignOutPurgesCookiesAndCache(t *testing.T) {
	svc := &mockGateway{signIn: testUser}
	e, _ := newTestServer(t, svc, newLocalAuth(t), nil, nil)

	rec := doRequest(e, http.MethodPost, "/auth/signin", `{"email":"ann@example.com","password":"long-enough"}`, nil)
	sess := cookieNamed(rec, sessionName)
	token := cookieNamed(rec, accessTokenCookie)
	if sess == nil || token == nil {
		t.Fatalf("expected cookies after sign-in")
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/signout", nil)
	req.AddCookie(sess)
	req.AddCookie(token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(svc.signedOut) != 1 || svc.signedOut[0] != testUser {
		t.Fatalf("expected cached list purge for the caller, got %#v", svc.signedOut)
	}
	for _, name := range []string{sessionName, accessTokenCookie} {
		c := cookieNamed(rec, name)
		if c == nil || c.MaxAge >= 0 {
			t.Fatalf("expected %s to be expired, got %#v", name, c)
		}
	}
}

func TestSignOutAnonymous(t *testing.T) {
	svc := &mockGateway{}
	e, _ := newTestServer(t, svc, newLocalAuth(t), nil, nil)
	rec := doRequest(e, http.MethodPost, "/auth/signout", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if svc.count("SignOut") != 0 {
		t.Fatalf("anonymous sign-out must not touch the gateway")
	}
}

func TestSignUp(t *testing.T) {
	svc := &mockGateway{user: domain.User{ID: "u9", Verified: true}}
	e, _ := newTestServer(t, svc, newLocalAuth(t), nil, nil)

	rec := doRequest(e, http.MethodPost, "/auth/signup", `{"email":"new@example.com","password":"long-enough"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("password must not be echoed: %s", rec.Body.String())
	}

	svc.err = domain.ErrEmailTaken
	rec = doRequest(e, http.MethodPost, "/auth/signup", `{"email":"new@example.com","password":"long-enough"}`, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}
