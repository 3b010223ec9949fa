package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
)

const (
	sessionMaxAge = 7 * 24 * 60 * 60
	signInPage    = "/signin"
	homePage      = "/"
)

// NewSessionStore returns the cookie store backing the session middleware.
func NewSessionStore(secret []byte) *sessions.CookieStore {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

type signInResponse struct {
	User        domain.Identity `json:"user"`
	AccessToken string          `json:"accessToken,omitempty"`
}

func isFormPost(c echo.Context) bool {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	return strings.HasPrefix(ct, echo.MIMEApplicationForm) || strings.HasPrefix(ct, echo.MIMEMultipartForm)
}

func readCredentials(c echo.Context) (credentialsBody, error) {
	if isFormPost(c) {
		return credentialsBody{Email: c.FormValue("email"), Password: c.FormValue("password")}, nil
	}
	var body credentialsBody
	err := bindBody(c, credentialsSchema, &body)
	return body, err
}

// signInReason is the code carried back to the sign-in page.
func signInReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrEmailNotVerified):
		return "email_not_verified"
	default:
		return url.QueryEscape(err.Error())
	}
}

func signUp(svc Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body credentialsBody
		if err := bindBody(c, credentialsSchema, &body); err != nil {
			return writeError(c, err)
		}
		user, err := svc.SignUp(c.Request().Context(), body.Email, body.Password)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, user)
	}
}

func signIn(svc Gateway, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		form := isFormPost(c)
		creds, err := readCredentials(c)
		if err == nil {
			var id domain.Identity
			id, err = svc.SignIn(c.Request().Context(), creds.Email, creds.Password)
			if err == nil {
				return completeSignIn(c, auth, id, form)
			}
		}

		metricsFrom(c).SetErrorStage("auth")
		if form {
			return c.Redirect(http.StatusSeeOther, signInPage+"?error="+signInReason(err))
		}
		if errors.Is(err, domain.ErrInvalidCredentials) || errors.Is(err, domain.ErrEmailNotVerified) {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: signInReason(err)})
		}
		return writeError(c, err)
	}
}

func completeSignIn(c echo.Context, auth Authenticator, id domain.Identity, form bool) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return writeError(c, err)
	}
	sess.Values[sessionUserKey] = id.UserID
	sess.Values[sessionEmailKey] = id.Email
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return writeError(c, err)
	}

	token, err := auth.Issue(id)
	switch {
	case err == nil:
		c.SetCookie(&http.Cookie{
			Name:     accessTokenCookie,
			Value:    token,
			Path:     "/",
			MaxAge:   sessionMaxAge,
			HttpOnly: true,
			Secure:   c.Scheme() == "https",
			SameSite: http.SameSiteLaxMode,
		})
	case errors.Is(err, errIssueUnsupported):
		// The identity provider issues tokens; the session cookie suffices.
	default:
		return writeError(c, err)
	}

	if form {
		return c.Redirect(http.StatusSeeOther, homePage)
	}
	return c.JSON(http.StatusOK, signInResponse{User: id, AccessToken: token})
}

// signOut drops the session and token cookies and the caller's cached task
// list. Anonymous callers still get their cookies cleared.
func signOut(svc Gateway, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if id, err := identify(c, auth); err == nil {
			svc.SignOut(c.Request().Context(), id)
		}

		if sess, err := session.Get(sessionName, c); err == nil {
			sess.Values = map[interface{}]interface{}{}
			if sess.Options == nil {
				sess.Options = &sessions.Options{Path: "/"}
			}
			sess.Options.MaxAge = -1
			if err := sess.Save(c.Request(), c.Response()); err != nil {
				c.Logger().Warnf("expire session: %v", err)
			}
		}
		c.SetCookie(&http.Cookie{
			Name:     accessTokenCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
		return c.NoContent(http.StatusNoContent)
	}
}

func currentUser(svc Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := svc.CurrentUser(c.Request().Context(), identityFrom(c))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, user)
	}
}
