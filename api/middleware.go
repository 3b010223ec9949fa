package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
)

const (
	sessionName        = "todo_session"
	sessionUserKey     = "uid"
	sessionEmailKey    = "email"
	identityContextKey = "request.identity"
)

// GzipRequestMiddleware decompresses gzip-encoded request bodies so handlers can
// work with plain JSON payloads. Requests with invalid gzip payloads are
// rejected with a 400 response.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !hasGzipEncoding(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}

			body := req.Body
			gr, err := gzip.NewReader(body)
			if err != nil {
				_ = body.Close()
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}

			req.Body = &gzipReadCloser{Reader: gr, body: body}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)

			return next(c)
		}
	}
}

func hasGzipEncoding(header string) bool {
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

type gzipReadCloser struct {
	*gzip.Reader
	body io.Closer
}

func (g *gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if cerr := g.body.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// authenticate resolves the caller from a bearer token, the access-token
// cookie or the session cookie, in that order, and rejects anonymous
// requests with 401.
func authenticate(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m := metricsFrom(c)
			start := time.Now()
			id, err := identify(c, auth)
			m.ObserveAuth(time.Since(start))
			if err != nil {
				m.SetErrorStage("auth")
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
			}
			m.SetUser(id.UserID)
			c.Set(identityContextKey, id)
			return next(c)
		}
	}
}

func identify(c echo.Context, auth Authenticator) (domain.Identity, error) {
	header, cookie := rawToken(c.Request())
	if header != "" {
		return auth.IdentityFromAuthHeader(header)
	}
	if cookie != "" {
		if id, err := auth.IdentityFromToken(cookie); err == nil {
			return id, nil
		}
	}
	if id, ok := sessionIdentity(c); ok {
		return id, nil
	}
	return domain.Identity{}, errMissingAuthorization
}

func sessionIdentity(c echo.Context) (domain.Identity, bool) {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return domain.Identity{}, false
	}
	uid, _ := sess.Values[sessionUserKey].(string)
	email, _ := sess.Values[sessionEmailKey].(string)
	if uid == "" {
		return domain.Identity{}, false
	}
	return domain.Identity{UserID: uid, Email: email}, true
}

func identityFrom(c echo.Context) domain.Identity {
	id, _ := c.Get(identityContextKey).(domain.Identity)
	return id
}
