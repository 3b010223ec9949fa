package api

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
)

const (
	defaultJWKSCacheTTL = 15 * time.Minute
	defaultTokenTTL     = 12 * time.Hour
)

var errIssueUnsupported = errors.New("token issuing requires a local signing secret")

// AuthConfig selects how access tokens are verified.
type AuthConfig struct {
	Audience string
	Issuer   string
	// LocalMode is "" for JWKS verification or "hs256" for a shared secret.
	LocalMode   string
	LocalSecret string
	KeyCacheTTL time.Duration
	TokenTTL    time.Duration
}

// Auth validates incoming JWT tokens and, in local mode, issues them.
type Auth struct {
	JWKS     *keyfunc.JWKS
	Audience string
	Issuer   string
	Local    bool
	Secret   []byte

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
	tokenTTL    time.Duration
	now         func() time.Time
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates a new Auth instance.
func NewAuth(jwks *keyfunc.JWKS, cfg AuthConfig) (*Auth, error) {
	a := &Auth{
		JWKS:        jwks,
		Audience:    cfg.Audience,
		Issuer:      cfg.Issuer,
		keyCacheTTL: cfg.KeyCacheTTL,
		tokenTTL:    cfg.TokenTTL,
		now:         time.Now,
	}
	if a.keyCacheTTL == 0 {
		a.keyCacheTTL = defaultJWKSCacheTTL
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = defaultTokenTTL
	}

	switch strings.ToLower(cfg.LocalMode) {
	case "":
		if jwks == nil {
			return nil, errors.New("jwks must be configured unless LOCAL_AUTH_MODE is set")
		}
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	case "hs256":
		if cfg.LocalSecret == "" {
			return nil, errors.New("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256")
		}
		a.Local = true
		a.Secret = []byte(cfg.LocalSecret)
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	default:
		return nil, errors.New("unsupported LOCAL_AUTH_MODE value")
	}
	return a, nil
}

// IdentityFromAuthHeader extracts the caller from the Authorization header.
func (a *Auth) IdentityFromAuthHeader(h string) (domain.Identity, error) {
	if h == "" {
		return domain.Identity{}, errMissingAuthorization
	}
	token, err := bearerTokenFromString(h)
	if err != nil {
		return domain.Identity{}, err
	}
	return a.IdentityFromBearer(token)
}

// IdentityFromToken verifies a raw token, such as one carried in a cookie.
func (a *Auth) IdentityFromToken(token string) (domain.Identity, error) {
	if countByte(readOnlyBytes(token), '.') != 2 {
		return domain.Identity{}, errBadAuthorization
	}
	return a.IdentityFromBearer(readOnlyBytes(token))
}

// IdentityFromBearer extracts the caller from a bearer token presented as raw bytes.
func (a *Auth) IdentityFromBearer(token []byte) (domain.Identity, error) {
	if len(token) == 0 {
		return domain.Identity{}, errBadAuthorization
	}

	tokenStr := readOnlyString(token)
	parsedToken, err := a.parser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if a.Local {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.Secret, nil
		}
		return a.keyForToken(t)
	})
	if err != nil {
		return domain.Identity{}, err
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Identity{}, errors.New("invalid claims")
	}

	now := a.now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return domain.Identity{}, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return domain.Identity{}, errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return domain.Identity{}, errors.New("token used before issued")
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
		return domain.Identity{}, errors.New("invalid audience")
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
		return domain.Identity{}, errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return domain.Identity{}, errors.New("missing sub")
	}
	email, _ := claims["email"].(string)
	return domain.Identity{UserID: sub, Email: domain.NormalizeEmail(email)}, nil
}

// Issue signs an access token for id. Only local mode can issue tokens.
func (a *Auth) Issue(id domain.Identity) (string, error) {
	if !a.Local {
		return "", errIssueUnsupported
	}
	now := a.now()
	claims := jwt.MapClaims{
		"sub":   id.UserID,
		"email": id.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(a.tokenTTL).Unix(),
	}
	if a.Audience != "" {
		claims["aud"] = a.Audience
	}
	if a.Issuer != "" {
		claims["iss"] = a.Issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if a.now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: a.now().Add(a.keyCacheTTL)})
	}
	return key, nil
}
