// Package sessiontoken signs wizard session IDs so clients can carry them in
// a cookie or bearer header without being able to forge another session's ID.
package sessiontoken

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "mpox-check"

// RefreshHeader carries a re-issued token for bearer clients.
const RefreshHeader = "X-Session-Token"

type contextKey string

const sessionIDKey contextKey = "sessionID"

var (
	ErrMissingToken = errors.New("session token required")
	ErrInvalidToken = errors.New("invalid session token")
)

// SessionID retrieves the verified session ID from ctx.
func SessionID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if value, ok := ctx.Value(sessionIDKey).(string); ok && value != "" {
		return value, true
	}
	return "", false
}

// WithSessionID returns a context carrying id, as the middleware would.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// Issuer creates and verifies HS256 session tokens.
type Issuer struct {
	secret     []byte
	ttl        time.Duration
	cookieName string
	now        func() time.Time
}

func NewIssuer(secret string, ttl time.Duration, cookieName string) *Issuer {
	return &Issuer{
		secret:     []byte(strings.TrimSpace(secret)),
		ttl:        ttl,
		cookieName: cookieName,
		now:        time.Now,
	}
}

// Issue signs a token whose subject is sessionID.
func (i *Issuer) Issue(sessionID string) (string, time.Time, error) {
	if len(i.secret) == 0 {
		return "", time.Time{}, errors.New("missing session secret")
	}
	now := i.now()
	expires := now.Add(i.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Parse verifies the token and returns its session ID.
func (i *Issuer) Parse(tokenString string) (string, error) {
	claims, err := i.parseClaims(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (i *Issuer) parseClaims(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// needsRefresh reports whether less than half of the token lifetime is left.
// Session expiry in the store is an idle timeout, so an active session must
// keep getting fresh tokens.
func (i *Issuer) needsRefresh(claims *jwt.RegisteredClaims) bool {
	if claims.ExpiresAt == nil {
		return true
	}
	return claims.ExpiresAt.Time.Sub(i.now()) < i.ttl/2
}

// SetCookie stores the token in an HTTP-only cookie.
func (i *Issuer) SetCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(i.cookieName, token, int(i.ttl.Seconds()), "/", "", false, true)
}

// ClearCookie removes the session cookie.
func (i *Issuer) ClearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(i.cookieName, "", -1, "/", "", false, true)
}

// Middleware resolves the session token from the cookie or an
// "Authorization: Bearer" header and injects the session ID into the request
// context. Requests without a valid token are rejected. A token past half its
// lifetime is re-issued in the cookie and in RefreshHeader.
func (i *Issuer) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := i.extract(c)
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		claims, err := i.parseClaims(tokenString)
		if err != nil {
			unauthorized(c, err.Error())
			return
		}
		sessionID := claims.Subject

		if i.needsRefresh(claims) {
			if token, _, err := i.Issue(sessionID); err == nil {
				i.SetCookie(c, token)
				c.Header(RefreshHeader, token)
			}
		}

		c.Request = c.Request.WithContext(WithSessionID(c.Request.Context(), sessionID))
		c.Set(string(sessionIDKey), sessionID)
		c.Next()
	}
}

func (i *Issuer) extract(c *gin.Context) (string, error) {
	if header := c.Request.Header.Get("Authorization"); header != "" {
		return extractBearerToken(header)
	}
	if cookie, err := c.Cookie(i.cookieName); err == nil && cookie != "" {
		return cookie, nil
	}
	return "", ErrMissingToken
}

func extractBearerToken(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
}
