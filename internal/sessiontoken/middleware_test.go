package sessiontoken

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func newRouter(issuer *Issuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/whoami", issuer.Middleware(), func(c *gin.Context) {
		id, _ := SessionID(c.Request.Context())
		c.String(http.StatusOK, id)
	})
	return router
}

func TestIssueAndParse(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour, "mpox_session")
	token, expires, err := issuer.Issue("sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("unexpected expiry: %s", expires)
	}
	id, err := issuer.Parse(token)
	if err != nil || id != "sess-1" {
		t.Fatalf("expected sess-1, got %q (%v)", id, err)
	}

	other := NewIssuer("other-secret", time.Hour, "mpox_session")
	if _, err := other.Parse(token); err == nil {
		t.Fatal("expected token signed with another secret to fail")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	issuer := NewIssuer("secret", time.Minute, "mpox_session")
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err := issuer.Issue("sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	issuer.now = time.Now
	if _, err := issuer.Parse(token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseRejectsForeignIssuerAndAlg(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour, "mpox_session")

	claims := jwt.RegisteredClaims{Subject: "sess", Issuer: "someone-else", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	foreign, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if _, err := issuer.Parse(foreign); err == nil {
		t.Fatal("expected foreign issuer to fail")
	}

	claims.Issuer = tokenIssuer
	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	if _, err := issuer.Parse(hs512); err == nil {
		t.Fatal("expected unexpected algorithm to fail")
	}
}

func TestIssueWithoutSecretFails(t *testing.T) {
	if _, _, err := NewIssuer("  ", time.Hour, "c").Issue("sess"); err == nil {
		t.Fatal("expected error without secret")
	}
}

func TestMiddlewareAcceptsCookieAndBearer(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour, "mpox_session")
	router := newRouter(issuer)
	token, _, _ := issuer.Issue("sess-42")

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: "mpox_session", Value: token})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || resp.Body.String() != "sess-42" {
		t.Fatalf("cookie: unexpected response %d %q", resp.Code, resp.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || resp.Body.String() != "sess-42" {
		t.Fatalf("bearer: unexpected response %d %q", resp.Code, resp.Body.String())
	}
}

func TestMiddlewareRejectsMissingOrBadToken(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour, "mpox_session")
	router := newRouter(issuer)

	cases := map[string]func(*http.Request){
		"missing":    func(*http.Request) {},
		"malformed":  func(r *http.Request) { r.Header.Set("Authorization", "Token abc") },
		"empty":      func(r *http.Request) { r.Header.Set("Authorization", "Bearer   ") },
		"bad cookie": func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "mpox_session", Value: "nope"}) },
	}
	for name, prepare := range cases {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		prepare(req)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, resp.Code)
		}
	}
}

func TestMiddlewareRefreshesAgingToken(t *testing.T) {
	issued := time.Now()
	issuer := NewIssuer("secret", time.Hour, "mpox_session")
	issuer.now = func() time.Time { return issued }
	router := newRouter(issuer)
	token, _, _ := issuer.Issue("sess-7")

	issuer.now = func() time.Time { return issued.Add(40 * time.Minute) }
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	refreshed := resp.Header().Get(RefreshHeader)
	if refreshed == "" || refreshed == token {
		t.Fatalf("expected a re-issued token, got %q", refreshed)
	}
	if cookie := resp.Header().Get("Set-Cookie"); !strings.Contains(cookie, "mpox_session="+refreshed) {
		t.Fatalf("expected refreshed cookie, got %q", cookie)
	}

	issuer.now = func() time.Time { return issued.Add(90 * time.Minute) }
	if _, err := issuer.Parse(token); err == nil {
		t.Fatal("expected the original token to have expired")
	}
	if id, err := issuer.Parse(refreshed); err != nil || id != "sess-7" {
		t.Fatalf("expected refreshed token to outlive the original, got %q (%v)", id, err)
	}
}

func TestMiddlewareKeepsFreshToken(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour, "mpox_session")
	router := newRouter(issuer)
	token, _, _ := issuer.Issue("sess-8")

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if got := resp.Header().Get(RefreshHeader); got != "" {
		t.Fatalf("expected no refresh for a fresh token, got %q", got)
	}
	if got := resp.Header().Get("Set-Cookie"); got != "" {
		t.Fatalf("expected no cookie for a fresh token, got %q", got)
	}
}

func TestClearCookieExpiresSessionCookie(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour, "mpox_session")
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/logout", func(c *gin.Context) {
		issuer.ClearCookie(c)
		c.Status(http.StatusNoContent)
	})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/logout", nil))

	cookie := resp.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, "mpox_session=;") || !strings.Contains(cookie, "Max-Age=0") {
		t.Fatalf("expected an expired session cookie, got %q", cookie)
	}
}
