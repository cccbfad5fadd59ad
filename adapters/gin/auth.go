package netgin

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/open-rails/netpass/adapters/ginutil"
)

// AuthConfig configures verify-only acceptance of the external auth
// provider's JWTs. netpass never authenticates credentials itself; it
// trusts the provider's subject claim as the stable user id.
type AuthConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	Skew     time.Duration
	// AdminRole is the role claim entry that grants the disconnect
	// capability. The role is assigned by the external policy layer.
	AdminRole string
	// RefreshInterval floors JWKS re-fetching. Default 15m.
	RefreshInterval time.Duration
}

func (c AuthConfig) defaulted() AuthConfig {
	if c.Skew <= 0 {
		c.Skew = 30 * time.Second
	}
	if c.AdminRole == "" {
		c.AdminRole = "netpass:admin"
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 15 * time.Minute
	}
	return c
}

// Verifier validates bearer tokens against the provider's JWKS.
type Verifier struct {
	cfg   AuthConfig
	cache *jwk.Cache
}

func NewVerifier(ctx context.Context, cfg AuthConfig) (*Verifier, error) {
	cfg = cfg.defaulted()
	cache := jwk.NewCache(ctx)
	if err := cache.Register(cfg.JWKSURL, jwk.WithMinRefreshInterval(cfg.RefreshInterval)); err != nil {
		return nil, err
	}
	return &Verifier{cfg: cfg, cache: cache}, nil
}

func (v *Verifier) verify(ctx context.Context, raw string) (jwt.Token, error) {
	set, err := v.cache.Get(ctx, v.cfg.JWKSURL)
	if err != nil {
		return nil, err
	}
	opts := []jwt.ParseOption{
		jwt.WithKeySet(set),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(v.cfg.Skew),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}
	return jwt.Parse([]byte(raw), opts...)
}

// AuthRequired rejects requests without a valid bearer token and stores the
// token subject as the caller's user id.
func (v *Verifier) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			ginutil.Unauthorized(c, "missing_token")
			return
		}
		tok, err := v.verify(c.Request.Context(), raw)
		if err != nil {
			ginutil.Unauthorized(c, "invalid_token")
			return
		}
		sub := tok.Subject()
		if sub == "" {
			ginutil.Unauthorized(c, "missing_subject")
			return
		}
		c.Set(ginutil.CtxUserID, sub)
		c.Set("auth.token", tok)
		c.Next()
	}
}

// AdminRequired additionally requires the configured admin role and records
// the subject as the operator for audit attribution. Must run after
// AuthRequired.
func (v *Verifier) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tv, ok := c.Get("auth.token")
		if !ok {
			ginutil.Unauthorized(c, "missing_token")
			return
		}
		tok := tv.(jwt.Token)
		if !hasRole(tok, v.cfg.AdminRole) {
			ginutil.Forbidden(c, "admin_role_required")
			return
		}
		c.Set(ginutil.CtxOperator, tok.Subject())
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(h, prefix))
	return raw, raw != ""
}

func hasRole(tok jwt.Token, role string) bool {
	v, ok := tok.Get("roles")
	if !ok {
		return false
	}
	roles, ok := v.([]interface{})
	if !ok {
		return false
	}
	for _, r := range roles {
		if s, ok := r.(string); ok && s == role {
			return true
		}
	}
	return false
}
