// Package auth resolves the principal of a request and checks the
// capabilities it holds for a listing context.
package auth

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/alfredjeanlab/datatable/internal/model"
)

// PrincipalHeader names the principal when authenticating with the static
// token or with authentication disabled.
const PrincipalHeader = "X-Datatable-Principal"

// Anonymous is the principal of requests without one when auth is disabled.
const Anonymous = "anonymous"

// WildcardCapability grants every capability in every context.
const WildcardCapability = "*"

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// Principal is an authenticated caller.
type Principal struct {
	ID string
	// Capabilities granted by the credential itself.
	Capabilities []string
}

// Claims is the JWT payload. The subject is the principal id.
type Claims struct {
	Capabilities []string `json:"caps,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies credentials. With a JWT secret, bearer tokens must
// be HS256 tokens signed with it. Otherwise, with a static token, the bearer
// must equal it and the principal comes from PrincipalHeader. With neither,
// every request is accepted.
type Authenticator struct {
	token  string
	secret []byte
}

func NewAuthenticator(staticToken, jwtSecret string) *Authenticator {
	a := &Authenticator{token: staticToken}
	if jwtSecret != "" {
		a.secret = []byte(jwtSecret)
	}
	return a
}

// Enabled reports whether credentials are checked.
func (a *Authenticator) Enabled() bool {
	return a.token != "" || a.secret != nil
}

// Authenticate resolves the principal from the Authorization header value
// and the PrincipalHeader value.
func (a *Authenticator) Authenticate(authorization, principal string) (Principal, error) {
	principal = strings.TrimSpace(principal)
	if !a.Enabled() {
		if principal == "" {
			principal = Anonymous
		}
		return Principal{ID: principal}, nil
	}

	if authorization == "" {
		return Principal{}, fmt.Errorf("%w: missing authorization header", ErrUnauthenticated)
	}
	provided, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok {
		return Principal{}, fmt.Errorf("%w: invalid authorization scheme", ErrUnauthenticated)
	}

	if a.secret != nil {
		claims, err := a.parse(provided)
		if err != nil {
			return Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		return Principal{ID: claims.Subject, Capabilities: claims.Capabilities}, nil
	}

	if subtle.ConstantTimeCompare([]byte(provided), []byte(a.token)) != 1 {
		return Principal{}, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}
	if principal == "" {
		return Principal{}, fmt.Errorf("%w: missing %s header", ErrUnauthenticated, PrincipalHeader)
	}
	return Principal{ID: principal}, nil
}

func (a *Authenticator) parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// IssueToken signs a token for principal valid for ttl.
func IssueToken(secret, principal string, capabilities []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Capabilities: capabilities,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// ConfigSource reads config records.
type ConfigSource interface {
	GetConfig(ctx context.Context, key string) (*model.Config, error)
}

// CapabilityKey is the config key listing the grants of a principal.
func CapabilityKey(principal string) string {
	return "capabilities:" + principal
}

// Checker decides whether a principal holds a capability in a context.
// A grant is either a bare capability, valid everywhere, or
// "<capability>@<level>:<id>", valid in one context.
type Checker struct {
	configs  ConfigSource
	defaults []string
}

// NewChecker returns a Checker granting defaults to every principal.
func NewChecker(configs ConfigSource, defaults []string) *Checker {
	return &Checker{configs: configs, defaults: defaults}
}

// Grants returns every grant of p: the defaults, the credential's own and
// the stored "capabilities:<principal>" record.
func (c *Checker) Grants(ctx context.Context, p Principal) ([]string, error) {
	grants := append(append([]string(nil), c.defaults...), p.Capabilities...)
	if c.configs == nil {
		return grants, nil
	}
	cfg, err := c.configs.GetConfig(ctx, CapabilityKey(p.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return grants, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load capabilities of %s: %w", p.ID, err)
	}
	var stored []string
	if err := json.Unmarshal(cfg.Value, &stored); err != nil {
		return nil, fmt.Errorf("decode capabilities of %s: %w", p.ID, err)
	}
	return append(grants, stored...), nil
}

// Require returns an error wrapping ErrForbidden unless p holds capability
// in the given context.
func (c *Checker) Require(ctx context.Context, p Principal, capability, level string, contextID int64) error {
	grants, err := c.Grants(ctx, p)
	if err != nil {
		return err
	}
	scoped := capability + "@" + level + ":" + strconv.FormatInt(contextID, 10)
	for _, g := range grants {
		g = strings.TrimSpace(g)
		if g == WildcardCapability || g == capability || g == scoped {
			return nil
		}
	}
	return fmt.Errorf("%w: %s lacks %s", ErrForbidden, p.ID, capability)
}
