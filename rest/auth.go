package rest

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"k8s.io/utils/clock"

	"github.com/julo/statusflow"
)

var ErrUnauthenticated = errors.New("missing or invalid bearer token", j.C("ERR_71d3c9a0e5b24f68"))

// RolePartner is carried by tokens issued to lending partners. Partners may only post to their own webhook and
// act as system actors there.
const RolePartner statusflow.Role = "partner"

// Claims identify the caller. The subject is the actor id: a customer id, an agent username or a partner name.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) Actor() statusflow.Actor {
	return statusflow.Actor{ID: c.Subject, Role: statusflow.Role(c.Role)}
}

// Authenticator issues and verifies HS256 tokens.
type Authenticator struct {
	secret []byte
	issuer string
	clock  clock.Clock
}

type AuthOption func(a *Authenticator)

func WithIssuer(issuer string) AuthOption {
	return func(a *Authenticator) {
		a.issuer = issuer
	}
}

func WithAuthClock(c clock.Clock) AuthOption {
	return func(a *Authenticator) {
		a.clock = c
	}
}

func NewAuthenticator(secret []byte, opts ...AuthOption) *Authenticator {
	a := &Authenticator{
		secret: secret,
		issuer: "statusflow",
		clock:  clock.RealClock{},
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Issue signs a token for subject valid for ttl.
func (a *Authenticator) Issue(subject string, role statusflow.Role, ttl time.Duration) (string, error) {
	now := a.clock.Now()
	claims := &Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.clock.Now),
	)
	if err != nil {
		return nil, errors.Wrap(ErrUnauthenticated, err.Error())
	}

	if claims.Subject == "" {
		return nil, errors.Wrap(ErrUnauthenticated, "token has no subject")
	}

	switch role := statusflow.Role(claims.Role); {
	case role.Valid(), role == RolePartner:
	default:
		return nil, errors.Wrap(ErrUnauthenticated, "unknown role", j.MKV{"role": claims.Role})
	}

	return claims, nil
}

type claimsKey struct{}

// Middleware rejects requests without a valid bearer token and stores the claims on the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			respondWithError(w, http.StatusUnauthorized, ErrUnauthenticated.Error())
			return
		}

		claims, err := a.Parse(token)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, ErrUnauthenticated.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

func requireRole(role statusflow.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := ClaimsFrom(r.Context())
		if !ok || statusflow.Role(c.Role) != role {
			respondWithError(w, http.StatusForbidden, "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}
