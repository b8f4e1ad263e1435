package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/foodrun/internal/domain/apperr"
	"github.com/xenking/foodrun/internal/domain/catalog"
)

// Role is the kind of account behind a bearer token.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
	RoleDriver   Role = "driver"
)

// Identity is the verified caller of a request.
type Identity struct {
	Subject    string
	Role       Role
	SellerKind catalog.SellerKind
}

// Seller returns the seller reference of a seller identity.
func (i Identity) Seller() catalog.SellerRef {
	return catalog.SellerRef{Kind: i.SellerKind, ID: i.Subject}
}

// IdentityClaims are issued by the identity service.
type IdentityClaims struct {
	Role       Role               `json:"role"`
	SellerKind catalog.SellerKind `json:"seller_kind,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens signed with a shared secret.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// NewAuthenticator returns an Authenticator for secret.
func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{secret: secret, now: time.Now}
}

// Issue signs an identity token. The identity service is the real issuer;
// this is used by tools and tests.
func (a *Authenticator) Issue(id Identity, ttl time.Duration) (string, error) {
	now := a.now()
	claims := IdentityClaims{
		Role:       id.Role,
		SellerKind: id.SellerKind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses and validates a bearer token.
func (a *Authenticator) Verify(token string) (Identity, error) {
	var claims IdentityClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return Identity{}, errors.Wrap(apperr.ErrNotLoggedIn, err.Error())
	}
	id := Identity{Subject: claims.Subject, Role: claims.Role, SellerKind: claims.SellerKind}
	if id.Subject == "" {
		return Identity{}, errors.Wrap(apperr.ErrNotLoggedIn, "token has no subject")
	}
	switch id.Role {
	case RoleCustomer, RoleDriver:
	case RoleSeller:
		if !id.SellerKind.Valid() {
			return Identity{}, errors.Wrap(apperr.ErrNotLoggedIn, "seller token without seller kind")
		}
	default:
		return Identity{}, errors.Wrapf(apperr.ErrNotLoggedIn, "unknown role %q", id.Role)
	}
	return id, nil
}

type identityKey struct{}

func withIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by Require.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Require authenticates the bearer token and admits only the given role.
func (a *Authenticator) Require(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				writeError(r.Context(), w, apperr.ErrNotLoggedIn)
				return
			}
			id, err := a.Verify(strings.TrimSpace(raw))
			if err != nil {
				writeError(r.Context(), w, err)
				return
			}
			if id.Role != role {
				writeError(r.Context(), w, errors.Wrapf(apperr.ErrNotLoggedIn, "%s token used on %s route", id.Role, role))
				return
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
		})
	}
}

func caller(r *http.Request) Identity {
	id, _ := IdentityFrom(r.Context())
	return id
}
