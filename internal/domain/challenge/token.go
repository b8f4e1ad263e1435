package challenge

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the signed content of a session token.
type Claims struct {
	SessionID  string     `json:"sid"`
	CustomerID string     `json:"uid"`
	OrderID    string     `json:"oid"`
	Difficulty Difficulty `json:"diff"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 session tokens.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer using secret as the HMAC key.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns a token for s that expires with the session.
func (g *Signer) Sign(s *Session) (string, error) {
	claims := Claims{
		SessionID:  s.ID,
		CustomerID: s.CustomerID,
		OrderID:    s.OrderID,
		Difficulty: s.Difficulty,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(g.now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return token, nil
}

// Verify checks the signature and expiry of token. An expired but otherwise
// valid token returns its claims together with ErrExpired.
func (g *Signer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return claims, ErrExpired
	default:
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if claims.SessionID == "" || claims.OrderID == "" || claims.CustomerID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
