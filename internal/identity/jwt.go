package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kubilitics/gatewayd/internal/gwerrors"
)

// OperatorClaims is the claim set expected in an admin bearer token issued
// by the identity service.
type OperatorClaims struct {
	OperatorID string `json:"operator_id"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier validates operator bearer tokens for the admin HTTP and gRPC
// surfaces. It is never used on the chat data plane.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier using the given HMAC signing secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates a bearer token, returning its operator claims.
func (v *JWTVerifier) Verify(tokenStr string) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.AuthMissing, "invalid operator token", err)
	}
	if !token.Valid {
		return nil, gwerrors.New(gwerrors.AuthMissing, "invalid operator token")
	}
	return claims, nil
}
