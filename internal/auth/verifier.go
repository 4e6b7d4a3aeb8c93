package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tutorhub/pkg/types"
)

// Token errors. Verification fails closed: any of these rejects the
// connection before a session is touched.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// JWTVerifier verifies HS256-signed connection credentials and resolves
// them to a participant identity. Claims: "sub" (user ID, required),
// "name" (display name), "role" (participant role, defaults to learner).
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier with the given shared secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify validates the token and extracts the identity.
func (v *JWTVerifier) Verify(tokenString string) (*types.Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if !types.IsValidUserID(sub) {
		return nil, fmt.Errorf("%w: malformed sub", ErrInvalidToken)
	}

	identity := &types.Identity{
		UserID:      sub,
		DisplayName: sub,
		Role:        types.RoleLearner,
	}
	if name, ok := claims["name"].(string); ok && name != "" {
		identity.DisplayName = name
	}
	if role, ok := claims["role"].(string); ok && role != "" {
		if !types.IsValidRole(role) {
			return nil, fmt.Errorf("%w: role %q", ErrInvalidToken, role)
		}
		identity.Role = role
	}

	return identity, nil
}

// Generate creates a token for the given identity with an expiration.
// Used by tests and by companion services that mint session credentials.
func (v *JWTVerifier) Generate(identity *types.Identity, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  identity.UserID,
		"name": identity.DisplayName,
		"role": identity.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
