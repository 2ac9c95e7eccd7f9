package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// JWTVerifier はSupabaseのJWTシークレットでHS256署名をローカル検証する。
type JWTVerifier struct {
	secret   []byte
	audience string
}

// NewJWTVerifier はJWTVerifierを生成する。
// audienceが空でなければaudクレームも検証する（Supabaseでは "authenticated"）。
func NewJWTVerifier(secret, audience string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), audience: audience}
}

// Verify は署名と有効期限を検証し、subクレームのユーザーIDを返す。
func (v *JWTVerifier) Verify(ctx context.Context, token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}

	return normalizeUserID(claims.Subject)
}

var _ TokenVerifier = (*JWTVerifier)(nil)
