// Package auth はSupabase Authが発行したアクセストークンの検証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ErrMissingToken はAuthorizationヘッダーにBearerトークンが無い場合のエラー。
var ErrMissingToken = errors.New("no authorization header")

// ErrInvalidToken はトークンが検証できない場合のエラー。
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenVerifier はアクセストークンからユーザーIDを解決するインターフェース。
type TokenVerifier interface {
	// Verify はトークンを検証し、ユーザーID（UUID文字列）を返す。
	Verify(ctx context.Context, token string) (string, error)
}

// BearerToken はAuthorizationヘッダーから "Bearer " を除いたトークンを取り出す。
func BearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrMissingToken
	}
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// normalizeUserID はSupabaseのユーザーIDがUUID形式であることを確認し、正規化した文字列を返す。
func normalizeUserID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: subject is not a UUID", ErrInvalidToken)
	}
	return id.String(), nil
}
