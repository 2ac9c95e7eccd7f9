package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// SupabaseVerifier はSupabase Auth APIの /auth/v1/user に問い合わせてトークンを検証する。
// JWTシークレットを持たない環境向け。
type SupabaseVerifier struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	anonKey    string
}

// NewSupabaseVerifier はSupabaseVerifierを生成する。baseURLは末尾スラッシュなしのプロジェクトURL。
func NewSupabaseVerifier(httpClient *http.Client, logger *slog.Logger, baseURL, anonKey string) *SupabaseVerifier {
	return &SupabaseVerifier{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		anonKey:    anonKey,
	}
}

type supabaseUser struct {
	ID string `json:"id"`
}

// Verify はトークンでユーザー情報を取得し、ユーザーIDを返す。
func (v *SupabaseVerifier) Verify(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if v.anonKey != "" {
		req.Header.Set("apikey", v.anonKey)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		v.logger.Error("supabase auth request failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("auth error: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrInvalidToken
	case resp.StatusCode != http.StatusOK:
		v.logger.Warn("supabase auth returned unexpected status", slog.Int("status", resp.StatusCode))
		return "", fmt.Errorf("auth error: status %d", resp.StatusCode)
	}

	var user supabaseUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", fmt.Errorf("auth error: failed to decode user: %w", err)
	}
	if user.ID == "" {
		return "", fmt.Errorf("%w: user not authenticated", ErrInvalidToken)
	}

	return normalizeUserID(user.ID)
}

var _ TokenVerifier = (*SupabaseVerifier)(nil)
