package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/aira/internal/auth"
	"github.com/hitoshi/aira/internal/model"
)

// --- モック定義 ---

type mockVerifier struct {
	verifyFn func(ctx context.Context, token string) (string, error)
}

func (m *mockVerifier) Verify(ctx context.Context, token string) (string, error) {
	return m.verifyFn(ctx, token)
}

// --- テスト ---

func TestBearerAuthMiddleware_ValidToken_InjectsUserID(t *testing.T) {
	verifier := &mockVerifier{verifyFn: func(ctx context.Context, token string) (string, error) {
		if token == "good-token" {
			return "user-123", nil
		}
		return "", auth.ErrInvalidToken
	}}

	var captured string
	handler := NewBearerAuthMiddleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserIDFromContext(r.Context())
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		captured = userID
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if captured != "user-123" {
		t.Errorf("userID = %q, want %q", captured, "user-123")
	}
}

func TestBearerAuthMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		verifyFn func(ctx context.Context, token string) (string, error)
		wantMsg  string
	}{
		{
			name:    "missing header",
			header:  "",
			wantMsg: "No authorization header",
		},
		{
			name:   "invalid token",
			header: "Bearer bad-token",
			verifyFn: func(ctx context.Context, token string) (string, error) {
				return "", auth.ErrInvalidToken
			},
			wantMsg: "User not authenticated",
		},
		{
			name:   "identity provider down",
			header: "Bearer any",
			verifyFn: func(ctx context.Context, token string) (string, error) {
				return "", errors.New("dial tcp: connection refused")
			},
			wantMsg: "User not authenticated",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := &mockVerifier{verifyFn: tt.verifyFn}
			handler := NewBearerAuthMiddleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Error != tt.wantMsg || body.Code != model.ErrCodeUnauthorized {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestUserIDFromContext_Missing(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for context without user ID")
	}
	ctx := ContextWithUserID(context.Background(), "user-1")
	if got, err := UserIDFromContext(ctx); err != nil || got != "user-1" {
		t.Errorf("got (%q, %v), want user-1", got, err)
	}
}
