package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/aira/internal/middleware"
	"github.com/hitoshi/aira/internal/model"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	// GetOrCreate はプロフィールを返す。未作成の場合は初期クレジットで作成する。
	GetOrCreate(ctx context.Context, userID string) (*model.Profile, error)
	// ListMessages は直近のチャットログを古い順で返す。
	ListMessages(ctx context.Context, userID string, limit int) ([]*model.ChatMessage, error)
}

// ProfileHandler はプロフィールとチャット履歴のHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

type profileResponse struct {
	ID      string `json:"id"`
	Credits int    `json:"credits"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// GetProfile は認証ユーザーのクレジット残高を返す。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	p, err := h.service.GetOrCreate(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, profileResponse{ID: p.ID, Credits: p.Credits})
}

// ListMessages は認証ユーザーのチャット履歴を返す。
// GET /api/chat/messages?limit=N
func (h *ProfileHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("limit must be a non-negative integer"))
			return
		}
	}

	msgs, err := h.service.ListMessages(r.Context(), userID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, messageResponse{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"messages": resp})
}
