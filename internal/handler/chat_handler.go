package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/aira/internal/auth"
	"github.com/hitoshi/aira/internal/chat"
	"github.com/hitoshi/aira/internal/config"
	"github.com/hitoshi/aira/internal/middleware"
	"github.com/hitoshi/aira/internal/model"
)

// maxChatBodyBytes はチャットリクエスト本文の上限。
const maxChatBodyBytes = 1 << 20

// ChatGateway はチャットハンドラーが必要とするゲートウェイインターフェース。
type ChatGateway interface {
	Handle(ctx context.Context, req chat.Request) (*chat.Result, error)
}

// ChatHandler はクレジット課金付きチャットのHTTPハンドラー。
type ChatHandler struct {
	gateway   ChatGateway
	errorMode string
}

// NewChatHandler はChatHandlerを生成する。
// errorModeが config.ErrorModeLegacy の場合、すべてのエラーを500で返す。
func NewChatHandler(gateway ChatGateway, errorMode string) *ChatHandler {
	if errorMode == "" {
		errorMode = config.ErrorModeStrict
	}
	return &ChatHandler{gateway: gateway, errorMode: errorMode}
}

type chatRequest struct {
	Message             string               `json:"message"`
	ConversationHistory []model.HistoryEntry `json:"conversationHistory"`
}

type chatResponse struct {
	Response         string `json:"response"`
	RemainingCredits int    `json:"remainingCredits"`
}

// chatErrorResponse はチャットAPIのエラー本文。legacyモードではcodeを省略する。
type chatErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Chat はチャット1回分を処理する。
// POST /api/chat, POST /functions/v1/aira-chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, model.NewInvalidRequestError("Invalid request body"))
		return
	}

	// トークンが無い場合は空文字で渡し、ゲートウェイ側で判定する
	token, _ := auth.BearerToken(r)

	result, err := h.gateway.Handle(r.Context(), chat.Request{
		AuthToken: token,
		Message:   req.Message,
		History:   req.ConversationHistory,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	middleware.AnnotateUserID(r.Context(), result.UserID)
	middleware.WriteJSON(w, http.StatusOK, chatResponse{
		Response:         result.Reply,
		RemainingCredits: result.RemainingCredits,
	})
}

func (h *ChatHandler) writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		slog.Error("unexpected chat error", slog.String("error", err.Error()))
		apiErr = &model.APIError{Code: "INTERNAL_ERROR", Message: "Internal server error"}
	}

	if h.errorMode == config.ErrorModeLegacy {
		middleware.WriteJSON(w, http.StatusInternalServerError, chatErrorResponse{Error: apiErr.Message})
		return
	}
	middleware.WriteJSON(w, mapAPIErrorToHTTPStatus(apiErr), chatErrorResponse{
		Error: apiErr.Message,
		Code:  apiErr.Code,
	})
}
