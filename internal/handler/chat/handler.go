package chat

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mharburg8/talk-to-your-inner-child/internal/auth"
	"github.com/mharburg8/talk-to-your-inner-child/internal/logging"
	chatmodel "github.com/mharburg8/talk-to-your-inner-child/internal/model/chat"
	speechmodel "github.com/mharburg8/talk-to-your-inner-child/internal/model/speech"
	chatService "github.com/mharburg8/talk-to-your-inner-child/internal/service/chat"
	"github.com/mharburg8/talk-to-your-inner-child/pkg/utils"
)

// DefaultMaxAudioBytes 未配置时的录音大小上限。
const DefaultMaxAudioBytes = 10 << 20

// multipartOverhead 表单边界和其他字段允许占用的额外字节。
const multipartOverhead = 1 << 20

// ChatService 会话业务，便于测试替换。
type ChatService interface {
	CreateSession(ctx context.Context, userID, personaID string) (chatService.CreateSessionResult, error)
	GetSession(ctx context.Context, userID, sessionID string) (chatService.SessionDetail, error)
	ListSessions(ctx context.Context, userID string) ([]chatmodel.SessionSummary, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
	Turn(ctx context.Context, in chatService.TurnInput) (chatService.TurnResult, error)
}

// Handler 会话相关的HTTP处理器
type Handler struct {
	chatSvc       ChatService
	maxAudioBytes int64
	logger        logging.Logger
}

// New 创建会话处理器
func New(chatSvc ChatService, maxAudioBytes int64, logger logging.Logger) *Handler {
	if maxAudioBytes <= 0 {
		maxAudioBytes = DefaultMaxAudioBytes
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Handler{
		chatSvc:       chatSvc,
		maxAudioBytes: maxAudioBytes,
		logger:        logger.With("component", "chat_handler"),
	}
}

// RegisterRoutes 注册会话路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(sr chi.Router) {
		sr.Get("/", h.handleListSessions)
		sr.Post("/", h.handleCreateSession)
		sr.Get("/{sessionID}", h.handleGetSession)
		sr.Delete("/{sessionID}", h.handleDeleteSession)
		sr.Post("/{sessionID}/turn", h.handleTurn)
	})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	sessions, err := h.chatSvc.ListSessions(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var payload struct {
		PersonaID string `json:"personaId"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondErrorCode(w, http.StatusBadRequest, string(chatService.ErrorInvalidInput), err.Error())
		return
	}

	result, err := h.chatSvc.CreateSession(r.Context(), userID, payload.PersonaID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	detail, err := h.chatSvc.GetSession(r.Context(), userID, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"session": detail})
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.chatSvc.DeleteSession(r.Context(), userID, chi.URLParam(r, "sessionID")); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleTurn 接收 multipart 表单中的 audio 字段，执行一次语音回合。
func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit := h.maxAudioBytes + multipartOverhead
	if r.ContentLength > limit {
		h.respondTooLarge(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.respondTooLarge(w)
			return
		}
		utils.RespondErrorCode(w, http.StatusBadRequest, string(chatService.ErrorInvalidInput), "failed to parse multipart form")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondErrorCode(w, http.StatusBadRequest, string(chatService.ErrorInvalidInput), "audio file is required")
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if !speechmodel.IsAllowedAudioType(mimeType) {
		utils.RespondErrorCode(w, http.StatusUnsupportedMediaType, string(chatService.ErrorInvalidInput),
			"unsupported audio type; allowed: wav, mp3, webm, ogg")
		return
	}
	if header.Size > h.maxAudioBytes {
		h.respondTooLarge(w)
		return
	}

	audio, err := io.ReadAll(io.LimitReader(file, h.maxAudioBytes+1))
	if err != nil {
		utils.RespondErrorCode(w, http.StatusBadRequest, string(chatService.ErrorInvalidInput), "failed to read audio")
		return
	}
	if int64(len(audio)) > h.maxAudioBytes {
		h.respondTooLarge(w)
		return
	}

	result, err := h.chatSvc.Turn(r.Context(), chatService.TurnInput{
		UserID:    userID,
		SessionID: chi.URLParam(r, "sessionID"),
		Audio:     audio,
		MimeType:  speechmodel.NormalizeMimeType(mimeType),
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) respondTooLarge(w http.ResponseWriter) {
	utils.RespondErrorCode(w, http.StatusRequestEntityTooLarge, string(chatService.ErrorInvalidInput), "audio file too large")
}

// respondServiceError 把业务错误码映射为 HTTP 状态；内部错误不向客户端暴露细节。
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := chatService.CodeOf(err)
	status := StatusForCode(code)

	message := "internal error"
	var svcErr *chatService.Error
	if errors.As(err, &svcErr) && status < http.StatusInternalServerError {
		message = svcErr.Reason
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "code", code, "error", err)
		if code == chatService.ErrorProvider {
			message = "upstream provider failed"
		}
	}
	utils.RespondErrorCode(w, status, string(code), message)
}

// StatusForCode 业务错误码对应的 HTTP 状态码。
func StatusForCode(code chatService.ErrorCode) int {
	switch code {
	case chatService.ErrorInvalidInput, chatService.ErrorVoiceReferenceMissing:
		return http.StatusBadRequest
	case chatService.ErrorNotFound:
		return http.StatusNotFound
	case chatService.ErrorLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserID(r.Context())
	if !ok || userID == "" {
		utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return userID, true
}
