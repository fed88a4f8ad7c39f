package persona

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mharburg8/talk-to-your-inner-child/internal/auth"
	"github.com/mharburg8/talk-to-your-inner-child/internal/logging"
	"github.com/mharburg8/talk-to-your-inner-child/internal/model/persona"
	personaService "github.com/mharburg8/talk-to-your-inner-child/internal/service/persona"
	"github.com/mharburg8/talk-to-your-inner-child/pkg/utils"
)

// PersonaService 人格业务，便于测试替换。
type PersonaService interface {
	List(ctx context.Context, userID string) ([]personaService.Summary, error)
	Create(ctx context.Context, userID string, in persona.CreateInput) (persona.Persona, error)
	Get(ctx context.Context, userID, id string) (personaService.Detail, error)
	Update(ctx context.Context, userID, id string, in persona.UpdateInput) (persona.Persona, error)
	Delete(ctx context.Context, userID, id string) error
	UploadURL(ctx context.Context, userID, personaID string, req personaService.UploadRequest) (personaService.UploadTicket, error)
	ConfirmMedia(ctx context.Context, userID, personaID string, in personaService.ConfirmInput) (persona.Media, error)
}

// Handler persona服务的HTTP处理器
type Handler struct {
	personas PersonaService
	logger   logging.Logger
}

// New 创建persona处理器
func New(personas PersonaService, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Handler{
		personas: personas,
		logger:   logger.With("component", "persona_handler"),
	}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/personas", func(pr chi.Router) {
		pr.Get("/", h.handleList)
		pr.Post("/", h.handleCreate)
		pr.Get("/{personaID}", h.handleGet)
		pr.Patch("/{personaID}", h.handleUpdate)
		pr.Delete("/{personaID}", h.handleDelete)
		pr.Post("/{personaID}/media/upload-url", h.handleUploadURL)
		pr.Post("/{personaID}/media/confirm", h.handleConfirmMedia)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	personas, err := h.personas.List(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"personas": personas})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in persona.CreateInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.personas.Create(r.Context(), userID, in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, map[string]any{"persona": p})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	detail, err := h.personas.Get(r.Context(), userID, chi.URLParam(r, "personaID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"persona": detail})
}

// handleUpdate 部分更新，请求里带 ageNumber 会因未知字段被拒绝。
func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in persona.UpdateInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.personas.Update(r.Context(), userID, chi.URLParam(r, "personaID"), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"persona": p})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.personas.Delete(r.Context(), userID, chi.URLParam(r, "personaID")); err != nil {
		h.respondError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req personaService.UploadRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	ticket, err := h.personas.UploadURL(r.Context(), userID, chi.URLParam(r, "personaID"), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleConfirmMedia(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in personaService.ConfirmInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	media, err := h.personas.ConfirmMedia(r.Context(), userID, chi.URLParam(r, "personaID"), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, map[string]any{"media": media})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, persona.ErrInvalid):
		utils.RespondErrorCode(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, persona.ErrNotFound):
		utils.RespondErrorCode(w, http.StatusNotFound, "NOT_FOUND", "persona not found")
	case errors.Is(err, personaService.ErrForbiddenKey):
		utils.RespondErrorCode(w, http.StatusForbidden, "FORBIDDEN", "invalid storage key")
	default:
		h.logger.Error(r.Context(), "persona request failed", "path", r.URL.Path, "error", err)
		utils.RespondErrorCode(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
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
