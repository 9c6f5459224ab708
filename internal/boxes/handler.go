package boxes

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-wms/meridian-wms/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the boxes module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the boxes handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers box routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/transition", h.handleTransition)
	r.Post("/{id}/items", h.handleAddItem)
	r.Delete("/{id}/items/{itemID}", h.handleRemoveItem)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateBoxRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	input := CreateInput{Code: req.Code, Description: req.Description}
	for _, item := range req.Items {
		input.Items = append(input.Items, ItemInput(item))
	}
	box, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBoxResponse(box))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.boxID(w, r)
	if !ok {
		return
	}
	box, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBoxResponse(box))
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.boxID(w, r)
	if !ok {
		return
	}
	var req TransitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	box, err := h.service.RequestTransition(r.Context(), id, State(req.Target), TransitionParams{
		Code:        req.Code,
		Location:    req.Location,
		Description: req.Description,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBoxResponse(box))
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.boxID(w, r)
	if !ok {
		return
	}
	var req ItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	item, err := h.service.AddItem(r.Context(), id, ItemInput(req))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ItemResponse{
		ID:          item.ID,
		ProductCode: item.ProductCode,
		ProductName: item.ProductName,
		Amount:      item.Amount,
	})
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.boxID(w, r)
	if !ok {
		return
	}
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		httpx.BadRequest(w, "invalid item id")
		return
	}
	if err := h.service.RemoveItem(r.Context(), id, itemID); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) boxID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.BadRequest(w, "invalid box id")
		return 0, false
	}
	return id, true
}

// respondError maps domain errors to problem responses. Infrastructure
// failures stay generic.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr  *ValidationError
		unsupportedErr *UnsupportedTransitionError
		conditionErr   *ConditionNotMetError
		duplicateErr   *DuplicateActiveCodeError
	)
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.NotFound(w, "box not found")
	case errors.Is(err, ErrConcurrencyConflict):
		httpx.Conflict(w, "box was modified concurrently, reload and retry")
	case errors.Is(err, ErrItemsLocked):
		httpx.Unprocessable(w, err.Error())
	case errors.As(err, &validationErr):
		httpx.BadRequest(w, validationErr.Error())
	case errors.As(err, &unsupportedErr):
		httpx.Unprocessable(w, unsupportedErr.Error())
	case errors.As(err, &conditionErr):
		httpx.Unprocessable(w, conditionErr.Error())
	case errors.As(err, &duplicateErr):
		httpx.Conflict(w, duplicateErr.Error())
	default:
		h.logger.Error("boxes request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Internal(w)
	}
}
