package stockups

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-wms/meridian-wms/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the stockups module. Only read access and
// operator recovery are exposed; the external integration layer drives the
// forward lifecycle in-process.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the stockups handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers stockup routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/reset", h.handleReset)
}

// OperationResponse is the JSON representation of an operation.
type OperationResponse struct {
	ID             int64      `json:"id"`
	DocumentNumber string     `json:"document_number"`
	SourceType     string     `json:"source_type"`
	SourceID       int64      `json:"source_id"`
	ProductCode    string     `json:"product_code"`
	Amount         float64    `json:"amount"`
	State          string     `json:"state"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	VerifiedAt     *time.Time `json:"verified_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`
}

func toOperationResponse(op Operation) OperationResponse {
	return OperationResponse{
		ID:             op.ID,
		DocumentNumber: op.DocumentNumber,
		SourceType:     string(op.SourceType),
		SourceID:       op.SourceID,
		ProductCode:    op.ProductCode,
		Amount:         op.Amount,
		State:          string(op.State),
		ErrorMessage:   op.ErrorMessage,
		CreatedAt:      op.CreatedAt,
		SubmittedAt:    op.SubmittedAt,
		VerifiedAt:     op.VerifiedAt,
		CompletedAt:    op.CompletedAt,
		FailedAt:       op.FailedAt,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sourceType := SourceType(q.Get("source_type"))
	if sourceType == "" {
		sourceType = SourceBox
	}
	sourceID, err := strconv.ParseInt(q.Get("source_id"), 10, 64)
	if err != nil {
		httpx.BadRequest(w, "source_id is required")
		return
	}
	ops, err := h.service.ListBySource(r.Context(), sourceType, sourceID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	result := make([]OperationResponse, 0, len(ops))
	for _, op := range ops {
		result = append(result, toOperationResponse(op))
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.BadRequest(w, "invalid operation id")
		return
	}
	op, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOperationResponse(op))
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.BadRequest(w, "invalid operation id")
		return
	}
	op, err := h.service.Reset(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOperationResponse(op))
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var invalidErr *InvalidTransitionError
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.NotFound(w, "operation not found")
	case errors.Is(err, ErrTerminalConflict):
		httpx.Conflict(w, err.Error())
	case errors.As(err, &invalidErr):
		httpx.Unprocessable(w, invalidErr.Error())
	default:
		h.logger.Error("stockups request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Internal(w)
	}
}
