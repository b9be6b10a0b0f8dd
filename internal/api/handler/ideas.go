package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/ideahub/internal/api/middleware"
	"github.com/kiranshivaraju/ideahub/internal/api/response"
	"github.com/kiranshivaraju/ideahub/internal/idea"
	"github.com/kiranshivaraju/ideahub/internal/store"
	"github.com/kiranshivaraju/ideahub/pkg/models"
)

// IdeaService defines the operations the idea handlers depend on.
type IdeaService interface {
	List(ctx context.Context, filter store.IdeaFilter) ([]*models.Idea, int, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Idea, error)
	Create(ctx context.Context, ownerID uuid.UUID, payload map[string]any) (*models.Idea, error)
	Update(ctx context.Context, ownerID, id uuid.UUID, payload map[string]any) (*models.Idea, error)
	Archive(ctx context.Context, ownerID, id uuid.UUID) (*models.Idea, error)
}

// Ideas serves the /ideas resource. Every handler expects Authenticate to
// have run.
type Ideas struct {
	svc          IdeaService
	maxBodyBytes int64
}

// NewIdeas creates the idea handlers. Request bodies over maxBodyBytes are
// rejected with 413.
func NewIdeas(svc IdeaService, maxBodyBytes int64) *Ideas {
	return &Ideas{svc: svc, maxBodyBytes: maxBodyBytes}
}

// List handles GET /ideas.
func (h *Ideas) List(w http.ResponseWriter, r *http.Request) {
	key, ok := keyOrUnauthorized(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := store.IdeaFilter{
		OwnerID: key.OwnerID,
		Status:  q.Get("status"),
		Search:  strings.TrimSpace(q.Get("search")),
		Tag:     strings.TrimSpace(q.Get("tag")),
		Limit:   parseLimit(q.Get("limit")),
		Offset:  parseOffset(q.Get("offset")),
	}

	ideas, total, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ideas == nil {
		ideas = []*models.Idea{}
	}

	response.Collection(w, ideas, response.PaginationMeta{
		Limit:  filter.Limit,
		Offset: filter.Offset,
		Count:  total,
	})
}

// Get handles GET /ideas/{id}.
func (h *Ideas) Get(w http.ResponseWriter, r *http.Request) {
	key, ok := keyOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := ideaID(w, r)
	if !ok {
		return
	}

	i, err := h.svc.Get(r.Context(), key.OwnerID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, i)
}

// Create handles POST /ideas.
func (h *Ideas) Create(w http.ResponseWriter, r *http.Request) {
	key, ok := keyOrUnauthorized(w, r)
	if !ok {
		return
	}
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}

	i, err := h.svc.Create(r.Context(), key.OwnerID, payload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, i)
}

// Update handles PUT /ideas/{id}.
func (h *Ideas) Update(w http.ResponseWriter, r *http.Request) {
	key, ok := keyOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := ideaID(w, r)
	if !ok {
		return
	}
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}

	i, err := h.svc.Update(r.Context(), key.OwnerID, id, payload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, i)
}

// Delete handles DELETE /ideas/{id} by archiving the idea.
func (h *Ideas) Delete(w http.ResponseWriter, r *http.Request) {
	key, ok := keyOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := ideaID(w, r)
	if !ok {
		return
	}

	i, err := h.svc.Archive(r.Context(), key.OwnerID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Message(w, i, "Idea archived successfully")
}

// MissingID answers PUT and DELETE on the collection.
func MissingID(w http.ResponseWriter, _ *http.Request) {
	response.Error(w, http.StatusBadRequest, "Idea ID is required", nil)
}

// MethodNotAllowed answers verbs the resource does not support.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
}

// decode reads a body holding exactly one JSON object. Anything else is a
// 400, and an oversized body is a 413.
func (h *Ideas) decode(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	defer body.Close()

	dec := json.NewDecoder(body)
	var payload map[string]any
	err := dec.Decode(&payload)
	if err == nil {
		// Trailing data after the object.
		if err = dec.Decode(&struct{}{}); errors.Is(err, io.EOF) {
			err = nil
		} else if err == nil {
			err = errTrailingData
		}
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
			return nil, false
		}
		response.Error(w, http.StatusBadRequest, "Invalid JSON body", nil)
		return nil, false
	}
	if payload == nil {
		response.Error(w, http.StatusBadRequest, "Invalid JSON body", nil)
		return nil, false
	}
	return payload, true
}

var errTrailingData = errors.New("trailing data after JSON body")

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *idea.ValidationError
	switch {
	case errors.As(err, &verr):
		response.Error(w, http.StatusBadRequest, "Validation failed", verr.Details)
	case errors.Is(err, idea.ErrContentTooLarge):
		response.Error(w, http.StatusBadRequest, "Content too large", nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "Idea not found", nil)
	default:
		slog.Error("idea request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
		)
		response.Error(w, http.StatusInternalServerError, "An unexpected error occurred", nil)
	}
}

func keyOrUnauthorized(w http.ResponseWriter, r *http.Request) (*models.KeyRecord, bool) {
	key, ok := mw.GetKeyRecord(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "API key required. Include x-api-key header.", nil)
	}
	return key, ok
}

// ideaID parses the {id} path parameter. A malformed id cannot name an
// existing idea, so it is reported as not found.
func ideaID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusNotFound, "Idea not found", nil)
		return uuid.Nil, false
	}
	return id, true
}

func parseLimit(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return store.DefaultLimit
	}
	if n < 1 {
		return 1
	}
	if n > store.MaxLimit {
		return store.MaxLimit
	}
	return n
}

func parseOffset(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
