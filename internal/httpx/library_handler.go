package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/go-digital-library/internal/library"
	"github.com/ariefcatur/go-digital-library/internal/logger"
	"github.com/ariefcatur/go-digital-library/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type LibraryService interface {
	Library(ctx context.Context, userID string) ([]library.Entitlement, error)
	SyncEntitlements(ctx context.Context, userID string) (int, error)
	UpdateProgress(ctx context.Context, userID, productID string, position int) error
	TriggerFulfillment(ctx context.Context, orderID string) (library.Result, error)
}

type LibraryHandler struct {
	Svc        LibraryService
	Subscriber library.Subscriber // optional; enables the events stream
	Validate   *validator.Validate
	Log        *zap.Logger
}

type ProgressReq struct {
	LastPosition *int `json:"last_position" validate:"required,min=0"`
}

type SyncResp struct {
	UserID  string `json:"user_id"`
	Granted int    `json:"granted"`
}

func (h *LibraryHandler) Register(r chi.Router) {
	r.Get("/library/{user_id}", h.list)
	r.Post("/library/{user_id}/sync", h.sync)
	r.Put("/library/{user_id}/items/{product_id}/progress", h.progress)
	r.Get("/library/{user_id}/events", h.events)
	r.Post("/orders/{id}/fulfill", h.fulfill)
}

func (h *LibraryHandler) list(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	items, err := h.Svc.Library(ctx, userID)
	if err != nil {
		logger.FromContext(ctx, h.Log).Error("list library", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *LibraryHandler) sync(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	n, err := h.Svc.SyncEntitlements(ctx, userID)
	if errors.Is(err, library.ErrNoIdentity) {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}
	if err != nil {
		logger.FromContext(ctx, h.Log).Warn("library sync failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SyncResp{UserID: userID, Granted: n})
}

func (h *LibraryHandler) progress(w http.ResponseWriter, r *http.Request) {
	userID, productID := chi.URLParam(r, "user_id"), chi.URLParam(r, "product_id")
	var req ProgressReq
	if !bindJSON(w, r, h.Validate, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	err := h.Svc.UpdateProgress(ctx, userID, productID, *req.LastPosition)
	switch {
	case errors.Is(err, library.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, library.ErrInvalidPosition):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		logger.FromContext(ctx, h.Log).Error("update progress", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// fulfill re-runs fulfillment for one order on demand.
func (h *LibraryHandler) fulfill(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Svc.TriggerFulfillment(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "fulfillment": res})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// events relays library change notifications as server-sent events until the client
// goes away.
func (h *LibraryHandler) events(w http.ResponseWriter, r *http.Request) {
	if h.Subscriber == nil {
		writeError(w, http.StatusNotImplemented, "live updates disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	userID := chi.URLParam(r, "user_id")
	ctx := r.Context()

	msgs, closeFn, err := h.Subscriber.Subscribe(ctx, userID)
	if err != nil {
		logger.FromContext(ctx, h.Log).Warn("library subscribe", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "live updates unavailable")
		return
	}
	defer closeFn()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(25 * time.Second)
	defer keepAlive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case m, ok := <-msgs:
			if !ok {
				return
			}
			_, _ = fmt.Fprintf(w, "event: library\ndata: %s\n\n", m)
			flusher.Flush()
		}
	}
}
