package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	kafkax "github.com/ariefcatur/go-digital-library/internal/kafka"
	"github.com/ariefcatur/go-digital-library/internal/library"
	"github.com/ariefcatur/go-digital-library/internal/logger"
	"github.com/ariefcatur/go-digital-library/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type OrderRepo interface {
	CreateOrderTx(ctx context.Context, externalID string, c orders.Customer, items []orders.ItemInput) (string, int, bool, error)
	GetOrder(ctx context.Context, orderID string) (orders.Order, error)
	GetOrderStatus(ctx context.Context, orderID string) (orders.Status, error)
	UpdateStatus(ctx context.Context, orderID string, to orders.Status) (orders.Status, error)
	ListProducts(ctx context.Context) ([]orders.Product, error)
}

// Fulfiller is called inline after every committed status change.
type Fulfiller interface {
	OnStatusChanged(ctx context.Context, orderID string, from, to orders.Status) (library.Result, error)
}

type StatusCache interface {
	Get(ctx context.Context, orderID string) (string, bool)
	Set(ctx context.Context, orderID string, body []byte)
}

type OrdersHandler struct {
	Repo      OrderRepo
	Fulfiller Fulfiller
	Producer  library.Publisher
	Cache     StatusCache // optional
	Validate  *validator.Validate
	Service   string
	Log       *zap.Logger
}

type CreateOrderReq struct {
	ExternalID string             `json:"external_id" validate:"required"`
	Customer   orders.Customer    `json:"customer"`
	Items      []orders.ItemInput `json:"items" validate:"required,min=1,dive"`
}

type CreateOrderResp struct {
	OrderID    string `json:"order_id"`
	TotalCents int    `json:"total_cents"`
	Idempotent bool   `json:"idempotent"`
}

type UpdateStatusReq struct {
	Status orders.Status `json:"status" validate:"required,oneof=pending processing shipped delivered cancelled returned"`
}

type UpdateStatusResp struct {
	OrderID            string          `json:"order_id"`
	From               orders.Status   `json:"from"`
	To                 orders.Status   `json:"to"`
	Fulfillment        *library.Result `json:"fulfillment,omitempty"`
	FulfillmentWarning string          `json:"fulfillment_warning,omitempty"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Patch("/orders/{id}/status", h.updateStatus)
	r.Get("/products", h.listProducts)
}

// publish sends an order event keyed (and correlated) by orderID.
func (h *OrdersHandler) publish(ctx context.Context, orderID, eventType, traceID string, payload any) {
	if h.Producer == nil {
		return
	}
	ev, err := orders.NewEnvelope(eventType, h.Service, orderID, traceID, payload)
	if err != nil {
		logger.FromContext(ctx, h.Log).Warn("build event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	h.Producer.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev), kafkax.EventHeaders(ev.EventType, ev.EventVersion)...)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Repo.ListProducts(ctx)
	if err != nil {
		logger.FromContext(ctx, h.Log).Error("list products", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if ps == nil {
		ps = []orders.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if !bindJSON(w, r, h.Validate, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orderID, total, existed, err := h.Repo.CreateOrderTx(ctx, req.ExternalID, req.Customer, req.Items)
	if errors.Is(err, orders.ErrInvalidItem) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		logger.FromContext(ctx, h.Log).Error("create order", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if !existed {
		if h.Cache != nil {
			h.Cache.Set(ctx, orderID, statusBody(orders.StatusPending))
		}
		h.publish(ctx, orderID, orders.EventOrderCreated, r.Header.Get("X-Request-Id"), orders.OrderCreatedPayload{
			OrderID:       orderID,
			ExternalID:    req.ExternalID,
			UserID:        req.Customer.UserID,
			CustomerEmail: req.Customer.Email,
			Items:         req.Items,
			TotalCents:    total,
		})
	}

	writeJSON(w, http.StatusAccepted, CreateOrderResp{OrderID: orderID, TotalCents: total, Idempotent: existed})
}

func statusBody(s orders.Status) []byte {
	b, _ := json.Marshal(map[string]any{"status": s})
	return b
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Cache != nil {
		if s, ok := h.Cache.Get(ctx, orderID); ok {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	status, err := h.Repo.GetOrderStatus(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		logger.FromContext(ctx, h.Log).Error("get order status", zap.String("order_id", orderID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	b := statusBody(status)
	if h.Cache != nil {
		h.Cache.Set(ctx, orderID, b)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// updateStatus commits the new status first. Fulfillment runs afterwards and its
// failure is reported as a warning; the status change stands either way.
func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req UpdateStatusReq
	if !bindJSON(w, r, h.Validate, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	log := logger.FromContext(ctx, h.Log).With(zap.String("order_id", orderID))

	from, err := h.Repo.UpdateStatus(ctx, orderID, req.Status)
	switch {
	case errors.Is(err, orders.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
		return
	case errors.Is(err, orders.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		log.Error("update order status", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if h.Cache != nil {
		h.Cache.Set(ctx, orderID, statusBody(req.Status))
	}
	payload := orders.OrderStatusChangedPayload{OrderID: orderID, From: from, To: req.Status}
	if o, err := h.Repo.GetOrder(ctx, orderID); err == nil {
		payload.UserID, payload.CustomerEmail = o.UserID, o.CustomerEmail
	}
	h.publish(ctx, orderID, orders.EventOrderStatusChanged, r.Header.Get("X-Request-Id"), payload)

	resp := UpdateStatusResp{OrderID: orderID, From: from, To: req.Status}
	if h.Fulfiller != nil {
		res, ferr := h.Fulfiller.OnStatusChanged(ctx, orderID, from, req.Status)
		if !res.Skipped || ferr != nil {
			resp.Fulfillment = &res
		}
		if ferr != nil {
			log.Warn("fulfillment after status change failed", zap.String("to", string(req.Status)), zap.Error(ferr))
			resp.FulfillmentWarning = ferr.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
