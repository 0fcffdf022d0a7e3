package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rl1809/stock-sync/internal/core/domain"
	"github.com/rl1809/stock-sync/internal/core/service"
	"github.com/rl1809/stock-sync/internal/logging"
)

// StockService is the part of service.StockService the HTTP surface drives.
type StockService interface {
	SetStock(ctx context.Context, productID, quantity int64) (string, error)
	GetStock(ctx context.Context, productID int64) (domain.CacheEntry, error)
	ApplyOrder(ctx context.Context, orderID string, items []domain.Item, op domain.Operation) (map[int64]int64, error)
	Rehydrate(ctx context.Context) (int, error)
}

type HTTPHandler struct {
	stocks StockService
	ping   func(context.Context) error
}

type SetStockHTTPRequest struct {
	ProductID *int64 `json:"product_id"`
	Quantity  *int64 `json:"quantity"`
}

type AdjustStockHTTPRequest struct {
	OrderID string           `json:"order_id"`
	Items   []domain.ItemMap `json:"items"`
}

type StockHTTPResponse struct {
	ProductID int64   `json:"product_id"`
	Quantity  int64   `json:"quantity"`
	Name      string  `json:"name,omitempty"`
	SKU       string  `json:"sku,omitempty"`
	Price     *string `json:"price,omitempty"`
}

type HTTPResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// NewHTTPHandler builds the handler. ping reports backend readiness for
// /health and may be nil.
func NewHTTPHandler(stocks StockService, ping func(context.Context) error) *HTTPHandler {
	return &HTTPHandler{stocks: stocks, ping: ping}
}

func (h *HTTPHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("POST /api/stocks", h.SetStock)
	mux.HandleFunc("GET /api/stocks/{id}", h.GetStock)
	mux.HandleFunc("POST /api/stocks/rehydrate", h.Rehydrate)
	mux.HandleFunc("POST /api/stocks/{op}", h.AdjustStock)
	mux.Handle("GET /metrics", promhttp.Handler())

	return RequestID(mux)
}

func (h *HTTPHandler) SetStock(w http.ResponseWriter, r *http.Request) {
	var req SetStockHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, HTTPResponse{Message: "invalid request body"})
		return
	}
	if req.ProductID == nil || req.Quantity == nil {
		writeJSON(w, http.StatusBadRequest, HTTPResponse{Message: "missing required fields"})
		return
	}

	msg, err := h.stocks.SetStock(r.Context(), *req.ProductID, *req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, HTTPResponse{Success: true, Message: msg})
}

func (h *HTTPHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, HTTPResponse{Message: "invalid product id"})
		return
	}

	entry, err := h.stocks.GetStock(r.Context(), productID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := StockHTTPResponse{
		ProductID: entry.ProductID,
		Quantity:  entry.Quantity,
		Name:      entry.Name,
		SKU:       entry.SKU,
	}
	if entry.Price.Valid {
		price := entry.Price.Decimal.String()
		resp.Price = &price
	}
	writeJSON(w, http.StatusOK, HTTPResponse{Success: true, Data: resp})
}

// AdjustStock serves /api/stocks/check-out, /api/stocks/check-in and the
// other spellings ParseOperation accepts.
func (h *HTTPHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	op, err := domain.ParseOperation(r.PathValue("op"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, HTTPResponse{Message: "unknown stock operation"})
		return
	}

	var req AdjustStockHTTPRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, HTTPResponse{Message: "invalid request body"})
		return
	}

	items := make([]domain.Item, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, item)
	}

	quantities, err := h.stocks.ApplyOrder(r.Context(), req.OrderID, items, op)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, HTTPResponse{Success: true, Message: op.String() + " applied", Data: quantities})
}

func (h *HTTPHandler) Rehydrate(w http.ResponseWriter, r *http.Request) {
	n, err := h.stocks.Rehydrate(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, HTTPResponse{Success: true, Message: "cache rehydrated", Data: map[string]int{"entries": n}})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			logging.FromContext(r.Context()).WithError(err).Warn("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, domain.ErrInvalidItem), errors.Is(err, domain.ErrInvalidOperation):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, domain.ErrStockNotFound):
		status = http.StatusNotFound
		message = "stock not found"
	case errors.Is(err, service.ErrDuplicateRequest):
		status = http.StatusConflict
		message = "duplicate request"
	case errors.Is(err, service.ErrRehydrationInProgress):
		status = http.StatusConflict
		message = "rehydration in progress"
	default:
		logging.FromContext(r.Context()).WithError(err).Error("request failed")
	}

	writeJSON(w, status, HTTPResponse{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
