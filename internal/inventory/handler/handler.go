// Package handler exposes the reservation subsystem over HTTP. Handlers stay
// thin: decode, delegate to the service, encode.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"crossdock/internal/inventory/service"
	dErrors "crossdock/pkg/domain-errors"
)

type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the inventory and shipment routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/inventory", func(r chi.Router) {
		r.Get("/", h.listInventory)
		r.Post("/holds", h.reserveBatch)
		r.Route("/{productID}/{warehouseCode}", func(r chi.Router) {
			r.Get("/ledger", h.ledger)
			r.Post("/holds", h.reserve)
		})
	})
	r.Route("/api/shipments/{shipmentRef}", func(r chi.Router) {
		r.Post("/confirm", h.confirm)
		r.Post("/release", h.release)
	})
}

func (h *Handler) listInventory(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.ListInventory(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listInventoryResponse{Records: toRecordResponses(records)})
}

func (h *Handler) ledger(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	entries, err := h.svc.LedgerFor(r.Context(), chi.URLParam(r, "productID"), chi.URLParam(r, "warehouseCode"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ledgerResponse{Entries: entries})
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	hold, err := h.svc.Reserve(r.Context(), service.ReserveInput{
		ProductID:     chi.URLParam(r, "productID"),
		WarehouseCode: chi.URLParam(r, "warehouseCode"),
		ShipmentRef:   req.ShipmentRef,
		Quantity:      req.Quantity,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, holdResponse{Hold: *hold})
}

func (h *Handler) reserveBatch(w http.ResponseWriter, r *http.Request) {
	var req reserveBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	items := make([]service.BatchItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = service.BatchItem{
			ProductID:     item.ProductID,
			WarehouseCode: item.WarehouseCode,
			Quantity:      item.Quantity,
		}
	}

	holds, err := h.svc.ReserveBatch(r.Context(), req.ShipmentRef, items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, holdsResponse{Holds: holds})
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	confirmed, err := h.svc.Confirm(r.Context(), chi.URLParam(r, "shipmentRef"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, confirmResponse{Confirmed: confirmed})
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	released, err := h.svc.Release(r.Context(), chi.URLParam(r, "shipmentRef"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, releaseResponse{Released: released})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"code", code,
			"error", err,
		)
	}
	h.writeJSON(w, status, errorResponse{Error: errorBody{
		Code:    string(code),
		Message: publicMessage(err, status),
	}})
}

// publicMessage hides internal detail on 5xx responses.
func publicMessage(err error, status int) string {
	if status >= http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
