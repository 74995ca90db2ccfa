// handler.go provides HTTP REST API handlers for the bridge.
//
// This inbound adapter exposes the registry administration and order
// execution services over HTTP:
//   - POST   /v1/machines              register a machine (owner only)
//   - GET    /v1/machines/{address}    look up a machine
//   - DELETE /v1/machines/{address}    deregister a machine (owner only)
//   - PUT    /v1/machines/{address}/fees  replace both fees (owner only)
//   - POST   /v1/owner/transfer        transfer registry ownership
//   - POST   /v1/orders/buy            execute a base-to-target order
//   - POST   /v1/orders/sell           execute a target-to-base order
//   - GET    /health                   health check
//   - GET    /health/ready             readiness probe (503 while draining)
//   - GET    /health/live              liveness probe
//
// Caller identity arrives in the X-Caller-Address header, set by the
// upstream gateway after signature verification; this adapter trusts it.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bridgefi/mxbridge/internal/domain"
	"github.com/bridgefi/mxbridge/internal/ports/inbound"
)

// CallerHeader carries the authenticated caller address.
const CallerHeader = "X-Caller-Address"

// Handler implements HTTP handlers for the API.
type Handler struct {
	exchange     inbound.ExchangeService
	admin        inbound.RegistryAdminService
	health       inbound.HealthChecker
	logger       *slog.Logger
	shuttingDown atomic.Bool
}

// NewHandler creates a new HTTP handler with the given services.
func NewHandler(exchange inbound.ExchangeService, admin inbound.RegistryAdminService, health inbound.HealthChecker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		exchange: exchange,
		admin:    admin,
		health:   health,
		logger:   logger.With("component", "http-handler"),
	}
}

// RegisterRoutes registers the HTTP routes with the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/ready", h.HandleReady)
	mux.HandleFunc("GET /health/live", h.HandleLive)
	mux.HandleFunc("POST /v1/machines", h.AddMachine)
	mux.HandleFunc("GET /v1/machines/{address}", h.GetMachine)
	mux.HandleFunc("DELETE /v1/machines/{address}", h.RemoveMachine)
	mux.HandleFunc("PUT /v1/machines/{address}/fees", h.EditMachineFees)
	mux.HandleFunc("POST /v1/owner/transfer", h.TransferOwnership)
	mux.HandleFunc("POST /v1/orders/buy", h.OrderBuy)
	mux.HandleFunc("POST /v1/orders/sell", h.OrderSell)
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Ping(r.Context()); err != nil {
		h.respondError(w, http.StatusServiceUnavailable, "service unhealthy")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type machineResponse struct {
	Address string `json:"address"`
	BuyFee  uint64 `json:"buyFee"`
	SellFee uint64 `json:"sellFee"`
}

// AddMachine registers a new machine with default fees.
func (h *Handler) AddMachine(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Machine string `json:"machine"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	machine, ok := h.parseAddress(w, req.Machine, "machine")
	if !ok {
		return
	}

	added, err := h.admin.AddMachine(r.Context(), caller, machine)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, machineResponse{
		Address: added.AddressHex(),
		BuyFee:  added.BuyFee,
		SellFee: added.SellFee,
	})
}

// GetMachine looks up a registered machine. Not gated.
func (h *Handler) GetMachine(w http.ResponseWriter, r *http.Request) {
	machine, ok := h.parseAddress(w, r.PathValue("address"), "address")
	if !ok {
		return
	}
	m, err := h.admin.GetMachine(r.Context(), machine)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	if m == nil {
		h.respondError(w, http.StatusNotFound, "machine not registered")
		return
	}
	h.respondJSON(w, http.StatusOK, machineResponse{
		Address: m.AddressHex(),
		BuyFee:  m.BuyFee,
		SellFee: m.SellFee,
	})
}

// RemoveMachine deregisters a machine. Removing an absent machine succeeds.
func (h *Handler) RemoveMachine(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	machine, ok := h.parseAddress(w, r.PathValue("address"), "address")
	if !ok {
		return
	}
	if err := h.admin.RemoveMachine(r.Context(), caller, machine); err != nil {
		h.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EditMachineFees replaces both fees of a registered machine.
func (h *Handler) EditMachineFees(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	machine, ok := h.parseAddress(w, r.PathValue("address"), "address")
	if !ok {
		return
	}
	var req struct {
		BuyFee  uint64 `json:"buyFee"`
		SellFee uint64 `json:"sellFee"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	edited, err := h.admin.EditMachineFees(r.Context(), caller, machine, req.BuyFee, req.SellFee)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, machineResponse{
		Address: edited.AddressHex(),
		BuyFee:  edited.BuyFee,
		SellFee: edited.SellFee,
	})
}

// TransferOwnership hands the registry to a new owner.
func (h *Handler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		NewOwner string `json:"newOwner"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	newOwner, ok := h.parseAddress(w, req.NewOwner, "newOwner")
	if !ok {
		return
	}
	if err := h.admin.TransferOwnership(r.Context(), caller, newOwner); err != nil {
		h.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type orderResponse struct {
	Direction   string `json:"direction"`
	GrossAmount uint64 `json:"grossAmount"`
	NetAmount   uint64 `json:"netAmount"`
	AmountOut   string `json:"amountOut"`
}

// OrderBuy executes a base-to-target order for the calling machine.
func (h *Handler) OrderBuy(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount    uint64 `json:"amount"`
		Tolerance uint64 `json:"tolerance"`
		User      string `json:"user"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	user, ok := h.parseAddress(w, req.User, "user")
	if !ok {
		return
	}

	receipt, err := h.exchange.OrderBaseToTarget(r.Context(), caller, req.Amount, req.Tolerance, user)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondReceipt(w, receipt)
}

// OrderSell executes a target-to-base order for the calling machine.
func (h *Handler) OrderSell(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount uint64 `json:"amount"`
		User   string `json:"user"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	user, ok := h.parseAddress(w, req.User, "user")
	if !ok {
		return
	}

	receipt, err := h.exchange.OrderTargetToBase(r.Context(), caller, req.Amount, user)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondReceipt(w, receipt)
}

func (h *Handler) respondReceipt(w http.ResponseWriter, receipt *inbound.OrderReceipt) {
	h.respondJSON(w, http.StatusOK, orderResponse{
		Direction:   string(receipt.Direction),
		GrossAmount: receipt.GrossAmount,
		NetAmount:   receipt.NetAmount,
		AmountOut:   receipt.AmountOut.String(),
	})
}

// caller extracts the authenticated caller address from the request header.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := r.Header.Get(CallerHeader)
	if raw == "" {
		h.respondError(w, http.StatusUnauthorized, "missing caller identity")
		return common.Address{}, false
	}
	if !common.IsHexAddress(raw) {
		h.respondError(w, http.StatusUnauthorized, "malformed caller identity")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (h *Handler) parseAddress(w http.ResponseWriter, raw, field string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		h.respondError(w, http.StatusBadRequest, "invalid address in field "+field)
		return common.Address{}, false
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		h.respondError(w, http.StatusBadRequest, "zero address in field "+field)
		return common.Address{}, false
	}
	return addr, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.respondError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

// respondDomainError maps the domain error taxonomy onto HTTP status codes.
func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotOwner),
		errors.Is(err, domain.ErrUnauthorizedMachine):
		h.respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrAlreadyRegistered):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotRegistered):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrFeeOutOfRange),
		errors.Is(err, domain.ErrArithmeticOverflow),
		errors.Is(err, domain.ErrInvalidOrder):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrRouterFailure):
		h.respondError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
