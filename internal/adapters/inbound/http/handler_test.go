package http

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bridgefi/mxbridge/internal/domain"
	"github.com/bridgefi/mxbridge/internal/domain/entity"
	"github.com/bridgefi/mxbridge/internal/ports/inbound"
)

var (
	ownerHex   = "0xAa00000000000000000000000000000000000001"
	machineHex = "0xBb00000000000000000000000000000000000001"
	userHex    = "0xCc00000000000000000000000000000000000001"
)

// stubAdmin implements inbound.RegistryAdminService with scriptable results.
type stubAdmin struct {
	machine *entity.Machine
	err     error

	lastCaller common.Address
}

func (s *stubAdmin) AddMachine(ctx context.Context, caller, machine common.Address) (*entity.Machine, error) {
	s.lastCaller = caller
	return s.machine, s.err
}

func (s *stubAdmin) RemoveMachine(ctx context.Context, caller, machine common.Address) error {
	s.lastCaller = caller
	return s.err
}

func (s *stubAdmin) EditMachineFees(ctx context.Context, caller, machine common.Address, buyFee, sellFee uint64) (*entity.Machine, error) {
	s.lastCaller = caller
	return s.machine, s.err
}

func (s *stubAdmin) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	s.lastCaller = caller
	return s.err
}

func (s *stubAdmin) GetMachine(ctx context.Context, machine common.Address) (*entity.Machine, error) {
	return s.machine, s.err
}

// stubExchange implements inbound.ExchangeService with scriptable results.
type stubExchange struct {
	receipt *inbound.OrderReceipt
	err     error
}

func (s *stubExchange) OrderBaseToTarget(ctx context.Context, caller common.Address, amount, tolerance uint64, user common.Address) (*inbound.OrderReceipt, error) {
	return s.receipt, s.err
}

func (s *stubExchange) OrderTargetToBase(ctx context.Context, caller common.Address, amount uint64, user common.Address) (*inbound.OrderReceipt, error) {
	return s.receipt, s.err
}

type stubHealth struct{ err error }

func (s stubHealth) Ping(ctx context.Context) error { return s.err }

func newTestServer(admin *stubAdmin, exchange *stubExchange) *httptest.Server {
	h := NewHandler(exchange, admin, stubHealth{}, nil)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return httptest.NewServer(mux)
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, caller, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not owner", domain.ErrNotOwner, http.StatusForbidden},
		{"unauthorized machine", domain.ErrUnauthorizedMachine, http.StatusForbidden},
		{"already registered", domain.ErrAlreadyRegistered, http.StatusConflict},
		{"not registered", domain.ErrNotRegistered, http.StatusNotFound},
		{"fee out of range", domain.ErrFeeOutOfRange, http.StatusBadRequest},
		{"overflow", domain.ErrArithmeticOverflow, http.StatusBadRequest},
		{"invalid order", domain.ErrInvalidOrder, http.StatusBadRequest},
		{"router failure", domain.ErrRouterFailure, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&stubAdmin{err: tt.err}, &stubExchange{err: tt.err})
			defer srv.Close()

			resp := doRequest(t, srv, http.MethodPost, "/v1/machines", ownerHex,
				`{"machine":"`+machineHex+`"}`)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("admin status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			resp = doRequest(t, srv, http.MethodPost, "/v1/orders/buy", machineHex,
				`{"amount":1000,"tolerance":0,"user":"`+userHex+`"}`)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("order status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestAddMachine(t *testing.T) {
	m, _ := entity.NewMachine(common.HexToAddress(machineHex), entity.FeeDefault, entity.FeeDefault)
	admin := &stubAdmin{machine: m}
	srv := newTestServer(admin, &stubExchange{})
	defer srv.Close()

	resp := doRequest(t, srv, http.MethodPost, "/v1/machines", ownerHex,
		`{"machine":"`+machineHex+`"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var body machineResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.BuyFee != entity.FeeDefault || body.SellFee != entity.FeeDefault {
		t.Errorf("fees = %d/%d, want defaults", body.BuyFee, body.SellFee)
	}
	if admin.lastCaller != common.HexToAddress(ownerHex) {
		t.Errorf("caller = %s, want header value", admin.lastCaller.Hex())
	}
}

func TestCallerHeaderRequired(t *testing.T) {
	srv := newTestServer(&stubAdmin{}, &stubExchange{})
	defer srv.Close()

	resp := doRequest(t, srv, http.MethodPost, "/v1/machines", "",
		`{"machine":"`+machineHex+`"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("missing header: status = %d, want 401", resp.StatusCode)
	}

	resp = doRequest(t, srv, http.MethodPost, "/v1/machines", "not-an-address",
		`{"machine":"`+machineHex+`"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("malformed header: status = %d, want 401", resp.StatusCode)
	}
}

func TestBadRequestBodies(t *testing.T) {
	srv := newTestServer(&stubAdmin{}, &stubExchange{})
	defer srv.Close()

	tests := []struct {
		name string
		path string
		body string
	}{
		{"malformed json", "/v1/machines", `{"machine":`},
		{"invalid address", "/v1/machines", `{"machine":"0x123"}`},
		{"zero address", "/v1/machines", `{"machine":"0x0000000000000000000000000000000000000000"}`},
		{"zero user", "/v1/orders/buy", `{"amount":1,"user":"0x0000000000000000000000000000000000000000"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, srv, http.MethodPost, tt.path, ownerHex, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestGetMachineNotFound(t *testing.T) {
	srv := newTestServer(&stubAdmin{machine: nil}, &stubExchange{})
	defer srv.Close()

	resp := doRequest(t, srv, http.MethodGet, "/v1/machines/"+machineHex, "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestOrderBuyReturnsReceipt(t *testing.T) {
	exchange := &stubExchange{receipt: &inbound.OrderReceipt{
		Direction:   entity.BaseToTarget,
		GrossAmount: 1000,
		NetAmount:   900,
		AmountOut:   big.NewInt(12345),
	}}
	srv := newTestServer(&stubAdmin{}, exchange)
	defer srv.Close()

	resp := doRequest(t, srv, http.MethodPost, "/v1/orders/buy", machineHex,
		`{"amount":1000,"tolerance":100,"user":"`+userHex+`"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.NetAmount != 900 || body.AmountOut != "12345" {
		t.Errorf("receipt = %+v", body)
	}
}

func TestRemoveMachineNoContent(t *testing.T) {
	srv := newTestServer(&stubAdmin{}, &stubExchange{})
	defer srv.Close()

	resp := doRequest(t, srv, http.MethodDelete, "/v1/machines/"+machineHex, ownerHex, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
}

func TestHealthProbes(t *testing.T) {
	h := NewHandler(&stubExchange{}, &stubAdmin{}, stubHealth{}, nil)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp := doRequest(t, srv, http.MethodGet, "/health/ready", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ready: got status %d, want %d", resp.StatusCode, http.StatusOK)
	}
	resp = doRequest(t, srv, http.MethodGet, "/health/live", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("live: got status %d, want %d", resp.StatusCode, http.StatusOK)
	}

	h.MarkShutdown()
	resp = doRequest(t, srv, http.MethodGet, "/health/ready", "", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("ready while draining: got status %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
	resp = doRequest(t, srv, http.MethodGet, "/health/live", "", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("live while draining: got status %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestReadyProbeReportsDependencyFailure(t *testing.T) {
	h := NewHandler(&stubExchange{}, &stubAdmin{}, stubHealth{err: errors.New("pool down")}, nil)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp := doRequest(t, srv, http.MethodGet, "/health/ready", "", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestRateLimiterBlocksBursts(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 2})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(rl.Middleware(next))
	defer srv.Close()

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp := doRequest(t, srv, http.MethodGet, "/", machineHex, "")
		statuses = append(statuses, resp.StatusCode)
	}
	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Errorf("burst requests rejected: %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", statuses[2])
	}

	// A different caller has their own bucket.
	resp := doRequest(t, srv, http.MethodGet, "/", userHex, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("independent caller status = %d, want 200", resp.StatusCode)
	}
}
