package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/ticket-reservation/internal/clock"
	"github.com/iliyamo/ticket-reservation/internal/config"
	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/repository"
	"github.com/iliyamo/ticket-reservation/internal/service"
)

type fixture struct {
	e     *echo.Echo
	clock *clock.Fake
	store *repository.MemoryStore
}

// newFixture wires the handlers over an in-memory store.  The session id
// is taken from the X-Session header instead of a token so the tests can
// focus on the handlers.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	store := repository.NewMemoryStore(clk)
	err := store.UpsertCatalog(context.Background(),
		[]model.Event{{ID: "ev-1", Name: "Concert"}},
		[]model.TicketType{{ID: "tt-1", EventID: "ev-1", Name: "General", Capacity: 2, Price: decimal.RequireFromString("12.50")}},
	)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	policy := config.DefaultPolicy()
	ledger := service.NewLedger(store)
	rh := NewReservationHandler(service.NewReservationManager(store, ledger, policy), service.NewConverter(store), nil)
	oh := NewOrderHandler(service.NewConverter(store), nil)
	ih := NewInventoryHandler(ledger, nil)
	op := NewOperatorHandler(service.NewSettlement(store), service.NewSweeper(store, policy, nil), nil)

	e := echo.New()
	g := e.Group("/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("session_id", c.Request().Header.Get("X-Session"))
			return next(c)
		}
	})
	g.POST("/reservations", rh.Create)
	g.POST("/reservations/bulk", rh.CreateBulk)
	g.GET("/reservations", rh.List)
	g.GET("/reservations/:id", rh.Get)
	g.DELETE("/reservations/:id", rh.Cancel)
	g.POST("/reservations/:id/extend", rh.Extend)
	g.POST("/reservations/:id/convert", rh.Convert)
	g.POST("/orders", oh.Create)
	g.GET("/orders/:id", oh.Get)
	g.GET("/events/:id/inventory", ih.Summary)
	g.POST("/internal/orders/:id/settle", op.Settle)
	g.POST("/internal/orders/:id/reverse", op.Reverse)
	g.POST("/internal/sweep", op.Sweep)
	return &fixture{e: e, clock: clk, store: store}
}

func (f *fixture) do(t *testing.T, method, path, session, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set("X-Session", session)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	out := map[string]any{}
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func TestReservationEndpoints(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/v1/reservations", "s-1", `{"ticketTypeId":"tt-1","quantity":2,"ttlMinutes":1}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	id, _ := body["id"].(string)
	if id == "" || body["status"] != "ACTIVE" || body["unitPrice"] != "12.50" {
		t.Fatalf("unexpected body %v", body)
	}

	rec, body = f.do(t, http.MethodPost, "/v1/reservations", "s-2", `{"ticketTypeId":"tt-1","quantity":1}`)
	if rec.Code != http.StatusConflict || body["code"] != codeInsufficientInventory || body["available"] != float64(0) {
		t.Fatalf("expected 409 insufficient_inventory with available 0, got %d %v", rec.Code, body)
	}

	rec, body = f.do(t, http.MethodGet, "/v1/reservations/"+id, "s-1", "")
	if rec.Code != http.StatusOK || body["remainingSeconds"] != float64(60) || body["isExpired"] != false {
		t.Fatalf("unexpected get %d %v", rec.Code, body)
	}

	rec, other := f.do(t, http.MethodGet, "/v1/reservations/"+id, "s-2", "")
	missing, notFound := f.do(t, http.MethodGet, "/v1/reservations/nope", "s-2", "")
	if rec.Code != http.StatusNotFound || missing.Code != http.StatusNotFound || other["code"] != notFound["code"] {
		t.Fatalf("another session's hold must look missing, got %d %v and %d %v", rec.Code, other, missing.Code, notFound)
	}

	rec, body = f.do(t, http.MethodPost, "/v1/reservations/"+id+"/extend", "s-1", `{"additionalMinutes":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected extend 200, got %d %v", rec.Code, body)
	}
	rec, body = f.do(t, http.MethodPost, "/v1/reservations/"+id+"/extend", "s-1", `{"additionalMinutes":600}`)
	if rec.Code != http.StatusBadRequest || body["code"] != codeTTLOutOfRange {
		t.Fatalf("expected ttl_out_of_range, got %d %v", rec.Code, body)
	}

	rec, body = f.do(t, http.MethodGet, "/v1/reservations?limit=10", "s-1", "")
	if list, _ := body["reservations"].([]any); rec.Code != http.StatusOK || len(list) != 1 {
		t.Fatalf("expected one reservation, got %d %v", rec.Code, body)
	}
	if rec, _ := f.do(t, http.MethodGet, "/v1/reservations?limit=x", "s-1", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}

	rec, _ = f.do(t, http.MethodDelete, "/v1/reservations/"+id, "s-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected cancel 200, got %d", rec.Code)
	}
	rec, body = f.do(t, http.MethodDelete, "/v1/reservations/"+id, "s-1", "")
	if rec.Code != http.StatusConflict || body["code"] != codeNotActive {
		t.Fatalf("expected not_active, got %d %v", rec.Code, body)
	}
}

func TestReservationValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name, body, code string
		status           int
	}{
		{"malformed json", `{"ticketTypeId":`, codeInvalidRequestBody, http.StatusBadRequest},
		{"missing ticket type", `{"quantity":1}`, codeInvalidRequestBody, http.StatusBadRequest},
		{"zero quantity", `{"ticketTypeId":"tt-1","quantity":0}`, codeQuantityOutOfRange, http.StatusBadRequest},
		{"ttl too long", `{"ticketTypeId":"tt-1","quantity":1,"ttlMinutes":999}`, codeTTLOutOfRange, http.StatusBadRequest},
		{"unknown ticket type", `{"ticketTypeId":"tt-9","quantity":1}`, codeNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := f.do(t, http.MethodPost, "/v1/reservations", "s-1", tc.body)
			if rec.Code != tc.status || body["code"] != tc.code {
				t.Fatalf("expected %d %s, got %d %v", tc.status, tc.code, rec.Code, body)
			}
		})
	}
}

func TestPurchaseFlow(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/v1/reservations/bulk", "s-1", `{"items":[{"ticketTypeId":"tt-1","quantity":1},{"ticketTypeId":"tt-1","quantity":1}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected bulk 201, got %d %v", rec.Code, body)
	}
	list := body["reservations"].([]any)
	ids := []string{list[0].(map[string]any)["id"].(string), list[1].(map[string]any)["id"].(string)}

	rec, body = f.do(t, http.MethodPost, "/v1/reservations/"+ids[0]+"/convert", "s-1", `{"holders":[]}`)
	if rec.Code != http.StatusBadRequest || body["code"] != codeHolderCountMismatch {
		t.Fatalf("expected holder_count_mismatch, got %d %v", rec.Code, body)
	}

	order := fmt.Sprintf(`{"reservationIds":["%s","%s"],"buyer":{"name":"Ada","email":"ada@example.com"},"holders":[{"name":"A"},{"name":"B"}],"paymentMethod":"card"}`, ids[0], ids[1])
	rec, body = f.do(t, http.MethodPost, "/v1/orders", "s-1", order)
	if rec.Code != http.StatusCreated || body["status"] != "PENDING" || body["amount"] != "25.00" {
		t.Fatalf("unexpected order %d %v", rec.Code, body)
	}
	orderID := body["id"].(string)

	rec, body = f.do(t, http.MethodGet, "/v1/events/ev-1/inventory", "", "")
	types := body["ticketTypes"].([]any)
	if rec.Code != http.StatusOK || types[0].(map[string]any)["pending"] != float64(2) {
		t.Fatalf("expected 2 pending units, got %d %v", rec.Code, body)
	}

	rec, body = f.do(t, http.MethodPost, "/v1/internal/orders/"+orderID+"/settle", "", `{"outcome":"success"}`)
	if rec.Code != http.StatusOK || body["changed"] != true {
		t.Fatalf("expected settlement, got %d %v", rec.Code, body)
	}
	rec, body = f.do(t, http.MethodPost, "/v1/internal/orders/"+orderID+"/settle", "", `{"outcome":"SUCCESS"}`)
	if rec.Code != http.StatusOK || body["changed"] != false {
		t.Fatalf("expected idempotent replay, got %d %v", rec.Code, body)
	}
	rec, body = f.do(t, http.MethodPost, "/v1/internal/orders/"+orderID+"/settle", "", `{"outcome":"FAILED"}`)
	if rec.Code != http.StatusConflict || body["code"] != codeOrderSettled {
		t.Fatalf("expected order_settled, got %d %v", rec.Code, body)
	}
	rec, body = f.do(t, http.MethodPost, "/v1/internal/orders/"+orderID+"/settle", "", `{"outcome":"MAYBE"}`)
	if rec.Code != http.StatusBadRequest || body["code"] != codeInvalidOutcome {
		t.Fatalf("expected invalid_outcome, got %d %v", rec.Code, body)
	}

	rec, body = f.do(t, http.MethodGet, "/v1/orders/"+orderID, "s-1", "")
	tickets, _ := body["tickets"].([]any)
	if rec.Code != http.StatusOK || len(tickets) != 2 || tickets[0].(map[string]any)["status"] != "ACTIVE" {
		t.Fatalf("unexpected order view %d %v", rec.Code, body)
	}
	if rec, _ := f.do(t, http.MethodGet, "/v1/orders/"+orderID, "s-2", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another session, got %d", rec.Code)
	}

	rec, body = f.do(t, http.MethodPost, "/v1/internal/orders/"+orderID+"/reverse", "", "")
	if rec.Code != http.StatusOK || body["order"].(map[string]any)["status"] != "CANCELLED" {
		t.Fatalf("expected reversal, got %d %v", rec.Code, body)
	}
}

func TestSweepEndpointAndExpiredConvert(t *testing.T) {
	f := newFixture(t)
	_, body := f.do(t, http.MethodPost, "/v1/reservations", "s-1", `{"ticketTypeId":"tt-1","quantity":1,"ttlMinutes":1}`)
	id := body["id"].(string)

	f.clock.Advance(2 * time.Minute)
	rec, body := f.do(t, http.MethodPost, "/v1/internal/sweep", "", "")
	if rec.Code != http.StatusOK || body["reservationsExpired"] != float64(1) {
		t.Fatalf("expected one expired reservation, got %d %v", rec.Code, body)
	}

	rec, body = f.do(t, http.MethodPost, "/v1/reservations/"+id+"/convert", "s-1", `{"holders":[{"name":"A"}]}`)
	if rec.Code != http.StatusGone || body["code"] != codeExpiredHold {
		t.Fatalf("expected 410 expired_hold, got %d %v", rec.Code, body)
	}
}

func TestRespondErrorContentionIsRetryable(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	err := fmt.Errorf("%w: %w", model.ErrContention, errors.New("Error 1213: Deadlock found"))
	if err := respondError(c, slogDiscard(), err); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable || rec.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected 503 with Retry-After, got %d %v", rec.Code, rec.Header())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["code"] != codeRetry || strings.Contains(rec.Body.String(), "1213") {
		t.Fatalf("expected opaque retry body, got %v", body)
	}
}

func TestRespondErrorHidesInternalErrors(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := respondError(c, slogDiscard(), errors.New("connection refused")); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "refused") {
		t.Fatalf("expected opaque 500, got %d %s", rec.Code, rec.Body.String())
	}
}
