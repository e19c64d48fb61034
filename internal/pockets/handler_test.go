package pockets

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/pockets/internal/auth"
	"github.com/congo-pay/pockets/internal/ledger"
	"github.com/congo-pay/pockets/internal/middleware"
	"github.com/congo-pay/pockets/internal/notification"
	"github.com/congo-pay/pockets/internal/settlement"
	"github.com/congo-pay/pockets/internal/storage"
)

var testSecret = []byte("handler-secret")

func setupApp(t *testing.T) (*fiber.App, string) {
	t.Helper()
	engine := ledger.NewEngine(storage.NewMemory())
	svc := NewService(engine, settlement.NewReconciler(engine, nil, &notification.Recorder{}, nil), nil)
	h := NewHandler(svc)

	app := fiber.New()
	r := app.Group("/api/v1", middleware.OwnerAuth(testSecret))
	r.Get("/pockets", h.List)
	r.Post("/pockets", h.Create)
	r.Get("/pockets/:name", h.Get)
	r.Delete("/pockets/:name", h.Delete)
	r.Post("/pockets/:name/deposit", h.Deposit)
	r.Post("/pockets/:name/move", h.Move)
	r.Post("/pockets/:name/spend", h.Spend)
	r.Get("/log", h.Log)
	r.Post("/settlements/:seq", h.Confirm)
	r.Post("/admin/replay", h.Replay)

	token, err := auth.SignOwnerToken("SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return app, token
}

func call(t *testing.T, app *fiber.App, token, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, decoded
}

func TestHandlerLifecycle(t *testing.T) {
	app, token := setupApp(t)

	for _, name := range []string{"Savings", "Food", "Fun"} {
		status, _ := call(t, app, token, fiber.MethodPost, "/api/v1/pockets", `{"name":"`+name+`"}`)
		if status != fiber.StatusCreated {
			t.Fatalf("create %s: expected 201 got %d", name, status)
		}
	}

	status, body := call(t, app, token, fiber.MethodPost, "/api/v1/pockets", `{"name":"savings"}`)
	if status != fiber.StatusConflict || body["reason"] != "duplicate_name" {
		t.Fatalf("expected duplicate conflict, got %d %v", status, body)
	}

	status, body = call(t, app, token, fiber.MethodPost, "/api/v1/pockets/Food/deposit", `{"amount_stx":"5"}`)
	if status != fiber.StatusOK {
		t.Fatalf("deposit: expected 200 got %d %v", status, body)
	}
	total := body["total"].(map[string]any)
	if total["amount"].(float64) != 5_000_000 || total["formatted"] != "5.000000 STX" {
		t.Fatalf("unexpected total: %v", total)
	}
	if body["settlement"] == nil {
		t.Fatal("expected settlement hand-off in response")
	}

	status, _ = call(t, app, token, fiber.MethodPost, "/api/v1/pockets/Food/move", `{"to":"Fun","amount":2000000}`)
	if status != fiber.StatusOK {
		t.Fatalf("move: expected 200 got %d", status)
	}

	status, body = call(t, app, token, fiber.MethodPost, "/api/v1/pockets/Food/spend", `{"destination":"SP000","amount":10000000}`)
	if status != fiber.StatusUnprocessableEntity || body["reason"] != "insufficient_funds" {
		t.Fatalf("expected insufficient funds, got %d %v", status, body)
	}

	status, body = call(t, app, token, fiber.MethodDelete, "/api/v1/pockets/Fun", "")
	if status != fiber.StatusConflict || body["reason"] != "non_zero_balance" {
		t.Fatalf("expected non-zero balance conflict, got %d %v", status, body)
	}

	status, body = call(t, app, token, fiber.MethodGet, "/api/v1/pockets", "")
	if status != fiber.StatusOK {
		t.Fatalf("list: expected 200 got %d", status)
	}
	summary := body["summary"].(map[string]any)
	if summary["count"].(float64) != 3 {
		t.Fatalf("unexpected summary: %v", summary)
	}
	if largest := summary["largest"].(map[string]any); largest["name"] != "Food" {
		t.Fatalf("expected Food to be largest, got %v", largest)
	}

	status, body = call(t, app, token, fiber.MethodGet, "/api/v1/pockets/fun", "")
	if status != fiber.StatusOK || body["name"] != "Fun" {
		t.Fatalf("get: %d %v", status, body)
	}

	status, body = call(t, app, token, fiber.MethodGet, "/api/v1/log", "")
	if status != fiber.StatusOK {
		t.Fatalf("log: expected 200 got %d", status)
	}
	if entries := body["entries"].([]any); len(entries) != 8 {
		t.Fatalf("expected 8 log entries, got %d", len(entries))
	}

	status, body = call(t, app, token, fiber.MethodPost, "/api/v1/admin/replay", "")
	if status != fiber.StatusOK || body["replayed"].(float64) != 8 {
		t.Fatalf("replay: %d %v", status, body)
	}
}

func TestHandlerRejectsBadInput(t *testing.T) {
	app, token := setupApp(t)
	call(t, app, token, fiber.MethodPost, "/api/v1/pockets", `{"name":"Main"}`)

	cases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"missing amount", "/api/v1/pockets/Main/deposit", `{}`, fiber.StatusBadRequest},
		{"both amounts", "/api/v1/pockets/Main/deposit", `{"amount":1,"amount_stx":"1"}`, fiber.StatusBadRequest},
		{"too precise", "/api/v1/pockets/Main/deposit", `{"amount_stx":"0.0000001"}`, fiber.StatusBadRequest},
		{"zero amount", "/api/v1/pockets/Main/deposit", `{"amount":0}`, fiber.StatusBadRequest},
		{"missing pocket", "/api/v1/pockets/Nope/deposit", `{"amount":1}`, fiber.StatusNotFound},
		{"same pocket", "/api/v1/pockets/Main/move", `{"to":"main","amount":1}`, fiber.StatusUnprocessableEntity},
		{"no destination", "/api/v1/pockets/Main/spend", `{"amount":1}`, fiber.StatusBadRequest},
		{"bad name", "/api/v1/pockets", `{"name":"  "}`, fiber.StatusBadRequest},
		{"bad seq", "/api/v1/settlements/abc", `{}`, fiber.StatusBadRequest},
		{"unknown seq", "/api/v1/settlements/99", `{"settled":true}`, fiber.StatusNotFound},
		{"create not settleable", "/api/v1/settlements/1", `{"settled":true}`, fiber.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := call(t, app, token, fiber.MethodPost, tc.path, tc.body)
			if status != tc.status {
				t.Fatalf("expected %d got %d %v", tc.status, status, body)
			}
		})
	}
}

func TestHandlerSettlementCompensation(t *testing.T) {
	app, token := setupApp(t)
	call(t, app, token, fiber.MethodPost, "/api/v1/pockets", `{"name":"Main"}`)
	call(t, app, token, fiber.MethodPost, "/api/v1/pockets/Main/deposit", `{"amount":900}`)

	status, body := call(t, app, token, fiber.MethodPost, "/api/v1/settlements/2", `{"settled":false,"reference":"tx-9"}`)
	if status != fiber.StatusOK || body["status"] != settlement.StatusCompensated {
		t.Fatalf("confirm: %d %v", status, body)
	}
	comp := body["compensation"].(map[string]any)
	if op := comp["operation"].(map[string]any); op["destination"] != "reversal:2" {
		t.Fatalf("unexpected compensation: %v", op)
	}

	status, body = call(t, app, token, fiber.MethodGet, "/api/v1/pockets/Main", "")
	if status != fiber.StatusOK {
		t.Fatalf("get: %d", status)
	}
	if bal := body["balance"].(map[string]any); bal["amount"].(float64) != 0 {
		t.Fatalf("expected reversed balance, got %v", bal)
	}
}

func TestHandlerUsesIdempotencyKeyAsRequestID(t *testing.T) {
	app, token := setupApp(t)
	call(t, app, token, fiber.MethodPost, "/api/v1/pockets", `{"name":"Main"}`)

	deposit := func() map[string]any {
		req := httptest.NewRequest(fiber.MethodPost, "/api/v1/pockets/Main/deposit", strings.NewReader(`{"amount":5}`))
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		req.Header.Set("Idempotency-Key", "dep-42")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		defer resp.Body.Close()
		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return body
	}
	first := deposit()
	second := deposit()
	if second["duplicate"] != true || first["seq"] != second["seq"] {
		t.Fatalf("expected duplicate of %v, got %v", first, second)
	}

	_, body := call(t, app, token, fiber.MethodGet, "/api/v1/pockets/Main", "")
	if bal := body["balance"].(map[string]any); bal["amount"].(float64) != 5 {
		t.Fatalf("expected a single deposit, got %v", bal)
	}
}

func TestHandlerRequiresToken(t *testing.T) {
	app, _ := setupApp(t)
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/pockets", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.StatusCode)
	}
}
