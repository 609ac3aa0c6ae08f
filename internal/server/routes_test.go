package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"crashfair/internal/commitment"
	"crashfair/internal/database"
	"crashfair/internal/entropy"
	"crashfair/internal/game"
	"crashfair/internal/logger"
	"crashfair/internal/settlement"
	"crashfair/internal/wallet"
)

type memoryBalances struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

func (m *memoryBalances) Balance(_ context.Context, userID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID], nil
}

func (m *memoryBalances) SetBalance(_ context.Context, userID string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = amount
	return nil
}

func (m *memoryBalances) Transactions(context.Context, string, int64) ([]wallet.Transaction, error) {
	return []wallet.Transaction{{Amount: "-1", Reason: "Coinflip bet"}}, nil
}

func (m *memoryBalances) Debit(_ context.Context, userID string, amount decimal.Decimal, _ string, _ map[string]string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal := m.balances[userID]
	if bal.LessThan(amount) {
		return bal, wallet.ErrInsufficientFunds
	}
	m.balances[userID] = bal.Sub(amount)
	return m.balances[userID], nil
}

type nopSettler struct{}

func (nopSettler) Dispatch(_ context.Context, batch []settlement.Settlement) settlement.Report {
	var r settlement.Report
	for _, s := range batch {
		r.Settled = append(r.Settled, s.ParticipantID)
	}
	return r
}

type staticSeeds struct{}

func (staticSeeds) Fetch(context.Context) (entropy.Seed, error) {
	return entropy.Seed{Value: "block123", Source: "test"}, nil
}

func newTestServer(t *testing.T) (*FiberServer, *memoryBalances) {
	t.Helper()

	balances := &memoryBalances{balances: map[string]decimal.Decimal{"alice": decimal.NewFromInt(100)}}
	commitments := commitment.NewManager(commitment.NewMemoryStore(), logger.Nop())

	deps := game.Deps{
		Commitments: commitments,
		Entropy:     staticSeeds{},
		Wallet:      balances,
		Settler:     nopSettler{},
		Sequence:    game.NewSequence(0),
		Log:         logger.Nop(),
	}
	limits := game.Limits{HouseEdge: 0.01, MinBet: 1, MaxBet: 100, HistoryLimit: 10}

	registry := game.NewRegistry(nil)
	registry.Register(game.NewCoinflipEngine(game.RoundConfig{
		Window:          time.Hour,
		TickInterval:    5 * time.Millisecond,
		InterRoundDelay: time.Hour,
		Limits:          limits,
	}, deps))

	server := NewFiberServer(Dependencies{
		Registry:  registry,
		Hub:       game.NewHub(nil),
		Balances:  balances,
		HouseEdge: 0.05,
	})
	if err := server.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		server.Shutdown()
		commitments.Shutdown()
	})

	engine, _ := registry.Engine(game.GameTypeCoinflip)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap, ok := engine.CurrentRound(); ok && snap.Phase == game.PhaseBetting {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	return server, balances
}

func doJSON(t *testing.T, app *fiber.App, method, target string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = strings.NewReader(string(data))
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("could not perform request: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("could not read response body: %v", err)
	}
	result := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			t.Fatalf("could not unmarshal %q: %v", raw, err)
		}
	}
	return resp.StatusCode, result
}

func TestHealthHandler(t *testing.T) {
	server, _ := newTestServer(t)

	status, body := doJSON(t, server.App, "GET", "/health", nil)
	if status != http.StatusOK {
		t.Fatalf("expected status OK; got %v", status)
	}
	gameInfo, ok := body["game"].(map[string]interface{})
	if !ok || gameInfo["status"] != "running" {
		t.Errorf("health body = %v", body)
	}
}

func TestRoundAndBetHandlers(t *testing.T) {
	server, balances := newTestServer(t)
	app := server.App

	status, snap := doJSON(t, app, "GET", "/api/v1/games/coinflip/round", nil)
	if status != http.StatusOK {
		t.Fatalf("round status = %d", status)
	}
	if snap["phase"] != string(game.PhaseBetting) || snap["seed_hash"] == "" {
		t.Errorf("round snapshot = %v", snap)
	}
	if _, leaked := snap["private_seed"]; leaked {
		t.Error("seed must stay hidden while betting")
	}

	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{"missing user", map[string]interface{}{"amount": 5, "choice": "heads"}, http.StatusBadRequest},
		{"bad choice", map[string]interface{}{"user_id": "alice", "amount": 5, "choice": "side"}, http.StatusBadRequest},
		{"too large", map[string]interface{}{"user_id": "alice", "amount": 500, "choice": "heads"}, http.StatusBadRequest},
		{"no funds", map[string]interface{}{"user_id": "bob", "amount": 5, "choice": "heads"}, http.StatusBadRequest},
		{"accepted", map[string]interface{}{"user_id": "alice", "amount": 5, "choice": "heads"}, http.StatusOK},
		{"second bet", map[string]interface{}{"user_id": "alice", "amount": 5, "choice": "tails"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doJSON(t, app, "POST", "/api/v1/games/coinflip/bet", tt.body)
			if status != tt.status {
				t.Errorf("status = %d, want %d (%v)", status, tt.status, body)
			}
		})
	}

	bal, _ := balances.Balance(context.Background(), "alice")
	if !bal.Equal(decimal.NewFromInt(95)) {
		t.Errorf("alice balance = %s, want 95", bal)
	}
}

func TestUnknownGameAndCashout(t *testing.T) {
	server, _ := newTestServer(t)

	if status, _ := doJSON(t, server.App, "GET", "/api/v1/games/roulette/round", nil); status != http.StatusNotFound {
		t.Errorf("unknown game status = %d, want 404", status)
	}
	status, body := doJSON(t, server.App, "POST", "/api/v1/games/coinflip/cashout", map[string]string{"user_id": "alice"})
	if status != http.StatusBadRequest {
		t.Errorf("coinflip cashout status = %d, want 400 (%v)", status, body)
	}
	if status, _ := doJSON(t, server.App, "GET", "/api/v1/rounds/nope", nil); status != http.StatusNotFound {
		t.Errorf("missing round status = %d, want 404", status)
	}
}

func TestVerifyHandler(t *testing.T) {
	server, _ := newTestServer(t)

	seed := strings.Repeat("a", 64)
	target := fmt.Sprintf("/api/v1/verify?game=crash&round_id=42&server_seed=%s&public_seed=block123&house_edge=0.01", seed)
	status, body := doJSON(t, server.App, "GET", target, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d (%v)", status, body)
	}
	result := body["result"].(map[string]interface{})
	if result["value"] != 1.4 {
		t.Errorf("value = %v, want 1.4", result["value"])
	}

	// without house_edge the configured edge applies
	target = fmt.Sprintf("/api/v1/verify?game=crash&round_id=42&server_seed=%s&public_seed=block123", seed)
	_, body = doJSON(t, server.App, "GET", target, nil)
	result = body["result"].(map[string]interface{})
	if result["value"] != 1.35 {
		t.Errorf("value with configured edge = %v, want 1.35", result["value"])
	}

	target = fmt.Sprintf("/api/v1/verify?game=jackpot&round_id=42&server_seed=%s&public_seed=block123&tickets=10", seed)
	_, body = doJSON(t, server.App, "GET", target, nil)
	result = body["result"].(map[string]interface{})
	if result["winning_ticket"] != float64(6) {
		t.Errorf("winning_ticket = %v, want 6", result["winning_ticket"])
	}

	if status, _ := doJSON(t, server.App, "GET", "/api/v1/verify?game=crash", nil); status != http.StatusBadRequest {
		t.Errorf("missing params status = %d, want 400", status)
	}
	target = fmt.Sprintf("/api/v1/verify?game=dice&round_id=1&server_seed=%s", seed)
	if status, _ := doJSON(t, server.App, "GET", target, nil); status != http.StatusBadRequest {
		t.Errorf("unknown game status = %d, want 400", status)
	}
}

func TestBalanceHandlers(t *testing.T) {
	server, _ := newTestServer(t)

	status, body := doJSON(t, server.App, "POST", "/api/v1/users/carol/balance", map[string]float64{"balance": 42.129})
	if status != http.StatusOK {
		t.Fatalf("set status = %d (%v)", status, body)
	}
	_, body = doJSON(t, server.App, "GET", "/api/v1/users/carol/balance", nil)
	if body["balance"] != "42.12" {
		t.Errorf("balance = %v, want 42.12", body["balance"])
	}

	status, body = doJSON(t, server.App, "GET", "/api/v1/users/carol/transactions?limit=5", nil)
	if status != http.StatusOK || len(body["transactions"].([]interface{})) != 1 {
		t.Errorf("transactions = %d %v", status, body)
	}
	if status, _ := doJSON(t, server.App, "GET", "/api/v1/users/carol/transactions?limit=-1", nil); status != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", status)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{game.ErrBettingClosed, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", wallet.ErrInsufficientFunds), http.StatusBadRequest},
		{game.ErrUnknownGame, http.StatusNotFound},
		{database.ErrRoundNotFound, http.StatusNotFound},
		{game.ErrQueueFull, http.StatusServiceUnavailable},
		{game.ErrTimeout, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
