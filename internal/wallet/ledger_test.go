package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"crashfair/internal/settlement"
)

// Integration tests against a local Redis, DB 15; skipped when none is running.
func setupLedger(t *testing.T) *Ledger {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	client.FlushDB(context.Background())
	t.Cleanup(func() { client.Close() })
	return NewLedger(client)
}

func TestLedger_Debit(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	if err := l.SetBalance(ctx, "alice", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("SetBalance() error = %v", err)
	}

	bal, err := l.Debit(ctx, "alice", decimal.RequireFromString("40.5"), "Crash bet", map[string]string{"round_id": "1"})
	if err != nil {
		t.Fatalf("Debit() error = %v", err)
	}
	if !bal.Equal(decimal.RequireFromString("59.5")) {
		t.Errorf("balance = %s, want 59.5", bal)
	}

	if _, err := l.Debit(ctx, "alice", decimal.NewFromInt(60), "Crash bet", nil); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("Debit() error = %v, want ErrInsufficientFunds", err)
	}
	if _, err := l.Debit(ctx, "alice", decimal.Zero, "Crash bet", nil); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Debit() error = %v, want ErrInvalidAmount", err)
	}
}

func TestLedger_SettleIdempotent(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	s := settlement.Settlement{
		RoundID:       "77",
		ParticipantID: "bob",
		Amount:        decimal.RequireFromString("25.25"),
		Reason:        "Crash win",
	}
	for i := 0; i < 3; i++ {
		if err := l.Settle(ctx, s); err != nil {
			t.Fatalf("Settle() attempt %d error = %v", i, err)
		}
	}

	bal, err := l.Balance(ctx, "bob")
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if !bal.Equal(s.Amount) {
		t.Errorf("balance = %s, want %s after replays", bal, s.Amount)
	}

	txs, err := l.Transactions(ctx, "bob", 10)
	if err != nil {
		t.Fatalf("Transactions() error = %v", err)
	}
	if len(txs) != 1 || txs[0].Reason != "Crash win" {
		t.Errorf("transactions = %+v, want one credit", txs)
	}
}

func TestLedger_BalanceMissing(t *testing.T) {
	l := setupLedger(t)
	bal, err := l.Balance(context.Background(), "nobody")
	if err != nil || !bal.IsZero() {
		t.Errorf("Balance() = %s, %v; want 0, nil", bal, err)
	}
}
