// Package wallet is the Redis-backed balance ledger behind bet intake and settlement.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"crashfair/internal/settlement"
)

const (
	REDIS_KEY_BALANCE      = "wallet:balance:"
	REDIS_KEY_TRANSACTIONS = "wallet:tx:"
	REDIS_KEY_SETTLED      = "wallet:settled:"

	SETTLED_MARKER_TTL = 7 * 24 * time.Hour
	TRANSACTIONS_KEPT  = 200
)

var (
	ErrInsufficientFunds = errors.New("wallet: insufficient balance")
	ErrInvalidAmount     = errors.New("wallet: invalid amount")
)

// Transaction mirrors one balance movement for the user's statement
type Transaction struct {
	Amount    string            `json:"amount"`
	Reason    string            `json:"reason"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// KEYS: balance, transactions. ARGV: amount, tx json, kept.
var debitScript = redis.NewScript(`
local bal = tonumber(redis.call('GET', KEYS[1]) or '0')
if bal < tonumber(ARGV[1]) then
	return -1
end
local newBal = redis.call('INCRBYFLOAT', KEYS[1], '-' .. ARGV[1])
redis.call('LPUSH', KEYS[2], ARGV[2])
redis.call('LTRIM', KEYS[2], 0, tonumber(ARGV[3]) - 1)
return newBal
`)

// KEYS: balance, settled marker, transactions. ARGV: amount, ttl seconds, tx json, kept.
var settleScript = redis.NewScript(`
if not redis.call('SET', KEYS[2], ARGV[1], 'NX', 'EX', ARGV[2]) then
	return 0
end
redis.call('INCRBYFLOAT', KEYS[1], ARGV[1])
redis.call('LPUSH', KEYS[3], ARGV[3])
redis.call('LTRIM', KEYS[3], 0, tonumber(ARGV[4]) - 1)
return 1
`)

type Ledger struct {
	client *redis.Client
}

func NewLedger(client *redis.Client) *Ledger {
	return &Ledger{client: client}
}

// Debit removes a stake atomically, rejecting it when the balance is short.
func (l *Ledger) Debit(ctx context.Context, userID string, amount decimal.Decimal, reason string, meta map[string]string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	tx, err := json.Marshal(Transaction{Amount: amount.Neg().String(), Reason: reason, Metadata: meta, CreatedAt: time.Now()})
	if err != nil {
		return decimal.Zero, err
	}

	res, err := debitScript.Run(ctx, l.client,
		[]string{REDIS_KEY_BALANCE + userID, REDIS_KEY_TRANSACTIONS + userID},
		amount.String(), string(tx), TRANSACTIONS_KEPT,
	).Result()
	if err != nil {
		return decimal.Zero, fmt.Errorf("wallet debit for %s: %w", userID, err)
	}

	switch v := res.(type) {
	case int64:
		return decimal.Zero, ErrInsufficientFunds
	case string:
		return decimal.NewFromString(v)
	default:
		return decimal.Zero, fmt.Errorf("wallet debit for %s: unexpected reply %T", userID, res)
	}
}

// Settle applies a payout once per (round, participant); replays are acknowledged without effect.
func (l *Ledger) Settle(ctx context.Context, s settlement.Settlement) error {
	tx, err := json.Marshal(Transaction{Amount: s.Amount.String(), Reason: s.Reason, Metadata: s.Metadata, CreatedAt: time.Now()})
	if err != nil {
		return err
	}

	err = settleScript.Run(ctx, l.client,
		[]string{
			REDIS_KEY_BALANCE + s.ParticipantID,
			REDIS_KEY_SETTLED + s.Key(),
			REDIS_KEY_TRANSACTIONS + s.ParticipantID,
		},
		s.Amount.String(), int(SETTLED_MARKER_TTL.Seconds()), string(tx), TRANSACTIONS_KEPT,
	).Err()
	if err != nil {
		return fmt.Errorf("wallet settle %s: %w", s.Key(), err)
	}
	return nil
}

func (l *Ledger) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	val, err := l.client.Get(ctx, REDIS_KEY_BALANCE+userID).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(val)
}

// SetBalance overwrites a balance (admin/testing top-up)
func (l *Ledger) SetBalance(ctx context.Context, userID string, amount decimal.Decimal) error {
	return l.client.Set(ctx, REDIS_KEY_BALANCE+userID, amount.String(), 0).Err()
}

func (l *Ledger) Transactions(ctx context.Context, userID string, limit int64) ([]Transaction, error) {
	raw, err := l.client.LRange(ctx, REDIS_KEY_TRANSACTIONS+userID, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Transaction, 0, len(raw))
	for _, item := range raw {
		var tx Transaction
		if json.Unmarshal([]byte(item), &tx) == nil {
			out = append(out, tx)
		}
	}
	return out, nil
}
