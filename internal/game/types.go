package game

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"crashfair/internal/fairness"
)

type GameType = fairness.Game

const (
	GameTypeCoinflip = fairness.GameCoinflip
	GameTypeJackpot  = fairness.GameJackpot
	GameTypeCrash    = fairness.GameCrash
)

var (
	ErrInvalidPhaseTransition = errors.New("invalid phase transition")
	ErrBettingClosed          = errors.New("betting is closed")
	ErrInvalidStake           = errors.New("invalid stake")
	ErrInvalidChoice          = errors.New("invalid choice")
	ErrInvalidAutoCashout     = errors.New("auto cashout must be above 1.00x")
	ErrAlreadyJoined          = errors.New("already joined this round")
	ErrNoEntry                = errors.New("no entry in this round")
	ErrAlreadyCashedOut       = errors.New("already cashed out")
	ErrCashoutClosed          = errors.New("cannot cashout now")
	ErrQueueFull              = errors.New("request queue full")
	ErrTimeout                = errors.New("request timed out")
	ErrUnknownGame            = errors.New("unknown game")
	ErrStopped                = errors.New("engine stopped")
)

// IsCallerError reports whether err was caused by the request itself.
func IsCallerError(err error) bool {
	for _, target := range []error{
		ErrBettingClosed, ErrInvalidStake, ErrInvalidChoice, ErrInvalidAutoCashout, ErrAlreadyJoined,
		ErrNoEntry, ErrAlreadyCashedOut, ErrCashoutClosed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type BetRequest struct {
	UserID      string  `json:"user_id"`
	Amount      float64 `json:"amount"`
	AutoCashout float64 `json:"auto_cashout,omitempty"`
	Choice      string  `json:"choice,omitempty"`
}

type BetResponse struct {
	BetID      string          `json:"bet_id"`
	RoundID    string          `json:"round_id"`
	Stake      decimal.Decimal `json:"stake"`
	Balance    decimal.Decimal `json:"balance"`
	TicketFrom int64           `json:"ticket_from,omitempty"`
	TicketTo   int64           `json:"ticket_to,omitempty"`
}

type CashoutRequest struct {
	UserID string `json:"user_id"`
}

type CashoutResponse struct {
	BetID      string          `json:"bet_id"`
	RoundID    string          `json:"round_id"`
	Multiplier float64         `json:"multiplier"`
	Payout     decimal.Decimal `json:"payout"`
}

// Flags mark anything unusual about a round for auditors.
type Flags struct {
	EntropyDegraded   bool `json:"entropy_degraded,omitempty"`
	Invalid           bool `json:"invalid,omitempty"`
	Aborted           bool `json:"aborted,omitempty"`
	Empty             bool `json:"empty,omitempty"`
	SettlementPending bool `json:"settlement_pending,omitempty"`
	SettlementFailed  bool `json:"settlement_failed,omitempty"`
}

// EntryView is the public copy of a participant entry.
type EntryView struct {
	BetID             string          `json:"bet_id"`
	UserID            string          `json:"user_id"`
	Stake             decimal.Decimal `json:"stake"`
	AutoCashout       float64         `json:"auto_cashout,omitempty"`
	Choice            string          `json:"choice,omitempty"`
	TicketFrom        int64           `json:"ticket_from,omitempty"`
	TicketTo          int64           `json:"ticket_to,omitempty"`
	CashedOut         bool            `json:"cashed_out,omitempty"`
	CashoutMultiplier float64         `json:"cashout_multiplier,omitempty"`
	Payout            decimal.Decimal `json:"payout"`
}

// Snapshot is a read-only copy of the live round. Seeds and result appear only after reveal.
type Snapshot struct {
	Event             string            `json:"event"`
	RoundID           string            `json:"round_id"`
	Game              GameType          `json:"game"`
	Phase             Phase             `json:"phase"`
	SeedHash          string            `json:"seed_hash"`
	CurrentMultiplier float64           `json:"current_multiplier,omitempty"`
	TimeRemaining     float64           `json:"time_remaining"`
	EndsAt            time.Time         `json:"-"`
	PublicSeed        string            `json:"public_seed,omitempty"`
	PrivateSeed       string            `json:"private_seed,omitempty"`
	Result            *fairness.Outcome `json:"result,omitempty"`
	Entries           []EntryView       `json:"entries"`
	Flags             Flags             `json:"flags"`
}

// Summary is the archived, fully revealed record of a finished round.
type Summary struct {
	RoundID          string           `json:"round_id"`
	Game             GameType         `json:"game"`
	SeedHash         string           `json:"seed_hash"`
	PrivateSeed      string           `json:"private_seed"`
	PublicSeed       string           `json:"public_seed"`
	PublicSeedSource string           `json:"public_seed_source"`
	Result           fairness.Outcome `json:"result"`
	HouseEdge        float64          `json:"house_edge"`
	TicketCount      int64            `json:"ticket_count,omitempty"`
	Entries          []EntryView      `json:"entries"`
	Flags            Flags            `json:"flags"`
	CreatedAt        time.Time        `json:"created_at"`
	RevealedAt       time.Time        `json:"revealed_at"`
	SettledAt        time.Time        `json:"settled_at"`
}

// Proof is what a player feeds to the verifier.
func (s Summary) Proof() fairness.Proof {
	return fairness.Proof{
		Game:        s.Game,
		RoundID:     s.RoundID,
		ServerSeed:  s.PrivateSeed,
		SeedHash:    s.SeedHash,
		PublicSeed:  s.PublicSeed,
		HouseEdge:   s.HouseEdge,
		TicketCount: s.TicketCount,
	}
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}
